// Package e2e drives a running magbot server through its HTTP API with
// godog scenarios.
package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultSigningKey = "dev-secret-key-change-in-production"
	defaultIssuer     = "magbot"
	audience          = "magbot-api"
)

// Named actors used by the feature files.
var actors = map[string]string{
	"admin":   "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	"backend": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	"pauser":  "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
	"alice":   "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
	"bob":     "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65",
	"carol":   "0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc",
	"nobody":  "0x0000000000000000000000000000000000000000",
}

// TestContext holds per-scenario state: the instances created for the
// scenario and the last response.
type TestContext struct {
	BaseURL    string
	HTTPClient *http.Client
	signingKey []byte
	issuer     string

	instances    map[string]string
	paths        map[string]string
	LastResponse *http.Response
	LastBody     []byte
}

func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    env("MAGBOT_E2E_URL", defaultBaseURL),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		signingKey: []byte(env("JWT_SIGNING_KEY", defaultSigningKey)),
		issuer:     env("JWT_ISSUER", defaultIssuer),
		instances:  map[string]string{},
		paths:      map[string]string{},
	}
}

// Reset clears state between scenarios.
func (tc *TestContext) Reset() {
	tc.instances = map[string]string{}
	tc.paths = map[string]string{}
	tc.LastResponse = nil
	tc.LastBody = nil
}

// Account resolves an actor name to its address. Hex addresses pass through.
func (tc *TestContext) Account(name string) (string, error) {
	if strings.HasPrefix(name, "0x") {
		return name, nil
	}
	addr, ok := actors[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown actor %q", name)
	}
	return addr, nil
}

// NewInstance assigns a fresh random address to a named registry mounted
// under the kind route prefix, so scenarios never share state on a
// long-lived server.
func (tc *TestContext) NewInstance(name, kind string) (string, error) {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	addr := "0x" + hex.EncodeToString(b[:])
	tc.instances[name] = addr
	tc.paths[name] = kind + addr
	return addr, nil
}

func (tc *TestContext) Instance(name string) (string, error) {
	addr, ok := tc.instances[name]
	if !ok {
		return "", fmt.Errorf("registry %q was not created in this scenario", name)
	}
	return addr, nil
}

// Path returns the route prefix of a named registry.
func (tc *TestContext) Path(name string) (string, error) {
	p, ok := tc.paths[name]
	if !ok {
		return "", fmt.Errorf("registry %q was not created in this scenario", name)
	}
	return p, nil
}

// Token signs an access token whose subject is the actor's account.
func (tc *TestContext) Token(actor string) (string, error) {
	subject, err := tc.Account(actor)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tc.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	return token.SignedString(tc.signingKey)
}

// Do sends a request as actor. An empty actor sends no credentials.
func (tc *TestContext) Do(method, path, actor string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		token, err := tc.Token(actor)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.LastResponse = resp
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

// ResponseField reads a top-level field from the last JSON response.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.LastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w (body %s)", err, tc.LastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.LastBody)
	}
	return v, nil
}

func (tc *TestContext) Status() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

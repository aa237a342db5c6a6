package domain

import (
	"encoding/hex"
	"strconv"
	"strings"

	dErrors "magbot/pkg/domain-errors"
)

// AccountLength is the byte length of an account address.
const AccountLength = 20

// Account is an opaque 20-byte external identity. The zero value is the null
// identity and is rejected wherever an owner, admin or registry is required.
//
// Usage: construct via ParseAccount at trust boundaries so the EIP-55 checksum
// is verified; String always renders the checksummed form.
type Account [AccountLength]byte

// ZeroAccount is the null identity.
var ZeroAccount Account

// ParseAccount parses a 0x-prefixed hex address. All-lower and all-upper
// inputs are accepted as-is; mixed case must carry a valid EIP-55 checksum.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	body, ok := strings.CutPrefix(s, "0x")
	if !ok {
		body, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account must be 0x-prefixed")
	}
	if len(body) != 2*AccountLength {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account must be 40 hex characters")
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account is not valid hex")
	}
	var a Account
	copy(a[:], raw)
	if isMixedCase(body) && a.String()[2:] != body {
		return Account{}, dErrors.New(dErrors.CodeInvalidInput, "account checksum mismatch")
	}
	return a, nil
}

// MustParseAccount is ParseAccount for constants and tests.
func MustParseAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AccountFromBytes keeps the trailing 20 bytes of b, left-padding shorter input.
func AccountFromBytes(b []byte) Account {
	var a Account
	if len(b) > AccountLength {
		b = b[len(b)-AccountLength:]
	}
	copy(a[AccountLength-len(b):], b)
	return a
}

// IsZero reports whether a is the null identity.
func (a Account) IsZero() bool {
	return a == ZeroAccount
}

// Bytes returns a copy of the raw address.
func (a Account) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// String renders the EIP-55 checksummed address.
func (a Account) String() string {
	lower := hex.EncodeToString(a[:])
	hash := Keccak256([]byte(lower))
	out := make([]byte, 2, 2+len(lower))
	out[0], out[1] = '0', 'x'
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && c <= 'f' && nibble&0x0f >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}

// TokenID identifies a credential token. Zero means "does not exist".
type TokenID uint64

// CollateralID identifies a collateral token. Zero means "does not exist".
type CollateralID uint64

func (id TokenID) String() string      { return strconv.FormatUint(uint64(id), 10) }
func (id TokenID) IsNil() bool         { return id == 0 }
func (id CollateralID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id CollateralID) IsNil() bool    { return id == 0 }

// ParseTokenID parses a decimal token id. Zero is accepted; callers decide
// whether the sentinel is meaningful for them.
func ParseTokenID(s string) (TokenID, error) {
	v, err := parseUint(s, "token id")
	return TokenID(v), err
}

// ParseCollateralID parses a decimal collateral id.
func ParseCollateralID(s string) (CollateralID, error) {
	v, err := parseUint(s, "collateral id")
	return CollateralID(v), err
}

func parseUint(s, field string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" must be a decimal integer")
	}
	return v, nil
}

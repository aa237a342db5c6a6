package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

// Address book keys, in the "<module>#<registry>" form of the deployment
// records.
const (
	KeyVerification = "VerificationRegistry#VerificationRegistry"
	KeyCollateral   = "CollateralRegistry#CollateralRegistry"
)

var knownKeys = map[string]bool{
	KeyVerification: true,
	KeyCollateral:   true,
}

var (
	// ErrUnknownKey is returned for a key that names no registry.
	ErrUnknownKey = dErrors.New(dErrors.CodeInvalidInput, "unknown address book key")
	// ErrNotDeployed is returned when a known key has no recorded address.
	ErrNotDeployed = dErrors.New(dErrors.CodeNotFound, "registry is not deployed on this chain")
)

// AddressBook persists deployed instance addresses per chain in
// <dir>/chain-<id>/deployed_addresses.json.
type AddressBook struct {
	mu      sync.Mutex
	dir     string
	chainID uint64
}

func NewAddressBook(dir string, chainID uint64) *AddressBook {
	return &AddressBook{dir: dir, chainID: chainID}
}

func (b *AddressBook) ChainID() uint64 {
	return b.chainID
}

func (b *AddressBook) Path() string {
	return filepath.Join(b.dir, "chain-"+strconv.FormatUint(b.chainID, 10), "deployed_addresses.json")
}

// Lookup returns the address recorded under key.
func (b *AddressBook) Lookup(key string) (domain.Account, error) {
	if !knownKeys[key] {
		return domain.ZeroAccount, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load()
	if err != nil {
		return domain.ZeroAccount, err
	}
	raw, ok := entries[key]
	if !ok || raw == "" {
		return domain.ZeroAccount, fmt.Errorf("%w: %s on chain %d", ErrNotDeployed, key, b.chainID)
	}
	addr, err := domain.ParseAccount(raw)
	if err != nil {
		return domain.ZeroAccount, fmt.Errorf("address book entry %s: %w", key, err)
	}
	return addr, nil
}

// Record stores addr under key, keeping every other entry.
func (b *AddressBook) Record(key string, addr domain.Account) error {
	if !knownKeys[key] {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load()
	if err != nil {
		return err
	}
	entries[key] = addr.String()
	return b.save(entries)
}

// Entries returns every recorded key, sorted.
func (b *AddressBook) Entries() (map[string]domain.Account, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load()
	if err != nil {
		return nil, nil, err
	}
	out := make(map[string]domain.Account, len(entries))
	keys := make([]string, 0, len(entries))
	for k, v := range entries {
		addr, err := domain.ParseAccount(v)
		if err != nil {
			return nil, nil, fmt.Errorf("address book entry %s: %w", k, err)
		}
		out[k] = addr
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys, nil
}

func (b *AddressBook) load() (map[string]string, error) {
	data, err := os.ReadFile(b.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read address book: %w", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode address book %s: %w", b.Path(), err)
	}
	return entries, nil
}

// save writes through a temp file and rename so readers never see a
// truncated book.
func (b *AddressBook) save(entries map[string]string) error {
	path := b.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create address book dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode address book: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".deployed_addresses-*.json")
	if err != nil {
		return fmt.Errorf("write address book: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write address book: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write address book: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write address book: %w", err)
	}
	return nil
}

package deployment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

func TestAddressBook(t *testing.T) {
	sbt := domain.MustParseAccount("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	collateral := domain.MustParseAccount("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

	t.Run("missing file reads as empty", func(t *testing.T) {
		book := NewAddressBook(t.TempDir(), 84532)
		_, err := book.Lookup(KeyVerification)
		assert.ErrorIs(t, err, ErrNotDeployed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		entries, keys, err := book.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Empty(t, keys)
	})

	t.Run("unknown keys are distinct from undeployed ones", func(t *testing.T) {
		book := NewAddressBook(t.TempDir(), 84532)
		_, err := book.Lookup("Registry#Nope")
		assert.ErrorIs(t, err, ErrUnknownKey)
		assert.NotErrorIs(t, err, ErrNotDeployed)
		assert.ErrorIs(t, book.Record("Registry#Nope", sbt), ErrUnknownKey)
	})

	t.Run("records survive a reopen", func(t *testing.T) {
		dir := t.TempDir()
		book := NewAddressBook(dir, 8453)
		require.NoError(t, book.Record(KeyVerification, sbt))
		require.NoError(t, book.Record(KeyCollateral, collateral))

		reopened := NewAddressBook(dir, 8453)
		got, err := reopened.Lookup(KeyCollateral)
		require.NoError(t, err)
		assert.Equal(t, collateral, got)

		entries, keys, err := reopened.Entries()
		require.NoError(t, err)
		assert.Equal(t, []string{KeyCollateral, KeyVerification}, keys)
		assert.Equal(t, sbt, entries[KeyVerification])
	})

	t.Run("chains are isolated", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, NewAddressBook(dir, 8453).Record(KeyVerification, sbt))
		_, err := NewAddressBook(dir, 84532).Lookup(KeyVerification)
		assert.ErrorIs(t, err, ErrNotDeployed)
	})

	t.Run("file layout matches deployment records", func(t *testing.T) {
		dir := t.TempDir()
		book := NewAddressBook(dir, 31337)
		require.NoError(t, book.Record(KeyVerification, sbt))

		assert.Equal(t, filepath.Join(dir, "chain-31337", "deployed_addresses.json"), book.Path())
		data, err := os.ReadFile(book.Path())
		require.NoError(t, err)
		assert.JSONEq(t, `{"VerificationRegistry#VerificationRegistry": "0x5FbDB2315678afecb367f032d93F642f64180aa3"}`, string(data))

		leftovers, err := filepath.Glob(filepath.Join(dir, "chain-31337", ".deployed_addresses-*"))
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("hand-edited entries are read", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chain-1", "deployed_addresses.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(`{"CollateralRegistry#CollateralRegistry":"0xe7f1725e7734ce288f8367e1bb143e90bb3f0512"}`), 0o644))

		got, err := NewAddressBook(dir, 1).Lookup(KeyCollateral)
		require.NoError(t, err)
		assert.Equal(t, collateral, got)
	})

	t.Run("corrupt book is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "chain-1", "deployed_addresses.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

		_, err := NewAddressBook(dir, 1).Lookup(KeyCollateral)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotDeployed)
	})
}

package domain

import "golang.org/x/crypto/sha3"

// Keccak256 hashes the concatenation of data with the pre-standard Keccak
// padding used for addresses, role identifiers and interface selectors.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Hash32 is a 32-byte Keccak digest.
type Hash32 [32]byte

// Keccak256Hash is Keccak256 returning a fixed-size digest.
func Keccak256Hash(data ...[]byte) Hash32 {
	var out Hash32
	copy(out[:], Keccak256(data...))
	return out
}

// Package registry holds what the verification and collateral registries
// share: token metadata, interface discovery, URI rendering and the common
// error vocabulary.
package registry

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

// InterfaceID is a 4-byte interface identifier.
type InterfaceID [4]byte

// Selector returns the first four bytes of keccak256(signature).
func Selector(signature string) InterfaceID {
	var id InterfaceID
	copy(id[:], domain.Keccak256([]byte(signature)))
	return id
}

// ComputeInterfaceID XORs the selectors of every signature.
func ComputeInterfaceID(signatures ...string) InterfaceID {
	var acc uint32
	for _, sig := range signatures {
		sel := Selector(sig)
		acc ^= binary.BigEndian.Uint32(sel[:])
	}
	var id InterfaceID
	binary.BigEndian.PutUint32(id[:], acc)
	return id
}

var (
	InterfaceERC165 = ComputeInterfaceID("supportsInterface(bytes4)")

	InterfaceERC721 = ComputeInterfaceID(
		"balanceOf(address)",
		"ownerOf(uint256)",
		"safeTransferFrom(address,address,uint256,bytes)",
		"safeTransferFrom(address,address,uint256)",
		"transferFrom(address,address,uint256)",
		"approve(address,uint256)",
		"setApprovalForAll(address,bool)",
		"getApproved(uint256)",
		"isApprovedForAll(address,address)",
	)

	InterfaceERC721Metadata = ComputeInterfaceID("name()", "symbol()", "tokenURI(uint256)")

	InterfaceAccessControl = ComputeInterfaceID(
		"hasRole(bytes32,address)",
		"getRoleAdmin(bytes32)",
		"grantRole(bytes32,address)",
		"revokeRole(bytes32,address)",
		"renounceRole(bytes32,address)",
	)

	// InterfaceInvalid is never supported.
	InterfaceInvalid = InterfaceID{0xff, 0xff, 0xff, 0xff}
)

// StandardInterfaces is the set both registries advertise.
var StandardInterfaces = []InterfaceID{
	InterfaceERC165,
	InterfaceERC721,
	InterfaceERC721Metadata,
	InterfaceAccessControl,
}

// SupportsInterface reports whether id is one of the standard interfaces.
func SupportsInterface(id InterfaceID) bool {
	if id == InterfaceInvalid {
		return false
	}
	for _, known := range StandardInterfaces {
		if known == id {
			return true
		}
	}
	return false
}

func (id InterfaceID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParseInterfaceID parses "0x01ffc9a7" or "01ffc9a7".
func ParseInterfaceID(s string) (InterfaceID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 4 {
		return InterfaceID{}, dErrors.New(dErrors.CodeInvalidInput, "interface id must be 4 hex bytes")
	}
	var id InterfaceID
	copy(id[:], raw)
	return id, nil
}

// Package access implements role-gated authorization shared by both
// registries: a Role → AdminRole table plus per-instance role membership.
package access

import (
	"encoding/hex"
	"strings"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

// Role is a 32-byte role identifier. Named roles hash their name with
// Keccak-256; the default admin role is the zero identifier.
type Role domain.Hash32

var (
	DefaultAdminRole = Role{}
	BackendRole      = namedRole("BACKEND_ROLE")
	PauserRole       = namedRole("PAUSER_ROLE")
)

var roleNames = map[Role]string{
	DefaultAdminRole: "DEFAULT_ADMIN_ROLE",
	BackendRole:      "BACKEND_ROLE",
	PauserRole:       "PAUSER_ROLE",
}

func namedRole(name string) Role {
	return Role(domain.Keccak256Hash([]byte(name)))
}

// Hex renders the 0x-prefixed identifier.
func (r Role) Hex() string {
	return "0x" + hex.EncodeToString(r[:])
}

// String renders the role name when known, the identifier otherwise.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return r.Hex()
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole accepts a role name ("BACKEND_ROLE", case-insensitive, the
// "_ROLE" suffix optional) or a 0x-prefixed 32-byte identifier.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Role{}, dErrors.New(dErrors.CodeInvalidInput, "role is required")
	}
	if body, ok := strings.CutPrefix(s, "0x"); ok {
		raw, err := hex.DecodeString(body)
		if err != nil || len(raw) != len(Role{}) {
			return Role{}, dErrors.New(dErrors.CodeInvalidInput, "role must be a 32-byte hex identifier")
		}
		var r Role
		copy(r[:], raw)
		return r, nil
	}
	name := strings.ToUpper(s)
	if !strings.HasSuffix(name, "_ROLE") {
		name += "_ROLE"
	}
	for role, known := range roleNames {
		if known == name {
			return role, nil
		}
	}
	return Role{}, dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
}

// Table maps each role to the role allowed to grant and revoke it.
type Table map[Role]Role

// NewTable builds a table where DefaultAdminRole administers every given
// role, itself included.
func NewTable(roles ...Role) Table {
	t := Table{DefaultAdminRole: DefaultAdminRole}
	for _, r := range roles {
		t[r] = DefaultAdminRole
	}
	return t
}

// AdminOf returns the admin role of r. Roles outside the table fall back to
// DefaultAdminRole, matching the zero-initialised admin of the original
// access-control scheme.
func (t Table) AdminOf(r Role) Role {
	if admin, ok := t[r]; ok {
		return admin
	}
	return DefaultAdminRole
}

// Roles lists the roles declared in the table.
func (t Table) Roles() []Role {
	out := make([]Role, 0, len(t))
	for r := range t {
		out = append(out, r)
	}
	return out
}

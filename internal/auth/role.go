package auth

import (
	"fmt"
	"strings"
)

// Role is the access tier mirrored between the identity authority's role
// claim and the local profile record.
type Role string

const (
	RoleBeneficiary Role = "beneficiary"
	RoleVolunteer   Role = "volunteer"
	RoleAdmin       Role = "admin"
)

// RoleDefault is assigned when no role is requested or claimed.
const RoleDefault = RoleBeneficiary

// RoleUnspecified is the tier the session gate reports for a verified token
// that carries no role claim. It never appears on a profile record.
const RoleUnspecified Role = "user"

// Roles lists the closed enumeration of profile roles.
var Roles = []Role{RoleBeneficiary, RoleVolunteer, RoleAdmin}

// ParseRole validates a raw role value against the closed enumeration.
// An empty value yields RoleDefault.
func ParseRole(raw string) (Role, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return RoleDefault, nil
	}
	for _, r := range Roles {
		if string(r) == value {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Valid reports whether r is exactly one of the canonical profile roles.
// Unlike ParseRole it does not normalise case or whitespace.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

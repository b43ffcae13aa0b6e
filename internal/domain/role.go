package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string is not one of the four SUMATIN roles.
var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of SUMATIN user roles. The zero value is RoleUnknown.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleAdmin
	RoleTeacher
	RoleStudent
	RoleParent
)

var roleNames = [...]string{
	RoleUnknown: "",
	RoleAdmin:   "admin",
	RoleTeacher: "teacher",
	RoleStudent: "student",
	RoleParent:  "parent",
}

// AllRoles lists the known roles in privilege order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}
}

// ParseRole maps the backend's role string onto the enumeration.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "teacher":
		return RoleTeacher, nil
	case "student":
		return RoleStudent, nil
	case "parent":
		return RoleParent, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleParent
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return ""
}

// MarshalJSON encodes the role as its backend string; RoleUnknown encodes as "".
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON never fails on an unrecognised role string: it decodes to
// RoleUnknown so a single odd payload cannot break profile decoding. Callers
// check Valid at the boundary.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode role: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		*r = RoleUnknown
		return nil
	}
	*r = parsed
	return nil
}

// Package permissions defines the closed set of capabilities a user can hold and
// resolves a user's effective set from custom overrides or role defaults.
package permissions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type Permission string

const (
	CreateFolders    Permission = "createFolders"
	EditOwnFolders   Permission = "editOwnFolders"
	EditAllFolders   Permission = "editAllFolders"
	DeleteOwnFolders Permission = "deleteOwnFolders"
	DeleteAllFolders Permission = "deleteAllFolders"
	CreateReports    Permission = "createReports"
	EditOwnReports   Permission = "editOwnReports"
	EditAllReports   Permission = "editAllReports"
	DeleteOwnReports Permission = "deleteOwnReports"
	DeleteAllReports Permission = "deleteAllReports"
	JoinFolders      Permission = "joinFolders"
	ManageProfile    Permission = "manageProfile"
	ViewDashboard    Permission = "viewDashboard"
)

// All lists every permission in a stable order.
var All = []Permission{
	CreateFolders,
	EditOwnFolders,
	EditAllFolders,
	DeleteOwnFolders,
	DeleteAllFolders,
	CreateReports,
	EditOwnReports,
	EditAllReports,
	DeleteOwnReports,
	DeleteAllReports,
	JoinFolders,
	ManageProfile,
	ViewDashboard,
}

const (
	RoleVisitor = "visitor"
	RoleMember  = "member"
	RoleAdmin   = "admin"
)

var valid = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(All))
	for _, p := range All {
		m[p] = struct{}{}
	}
	return m
}()

func (p Permission) Valid() bool {
	_, ok := valid[p]
	return ok
}

func Parse(value string) (Permission, error) {
	p := Permission(value)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", value)
	}
	return p, nil
}

// Set maps permissions to a grant flag. A nil or empty Set grants nothing.
type Set map[Permission]bool

func NewSet(granted ...Permission) Set {
	s := make(Set, len(granted))
	for _, p := range granted {
		s[p] = true
	}
	return s
}

func (s Set) Has(p Permission) bool {
	return s[p]
}

func (s Set) IsEmpty() bool {
	return len(s) == 0
}

// Granted returns the granted permissions in All order.
func (s Set) Granted() []Permission {
	out := make([]Permission, 0, len(s))
	for _, p := range All {
		if s[p] {
			out = append(out, p)
		}
	}
	return out
}

// Map expands the set into a boolean for every known permission.
func (s Set) Map() map[Permission]bool {
	out := make(map[Permission]bool, len(All))
	for _, p := range All {
		out[p] = s[p]
	}
	return out
}

func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for p, v := range s {
		out[p] = v
	}
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(s))
	for p := range s {
		keys = append(keys, string(p))
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		if s[Permission(k)] {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON rejects keys outside the closed permission set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}

	out := make(Set, len(raw))
	for k, v := range raw {
		p, err := Parse(k)
		if err != nil {
			return err
		}
		out[p] = v
	}
	*s = out
	return nil
}

var (
	visitorDefaults = []Permission{ViewDashboard, JoinFolders, ManageProfile}
	memberDefaults  = append(append([]Permission{}, visitorDefaults...),
		CreateFolders, EditOwnFolders, DeleteOwnFolders,
		CreateReports, EditOwnReports, DeleteOwnReports,
	)
	adminDefaults = append(append([]Permission{}, memberDefaults...),
		EditAllFolders, DeleteAllFolders, EditAllReports, DeleteAllReports,
	)
)

// IsBuiltinRole reports whether role has a static default table.
func IsBuiltinRole(role string) bool {
	switch role {
	case RoleVisitor, RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

// Defaults returns the static default set for a built-in role and an empty set
// for anything else.
func Defaults(role string) Set {
	switch role {
	case RoleVisitor:
		return NewSet(visitorDefaults...)
	case RoleMember:
		return NewSet(memberDefaults...)
	case RoleAdmin:
		return NewSet(adminDefaults...)
	default:
		return Set{}
	}
}

// Resolve computes the effective set. A non-empty custom set is authoritative:
// permissions missing from it are denied rather than inherited from the role.
func Resolve(role string, custom Set) Set {
	if !custom.IsEmpty() {
		out := make(Set, len(All))
		for _, p := range All {
			out[p] = custom[p]
		}
		return out
	}
	defaults := Defaults(role)
	out := make(Set, len(All))
	for _, p := range All {
		out[p] = defaults[p]
	}
	return out
}

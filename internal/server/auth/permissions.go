package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
)

// Permission is one bit of a user's role mask.
type Permission uint32

const (
	Read  Permission = 1 << (iota + 1) // 2
	Write                              // 4
	Edit                               // 8
	Grant                              // 16
	Admin                              // 32
)

var permissionNames = map[Permission]string{
	Read:  "READ",
	Write: "WRITE",
	Edit:  "EDIT",
	Grant: "GRANT",
	Admin: "ADMIN",
}

func (p Permission) String() string {
	if n, ok := permissionNames[p]; ok {
		return n
	}
	return fmt.Sprintf("permission(%d)", uint32(p))
}

// Common requirement sets.
var (
	AnyRole     = []Permission{Read, Write, Edit, Grant, Admin}
	Writers     = []Permission{Write, Edit, Grant, Admin}
	Editors     = []Permission{Edit, Grant, Admin}
	Granters    = []Permission{Grant, Admin}
	AdminsOnly  = []Permission{Admin}
	DefaultRole = NewPermissions(Read, Write)
)

// Permissions is a set of permissions stored as a bitmask.
type Permissions uint32

func NewPermissions(ps ...Permission) Permissions {
	var set Permissions
	for _, p := range ps {
		set |= Permissions(p)
	}
	return set
}

// Has reports whether the set contains p.
func (s Permissions) Has(p Permission) bool {
	return s&Permissions(p) != 0
}

// Any reports whether the set intersects ps.
func (s Permissions) Any(ps ...Permission) bool {
	return s&NewPermissions(ps...) != 0
}

// Names lists the permission names in ascending bit order.
func (s Permissions) Names() []string {
	var bits []int
	for p := range permissionNames {
		if s.Has(p) {
			bits = append(bits, int(p))
		}
	}
	sort.Ints(bits)

	names := make([]string, 0, len(bits))
	for _, b := range bits {
		names = append(names, permissionNames[Permission(b)])
	}
	return names
}

// ParsePermissions turns role names into a set. Unknown or empty input is a
// validation error.
func ParsePermissions(names []string) (Permissions, error) {
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: empty role list", common.ErrorValidation)
	}
	var set Permissions
	for _, n := range names {
		found := false
		for p, name := range permissionNames {
			if strings.EqualFold(strings.TrimSpace(n), name) {
				set |= Permissions(p)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, n)
		}
	}
	return set, nil
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID   string
	Nickname string
	Role     Permissions
}

type ctxKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Requires passes when the caller holds at least one of perms.
func Requires(ctx context.Context, perms ...Permission) error {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return common.ErrorUnauthorized
	}
	if !p.Role.Any(perms...) {
		return fmt.Errorf("%w: %s needs one of %v", common.ErrorForbidden, p.Nickname, perms)
	}
	return nil
}

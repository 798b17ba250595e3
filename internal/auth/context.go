package auth

import "context"

type principalContextKey struct{}

// Principal is the verified caller identity attached to a request.
type Principal struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// PrincipalFromClaims projects verified access claims.
func PrincipalFromClaims(c AccessClaims) Principal {
	return Principal{ID: c.SubjectID, Role: c.Role}
}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

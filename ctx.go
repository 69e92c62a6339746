package auth

import (
	"context"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// Principal is the authenticated identity of a single request
type Principal struct {
	Subject     string
	UserID      string
	Authorities Authorities
}

// NewPrincipal builds a principal from validated claims and the resolved user
func NewPrincipal(claims *TokenClaims, user *User) *Principal {
	p := &Principal{
		Subject:     claims.Subject(),
		Authorities: claims.Authorities(),
	}
	if user != nil {
		p.UserID = user.ID.String()
	}
	return p
}

// HasRole checks the authority set for a role name or authority
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return p.Authorities.Has(role)
}

// WithPrincipal stores the principal in ctx. An existing principal is kept.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if _, ok := PrincipalFrom(ctx); ok || p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalCtxKey, p)
}

// WithoutPrincipal masks any principal carried by ctx
func WithoutPrincipal(ctx context.Context) context.Context {
	if _, ok := PrincipalFrom(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, principalCtxKey, (*Principal)(nil))
}

// PrincipalFrom finds the principal in the context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

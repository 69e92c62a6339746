package auth

import (
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthorityPrefix marks role names inside the roles claim
const AuthorityPrefix = "ROLE_"

// Authority is a parsed role identifier such as ROLE_ADMIN
type Authority string

// AuthorityFor returns the authority for a role name
func AuthorityFor(roleName string) Authority {
	name := NormalizeRoleName(roleName)
	if strings.HasPrefix(name, AuthorityPrefix) {
		return Authority(name)
	}
	return Authority(AuthorityPrefix + name)
}

// RoleName strips the authority prefix
func (a Authority) RoleName() string {
	return strings.TrimPrefix(string(a), AuthorityPrefix)
}

// Authorities is a set of authorities
type Authorities map[Authority]struct{}

// ParseAuthorities splits the comma-joined roles claim. Empty entries are dropped.
func ParseAuthorities(claim string) Authorities {
	out := Authorities{}
	for _, part := range strings.Split(claim, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out[Authority(strings.ToUpper(part))] = struct{}{}
	}
	return out
}

// Has checks membership, role names and authorities are both accepted
func (a Authorities) Has(role string) bool {
	if a == nil {
		return false
	}
	_, ok := a[AuthorityFor(role)]
	return ok
}

// Sorted returns the authorities in lexical order
func (a Authorities) Sorted() []string {
	out := make([]string, 0, len(a))
	for auth := range a {
		out = append(out, string(auth))
	}
	sort.Strings(out)
	return out
}

// RolesClaim encodes role names as the wire claim: ROLE_ prefixed,
// upper cased, comma joined, in the order given.
func RolesClaim(roleNames []string) string {
	parts := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		parts = append(parts, AuthorityPrefix+strings.ToUpper(strings.TrimSpace(name)))
	}
	return strings.Join(parts, ",")
}

// TokenClaims is the claim set carried by bearer tokens
type TokenClaims struct {
	jwt.RegisteredClaims
	Roles string `json:"roles"`
}

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// RolesClaim returns the raw comma-joined roles claim
func (c *TokenClaims) RolesClaim() string {
	return c.Roles
}

// Authorities parses the roles claim
func (c *TokenClaims) Authorities() Authorities {
	return ParseAuthorities(c.Roles)
}

// RoleNames returns the sorted role names without prefix
func (c *TokenClaims) RoleNames() []string {
	auths := c.Authorities().Sorted()
	for i, a := range auths {
		auths[i] = Authority(a).RoleName()
	}
	return auths
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AvailabilityState tells whether a user can take new work
type AvailabilityState string

const (
	StateAvailable   AvailabilityState = "AVAILABLE"
	StateBusy        AvailabilityState = "BUSY"
	StateUnavailable AvailabilityState = "UNAVAILABLE"
)

// Valid reports whether s is a known state
func (s AvailabilityState) Valid() bool {
	switch s {
	case StateAvailable, StateBusy, StateUnavailable:
		return true
	}
	return false
}

// ParseAvailabilityState normalizes s, empty input yields StateAvailable
func ParseAvailabilityState(s string) (AvailabilityState, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StateAvailable, true
	}
	state := AvailabilityState(s)
	return state, state.Valid()
}

// Well known role names
const (
	RoleNameAdmin = "ADMIN"
	RoleNameOwner = "OWNER"
	RoleNameCarer = "CARER"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string            `bun:"email,notnull" json:"email,omitempty"`
	PasswordHash  string            `bun:"password_hash,notnull" json:"-"`
	Name          string            `bun:"name" json:"name,omitempty"`
	LastName      string            `bun:"last_name" json:"last_name,omitempty"`
	Phone         string            `bun:"phone_number" json:"phone_number,omitempty"`
	State         AvailabilityState `bun:"state,notnull" json:"state,omitempty"`
	Active        bool              `bun:"active,notnull" json:"active"`
	CreatedAt     *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is an authorization label
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Membership links a user to a role. Revoked links stay with Active=false.
type Membership struct {
	bun.BaseModel `bun:"table:user_roles,alias:urol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	RoleID        uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id"`
	Active        bool       `bun:"active,notnull" json:"active"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Role *Role `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
}

// NormalizeRoleName gives the canonical stored form of a role name
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NormalizeEmail lower cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

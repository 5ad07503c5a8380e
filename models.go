package authui

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,nullzero" json:"username,omitempty"`
	Email         string     `bun:"email,nullzero" json:"email,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Language      string     `bun:"language" json:"language,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Active        bool       `bun:"active,notnull" json:"active"`
	Verified      bool       `bun:"verified,notnull" json:"verified"`
	VerifiedAt    *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	Roles         []string   `bun:"roles,type:jsonb" json:"roles,omitempty"`
	LoggedInAt    *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// FullName is the name used as the receiver of emails
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// RoleNames returns a copy of the user roles
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	return slices.Clone(u.Roles)
}

// HasRole checks a single role
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// HasRoles returns true if the user satisfies every requirement.
// A requirement is a list of role names and it is met when the user
// has at least one of them:
//
//	user.HasRoles([]string{"a"}, []string{"b", "c"})
//
// reads as role "a" AND (role "b" OR role "c").
func (u *User) HasRoles(requirements ...[]string) bool {
	if u == nil {
		return false
	}

	for _, requirement := range requirements {
		met := false
		for _, role := range requirement {
			if u.HasRole(role) {
				met = true
				break
			}
		}
		if !met {
			return false
		}
	}
	return true
}

// AddRole appends a role if the user does not have it
func (u *User) AddRole(role string) *User {
	role = strings.TrimSpace(role)
	if role == "" || u.HasRole(role) {
		return u
	}
	u.Roles = append(u.Roles, role)
	return u
}

// IsConfirmed reports if the user has verified the account
func (u *User) IsConfirmed() bool {
	return u != nil && u.Verified
}

// MarkVerified flags the account as confirmed
func (u *User) MarkVerified(at time.Time) *User {
	u.Verified = true
	u.VerifiedAt = &at
	return u
}

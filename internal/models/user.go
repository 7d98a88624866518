package models

import (
	"slices"
	"strings"
	"time"
)

// User is the profile snapshot returned by the backend for the logged in account.
// It is not authoritative and may go stale between refreshes.
type User struct {
	ID             int        `json:"id"`
	Username       string     `json:"username,omitempty"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	PhoneNumber    string     `json:"phone_number,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsStaff        bool       `json:"is_staff"`
	IsSuperuser    bool       `json:"is_superuser"`
	Permissions    []string   `json:"permissions,omitempty"`
	DateJoined     *time.Time `json:"date_joined,omitempty"`
}

// DisplayName returns the full name, falling back to username then email.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// HasPermission reports whether the user holds perm. Superusers hold every permission.
func (u *User) HasPermission(perm string) bool {
	if u.IsSuperuser {
		return true
	}
	return slices.Contains(u.Permissions, perm)
}

// UserPatch is a partial profile update. Nil fields are left unchanged.
type UserPatch struct {
	Email          *string `json:"email,omitempty"`
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	PhoneNumber    *string `json:"phone_number,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// IsEmpty returns true if the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil &&
		p.PhoneNumber == nil && p.ProfilePicture == nil
}

// Apply returns a copy of u with the patch shallow-merged over it.
func (u User) Apply(p UserPatch) User {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = *p.PhoneNumber
	}
	if p.ProfilePicture != nil {
		u.ProfilePicture = *p.ProfilePicture
	}
	u.Permissions = slices.Clone(u.Permissions)
	return u
}

// Package credentials persists the client session: access token, refresh
// token, user id, and role.
//
// Stores are synchronous and total: Get, Set, and Clear never fail and are
// idempotent. Token values are opaque and never inspected.
package credentials

import "strings"

// Role is the privilege level reported by the server for the signed-in user.
type Role string

const (
	// RoleUnknown means the server did not report a role.
	RoleUnknown Role = ""
	// RoleUser is a regular member.
	RoleUser Role = "User"
	// RoleAdmin may manage resources and generate time slots.
	RoleAdmin Role = "Admin"
)

// ParseRole accepts the wire and display spellings of a role.
func ParseRole(value string) Role {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ADMIN":
		return RoleAdmin
	case "USER":
		return RoleUser
	}
	return RoleUnknown
}

// Credentials is a snapshot of the persisted session. Zero values mean absent.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
	Role         Role
}

// HasAccessToken reports whether a bearer credential is stored.
func (c Credentials) HasAccessToken() bool {
	return c.AccessToken != ""
}

// IsZero reports whether every field is absent.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// Update is a partial write. Nil fields keep their current value; non-nil
// fields are replaced, and an empty value removes the entry.
type Update struct {
	AccessToken  *string
	RefreshToken *string
	UserID       *int64
	Role         *Role
}

// SessionUpdate replaces all four fields together, as login and register do.
func SessionUpdate(accessToken, refreshToken string, userID int64, role Role) Update {
	return Update{
		AccessToken:  &accessToken,
		RefreshToken: &refreshToken,
		UserID:       &userID,
		Role:         &role,
	}
}

// TokenUpdate replaces the access token and, when refreshToken is non-empty,
// the refresh token as well.
func TokenUpdate(accessToken, refreshToken string) Update {
	update := Update{AccessToken: &accessToken}
	if refreshToken != "" {
		update.RefreshToken = &refreshToken
	}
	return update
}

// Apply returns c with the update applied.
func (u Update) Apply(c Credentials) Credentials {
	if u.AccessToken != nil {
		c.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		c.RefreshToken = *u.RefreshToken
	}
	if u.UserID != nil {
		c.UserID = *u.UserID
	}
	if u.Role != nil {
		c.Role = *u.Role
	}
	return c
}

// Store is the process-wide credential state shared by the session
// controller and the request executor.
type Store interface {
	Get() Credentials
	Set(update Update)
	Clear()
	// SetIf applies update only when match accepts the current snapshot.
	// The check and the write happen under one lock.
	SetIf(match func(Credentials) bool, update Update) bool
	// ClearIf clears only when match accepts the current snapshot.
	ClearIf(match func(Credentials) bool) bool
}

// HoldsRefreshToken matches snapshots that still carry refreshToken, i.e.
// the session that token was issued to.
func HoldsRefreshToken(refreshToken string) func(Credentials) bool {
	return func(c Credentials) bool {
		return c.RefreshToken == refreshToken
	}
}

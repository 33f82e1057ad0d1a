package domain

import (
	"context"
	"strings"
)

// Identity is the caller resolved from an access token. The zero value is
// the anonymous identity.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

// IsAnonymous reports whether no user could be resolved.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// IdentityResolver turns an access token into an identity. Invalid, expired or
// empty tokens resolve to the anonymous identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) Identity
}

// User is the subset of the identity collaborator's user record the chat
// layer displays.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// UserDirectory looks up users owned by the identity collaborator.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// UserInfo is the display payload attached to messages and presence events.
type UserInfo struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

const unknownUser = "Unknown User"

// NewUserInfo builds display info for a user record.
func NewUserInfo(u *User) *UserInfo {
	email := u.Email
	if email == "" {
		email = "Unknown"
	}
	display := u.DisplayName()
	if display == "" {
		display = email
	}
	return &UserInfo{UserID: u.ID, Email: email, DisplayName: display}
}

// UnknownUserInfo is the placeholder used when a sender cannot be looked up.
func UnknownUserInfo(userID string) *UserInfo {
	return &UserInfo{UserID: userID, Email: unknownUser, DisplayName: unknownUser}
}

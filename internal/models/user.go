package models

import "time"

// UserStatus is the account status maintained by the account subsystem.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserLocked   UserStatus = "LOCKED"
	UserInactive UserStatus = "INACTIVE"
)

// User is an identity as seen by the chat core.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Avatar       string     `json:"avatar,omitempty"`
	Status       UserStatus `json:"status"`
	Online       bool       `json:"isOnline"`
	TokenVersion int        `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// UserSummary is the public profile shape embedded in responses and notifications.
type UserSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar,omitempty"`
	Online    bool   `json:"isOnline"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		Online:    u.Online,
	}
}

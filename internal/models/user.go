package models

import (
	"time"
)

// Roles a UserProfile can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated identity issued by the auth service.
type Principal struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// TaskAttempt counts plays of one task on one UTC day.
type TaskAttempt struct {
	Count int    `bson:"count" json:"count"`
	Date  string `bson:"date" json:"date"` // YYYY-MM-DD
}

// UserProfile is the application record for a Principal, stored at users/<uid>.
type UserProfile struct {
	ID            string    `bson:"id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Email         string    `bson:"email" json:"email"`
	Role          string    `bson:"role" json:"role"`
	Level         int       `bson:"level" json:"level"`
	WalletBalance float64   `bson:"walletBalance" json:"walletBalance"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	AvatarURL     string    `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`

	PhoneNumber string `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Country     string `bson:"country,omitempty" json:"country,omitempty"`
	State       string `bson:"state,omitempty" json:"state,omitempty"`

	TaskAttempts     map[string]TaskAttempt `bson:"taskAttempts,omitempty" json:"taskAttempts,omitempty"`
	VisitedTiles     []string               `bson:"visitedTiles,omitempty" json:"visitedTiles,omitempty"`
	LastDailyCheckin *time.Time             `bson:"lastDailyCheckin,omitempty" json:"lastDailyCheckin,omitempty"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p *UserProfile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

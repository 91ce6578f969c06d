// Package domain contains core domain types for chatwire.
package domain

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          string    `json:"bio,omitempty"`
	ProfilePic   string    `json:"profilePic,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

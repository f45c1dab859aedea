package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account known to the identity bridge.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string // empty until the account owner sets a password
	TokenKey     string // rotated whenever a password-set token is consumed
	Role         string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

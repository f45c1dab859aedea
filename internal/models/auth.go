package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeSession     = "session"
	TokenTypePasswordSet = "password_set"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	// KeyHash binds password-set tokens to the user's current TokenKey.
	KeyHash string `json:"kh,omitempty"`
	jwt.RegisteredClaims
}

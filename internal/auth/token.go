package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/BradenHooton/riskauth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "riskauth"

// TokenManager issues and validates HS256 tokens.
type TokenManager struct {
	secret            []byte
	sessionExpiry     time.Duration
	passwordSetExpiry time.Duration
	now               func() time.Time
}

func NewTokenManager(secret string, sessionExpiry, passwordSetExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            []byte(secret),
		sessionExpiry:     sessionExpiry,
		passwordSetExpiry: passwordSetExpiry,
		now:               time.Now,
	}
}

// KeyHash fingerprints a user's TokenKey so tokens can be bound to it without embedding it.
func KeyHash(tokenKey string) string {
	sum := sha256.Sum256([]byte(tokenKey))
	return hex.EncodeToString(sum[:8])
}

// GenerateSessionToken issues the token handed out when a login is admitted.
func (tm *TokenManager) GenerateSessionToken(user *models.User) (string, time.Time, error) {
	expiresAt := tm.now().Add(tm.sessionExpiry)
	claims := &models.TokenClaims{
		Type:             models.TokenTypeSession,
		UserID:           user.ID,
		Email:            user.Email,
		Role:             user.Role,
		RegisteredClaims: tm.registered(user.ID, expiresAt),
	}

	token, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// GeneratePasswordSetToken issues a token that lets the user set a password until the
// user's TokenKey changes.
func (tm *TokenManager) GeneratePasswordSetToken(user *models.User) (string, error) {
	claims := &models.TokenClaims{
		Type:             models.TokenTypePasswordSet,
		UserID:           user.ID,
		Email:            user.Email,
		KeyHash:          KeyHash(user.TokenKey),
		RegisteredClaims: tm.registered(user.ID, tm.now().Add(tm.passwordSetExpiry)),
	}

	token, err := tm.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign password-set token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies the signature, expiry and type of a token.
func (tm *TokenManager) ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("invalid token: unexpected type %q", claims.Type)
	}

	return claims, nil
}

func (tm *TokenManager) registered(subject string, expiresAt time.Time) jwt.RegisteredClaims {
	now := tm.now()
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    tokenIssuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

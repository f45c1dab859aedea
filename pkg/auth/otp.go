package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	otpKeyLength  = 20 // RFC 4226 recommends 160-bit keys
	otpSaltLength = 16
)

// GenerateNumericCode returns a 6-digit code derived by HOTP truncation from a fresh random key.
// The key is discarded; only the code leaves this function.
func GenerateNumericCode() (string, error) {
	key := make([]byte, otpKeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate otp key: %w", err)
	}

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(key)
	code, err := hotp.GenerateCodeCustom(secret, 0, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to derive otp code: %w", err)
	}
	return code, nil
}

// NewSalt returns a random salt for HashCode.
func NewSalt() (string, error) {
	salt := make([]byte, otpSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(salt), nil
}

// HashCode returns the hex SHA-256 of salt and code.
func HashCode(code, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return hex.EncodeToString(sum[:])
}

// CompareCode reports whether code hashes to expectedHash under salt, in constant time.
func CompareCode(code, salt, expectedHash string) bool {
	actual := HashCode(code, salt)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}

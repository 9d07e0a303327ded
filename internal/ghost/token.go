package ghost

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIVersion is the Admin API version every request targets.
const APIVersion = "v4"

// TokenTTL is how long a signed admin token stays valid.
const TokenTTL = 5 * time.Minute

// ErrInvalidKey is returned for admin keys that are not "<id>:<hex secret>".
var ErrInvalidKey = errors.New("ghost: invalid admin API key")

// AdminKey is a parsed Admin API key.
type AdminKey struct {
	ID     string
	Secret []byte
}

// ParseAdminKey splits an "<id>:<secret>" key and decodes the hex secret.
func ParseAdminKey(raw string) (AdminKey, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || id == "" || secret == "" {
		return AdminKey{}, ErrInvalidKey
	}
	b, err := hex.DecodeString(secret)
	if err != nil {
		return AdminKey{}, fmt.Errorf("%w: secret is not hex", ErrInvalidKey)
	}
	return AdminKey{ID: id, Secret: b}, nil
}

// Audience is the token audience for the admin scope.
func Audience() string {
	return "/" + APIVersion + "/admin/"
}

// SignToken builds the short-lived HS256 token Ghost expects, keyed by the key id.
func SignToken(key AdminKey, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		Audience:  jwt.ClaimStrings{Audience()},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID
	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"skillhub/pkg/interfaces"
)

// Claims carries the hub-specific token payload alongside the registered set.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config holds token verification settings.
type Config struct {
	Secret   string
	Issuer   string
	Lifetime time.Duration
}

// Verifier validates HMAC-signed bearer tokens and extracts the user identity.
type Verifier struct {
	config Config
}

// NewVerifier creates a Verifier with the given configuration.
func NewVerifier(config Config) *Verifier {
	return &Verifier{config: config}
}

// Verify checks the credential signature and expiry and returns the user ID.
func (v *Verifier) Verify(credential string) (string, error) {
	if credential == "" {
		return "", interfaces.ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", interfaces.ErrExpiredCredential
		}
		return "", interfaces.ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", interfaces.ErrInvalidCredential
	}

	if v.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != v.config.Issuer {
			return "", interfaces.ErrInvalidCredential
		}
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", interfaces.ErrInvalidCredential
	}
	return userID, nil
}

// Issue mints a signed token for the given user. Used by tests and fixtures;
// production deployments receive tokens from the platform's auth service.
func (v *Verifier) Issue(userID string) (string, error) {
	now := time.Now()
	lifetime := v.config.Lifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.Secret))
}

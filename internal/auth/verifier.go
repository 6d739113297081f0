// Package auth resolves bearer credentials to verified user identities.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/models"
)

// TokenName is the handshake auth field and cookie carrying the credential.
const TokenName = "token"

// UserLookup is the slice of the store the verifier needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

// Verifier is the identity verifier used by the gateway handshake and the
// HTTP middleware.
type Verifier struct {
	secret []byte
	issuer string
	users  UserLookup
}

func NewVerifier(secret, issuer string, users UserLookup) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, users: users}
}

// Verify resolves a credential to the current identity of an active user.
// Username and role come from the store, not from the token, so renamed or
// re-roled accounts are reflected at the next handshake.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, apperr.Unauthenticated("credential missing")
	}

	claims, err := v.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := v.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Identity{}, apperr.Unauthenticated("user %d no longer exists", claims.UserID)
	}
	if err != nil {
		return models.Identity{}, err
	}
	if !user.IsActive {
		return models.Identity{}, apperr.Unauthenticated("account %d is inactive", user.ID)
	}
	return user.Identity(), nil
}

// ExtractToken finds the bearer credential of a handshake or HTTP request:
// the "token" auth field (query parameter), then the Authorization header,
// then the "token" cookie.
func ExtractToken(r *http.Request) (string, error) {
	if token := r.URL.Query().Get(TokenName); token != "" {
		return token, nil
	}

	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], nil
		}
	}

	if cookie, err := r.Cookie(TokenName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if header != "" {
		return "", apperr.Unauthenticated("invalid authorization header")
	}
	return "", apperr.Unauthenticated("credential missing")
}

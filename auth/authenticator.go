package auth

import (
	"log/slog"

	"commute-chat/errors"
	"commute-chat/repositories"
)

// Authenticator resolves a raw credential into a known user identity.
// Every failure mode (bad signature, expired token, unknown user) collapses
// into errors.ErrInvalidCredential so callers leak nothing to the client.
type Authenticator struct {
	key   []byte
	users repositories.IUserRepository
	log   *slog.Logger
}

func NewAuthenticator(key []byte, users repositories.IUserRepository, log *slog.Logger) *Authenticator {
	return &Authenticator{key: key, users: users, log: log}
}

// Authenticate validates the JWT and checks the identity exists.
func (a *Authenticator) Authenticate(credential string) (string, error) {
	if credential == "" {
		return "", errors.ErrInvalidCredential
	}

	claims, err := ValidateToken(a.key, credential)
	if err != nil {
		a.log.Warn("Rejecting credential", slog.Any("error", err))
		return "", errors.ErrInvalidCredential
	}

	exists, err := a.users.Exists(claims.UserID)
	if err != nil {
		a.log.Error("Failed to check user existence", slog.Any("error", err))
		return "", errors.ErrInvalidCredential
	}
	if !exists {
		a.log.Warn("Rejecting token for unknown user", slog.String("user_id", claims.UserID))
		return "", errors.ErrInvalidCredential
	}

	return claims.UserID, nil
}

package auth

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"commute-chat/domain"
	"commute-chat/errors"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("a_long_test_signing_key_for_unit_tests")

func TestGenerateAndValidateToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testKey, "alice", time.Hour)
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := ValidateToken(testKey, token)
	req.NoError(err)
	req.Equal("alice", claims.UserID)
	req.Equal("commute-chat", claims.Issuer)
}

func TestValidateToken_Rejections(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name  string
		token func() string
	}{
		{"Expired token", func() string {
			token, err := GenerateToken(testKey, "alice", -time.Minute)
			req.NoError(err)
			return token
		}},
		{"Wrong signing key", func() string {
			token, err := GenerateToken([]byte("another_key_entirely_different"), "alice", time.Hour)
			req.NoError(err)
			return token
		}},
		{"Garbage string", func() string { return "not.a.jwt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(testKey, tt.token())
			req.Error(err)
		})
	}
}

type stubUsers struct {
	known map[string]bool
	err   error
}

func (s *stubUsers) Put(_ domain.User) error { return nil }
func (s *stubUsers) Get(_ string) (domain.User, error) {
	return domain.User{}, errors.ErrUserNotFound
}
func (s *stubUsers) Exists(id string) (bool, error)         { return s.known[id], s.err }
func (s *stubUsers) Connections(_ string) ([]string, error) { return nil, nil }

func TestAuthenticator_CollapsesFailures(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	authenticator := NewAuthenticator(testKey, &stubUsers{known: map[string]bool{"alice": true}}, log)

	// Given a valid token for a known user
	token, err := GenerateToken(testKey, "alice", time.Hour)
	req.NoError(err)

	// When authenticating
	identity, err := authenticator.Authenticate(token)

	// Then the identity is resolved
	req.NoError(err)
	req.Equal("alice", identity)

	// And every failure mode yields the same opaque error
	unknownToken, err := GenerateToken(testKey, "nobody", time.Hour)
	req.NoError(err)

	for _, credential := range []string{"", "not.a.jwt", unknownToken} {
		_, err = authenticator.Authenticate(credential)
		req.ErrorIs(err, errors.ErrInvalidCredential)
	}
}

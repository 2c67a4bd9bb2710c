package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/auth"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/store"
	"github.com/openledger/apiserver/types"
)

// CredentialLookup finds the account a sign-in refers to.
type CredentialLookup interface {
	GetByUsername(ctx context.Context, username string) (types.Account, error)
}

// TokenIssuer mints and verifies session tokens.
type TokenIssuer interface {
	Issue(accountID uuid.UUID, username string) (string, error)
	Verify(token string) (auth.Identity, error)
	TTL() time.Duration
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	ExpiresIn time.Duration
}

// AuthService verifies credentials and session tokens.
type AuthService struct {
	accounts CredentialLookup
	hasher   PasswordHasher
	tokens   TokenIssuer
	logger   logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(accounts CredentialLookup, hasher PasswordHasher, tokens TokenIssuer, logger logging.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger.With("component", "auth"),
	}
}

const dummySalt = "0000000000000000"

// Authenticate checks username and password and issues a session token. An
// unknown username and a wrong password yield the same ErrUnauthorized, and
// both pay for one hash computation.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (Session, error) {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Session{}, fmt.Errorf("load account: %w", err)
		}
		s.burnHash(password)
		return Session{}, ErrUnauthorized
	}

	ok, err := s.hasher.Verify(account.CredentialHash, account.CredentialSalt, password)
	if err != nil {
		return Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Debug(ctx, "sign-in rejected", "account_id", account.ID)
		return Session{}, ErrUnauthorized
	}

	token, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresIn: s.tokens.TTL()}, nil
}

// VerifyToken returns the identity proven by a bearer token.
func (s *AuthService) VerifyToken(token string) (auth.Identity, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return identity, nil
}

func (s *AuthService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password", dummySalt)
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, dummySalt, password)
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/cache"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/metrics"
	"github.com/openledger/apiserver/internal/money"
	"github.com/openledger/apiserver/internal/mq"
	"github.com/openledger/apiserver/internal/store"
	"github.com/openledger/apiserver/types"
)

// accountListKey is the single cache entry holding the full account listing.
const accountListKey = "accounts:list"

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account types.Account) (types.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	List(ctx context.Context) ([]types.AccountSummary, error)
}

// PasswordHasher derives and checks salted credential hashes.
type PasswordHasher interface {
	NewSalt() (string, error)
	Hash(password, salt string) (string, error)
	Verify(encoded, salt, password string) (bool, error)
}

// EventPublisher sends best-effort notifications after a change commits.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel, eventType string, event any) (string, error)
}

// AccountService encapsulates account creation, lookup and listing.
type AccountService struct {
	repo   AccountRepository
	hasher PasswordHasher
	cache  cache.Cache
	events EventPublisher
	logger logging.Logger
	now    func() time.Time
}

// NewAccountService wires the directory. cache and events may be nil, which
// disables list caching and event publishing respectively.
func NewAccountService(repo AccountRepository, hasher PasswordHasher, c cache.Cache, events EventPublisher, logger logging.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		hasher: hasher,
		cache:  c,
		events: events,
		logger: logger.With("component", "accounts"),
		now:    time.Now,
	}
}

// Create registers a new account holding the initial balance and returns its id.
func (s *AccountService) Create(ctx context.Context, username, password string, birthdate types.Date) (uuid.UUID, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return uuid.Nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return uuid.Nil, err
	}
	if err := ValidateBirthdate(birthdate, s.now()); err != nil {
		return uuid.Nil, err
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return uuid.Nil, ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("check username: %w", err)
	}

	salt, err := s.hasher.NewSalt()
	if err != nil {
		return uuid.Nil, err
	}
	hash, err := s.hasher.Hash(password, salt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.repo.Create(ctx, types.Account{
		ID:             uuid.New(),
		Username:       username,
		CredentialHash: hash,
		CredentialSalt: salt,
		Birthdate:      birthdate,
		Balance:        money.InitialBalance,
	})
	if err != nil {
		// lost the race against a concurrent signup with the same name
		if errors.Is(err, store.ErrDuplicate) {
			return uuid.Nil, ErrConflict
		}
		return uuid.Nil, fmt.Errorf("create account: %w", err)
	}

	s.InvalidateList(ctx)
	s.publish(ctx, mq.QueueAccounts, types.EventAccountCreated, types.AccountCreatedEvent{
		Type:      types.EventAccountCreated,
		AccountID: account.ID,
		Username:  account.Username,
		CreatedAt: account.CreatedAt,
	})
	s.logger.Info(ctx, "account created", "account_id", account.ID)

	return account.ID, nil
}

// FindByUsername returns the account and true, or false when it does not exist.
func (s *AccountService) FindByUsername(ctx context.Context, username string) (types.Account, bool, error) {
	return found(s.repo.GetByUsername(ctx, strings.TrimSpace(username)))
}

// FindByID returns the account and true, or false when it does not exist.
func (s *AccountService) FindByID(ctx context.Context, id uuid.UUID) (types.Account, bool, error) {
	return found(s.repo.GetByID(ctx, id))
}

func found(account types.Account, err error) (types.Account, bool, error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, false, nil
		}
		return types.Account{}, false, err
	}
	return account, true, nil
}

// ListAll returns every account ordered by username, read through the cache.
// Cache failures are logged and never fail the call.
func (s *AccountService) ListAll(ctx context.Context) ([]types.AccountSummary, error) {
	if cached, ok := s.cachedList(ctx); ok {
		return cached, nil
	}

	summaries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(summaries); err == nil {
			if err := s.cache.Set(ctx, accountListKey, data); err != nil {
				s.logger.Warn(ctx, "cache account list", "error", err)
			}
		}
	}
	return summaries, nil
}

func (s *AccountService) cachedList(ctx context.Context) ([]types.AccountSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, accountListKey)
	if err != nil {
		s.logger.Warn(ctx, "read cached account list", "error", err)
		return nil, false
	}
	metrics.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}

	var summaries []types.AccountSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		s.logger.Warn(ctx, "decode cached account list", "error", err)
		return nil, false
	}
	return summaries, true
}

// InvalidateList drops the cached listing so the next read sees committed
// balances.
func (s *AccountService) InvalidateList(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, accountListKey); err != nil {
		s.logger.Warn(ctx, "invalidate account list", "error", err)
	}
}

func (s *AccountService) publish(ctx context.Context, channel, eventType string, event any) {
	publishEvent(ctx, s.events, s.logger, channel, eventType, event)
}

func publishEvent(ctx context.Context, events EventPublisher, logger logging.Logger, channel, eventType string, event any) {
	if events == nil {
		return
	}
	if _, err := events.PublishEvent(ctx, channel, eventType, event); err != nil {
		logger.Warn(ctx, "publish event", "type", eventType, "error", err)
	}
}

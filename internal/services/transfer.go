package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/dbx"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/metrics"
	"github.com/openledger/apiserver/internal/money"
	"github.com/openledger/apiserver/internal/mq"
	"github.com/openledger/apiserver/internal/store"
	"github.com/openledger/apiserver/types"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 10 * time.Millisecond
)

// ListInvalidator drops cached account listings after balances change.
type ListInvalidator interface {
	InvalidateList(ctx context.Context)
}

// TransferOptions tunes the transfer engine. Zero values pick the defaults;
// a zero Cooldown disables the minimum interval between transfers of the
// same ordered pair.
type TransferOptions struct {
	Cooldown   time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
}

// TransferService moves funds between two accounts in one transaction.
//
// Both account rows are locked with SELECT ... FOR UPDATE in ascending id
// order before any precondition is evaluated, so concurrent transfers that
// touch the same account are serialized by the database and cannot deadlock
// on each other. Serialization failures and deadlocks reported by Postgres
// are retried with exponential backoff.
type TransferService struct {
	db          dbx.Beginner
	opts        TransferOptions
	invalidator ListInvalidator
	events      EventPublisher
	logger      logging.Logger
	now         func() time.Time
}

func NewTransferService(db *sql.DB, opts TransferOptions, invalidator ListInvalidator, events EventPublisher, logger logging.Logger) *TransferService {
	return newTransferService(db, opts, invalidator, events, logger)
}

func newTransferService(db dbx.Beginner, opts TransferOptions, invalidator ListInvalidator, events EventPublisher, logger logging.Logger) *TransferService {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	return &TransferService{
		db:          db,
		opts:        opts,
		invalidator: invalidator,
		events:      events,
		logger:      logger.With("component", "transfer"),
		now:         time.Now,
	}
}

// Transfer debits amount from the sender and credits the receiver. On any
// error neither balance changes. Preconditions are checked in order: distinct
// accounts, valid amount, sender exists, receiver exists, sufficient funds,
// cooldown.
func (s *TransferService) Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	start := time.Now()
	err := s.transfer(ctx, from, to, amount)
	metrics.RecordTransfer(outcome(err), time.Since(start))

	if err != nil {
		if outcome(err) == metrics.OutcomeError {
			s.logger.Error(ctx, "transfer failed", "from", from, "to", to, "error", err)
		} else {
			s.logger.Info(ctx, "transfer rejected", "from", from, "to", to, "reason", err)
		}
		return err
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateList(ctx)
	}
	publishEvent(ctx, s.events, s.logger, mq.QueueTransfers, types.EventTransferCompleted, types.TransferCompletedEvent{
		Type:        types.EventTransferCompleted,
		FromID:      from,
		ToID:        to,
		Amount:      amount,
		CompletedAt: s.now().UTC(),
	})
	s.logger.Info(ctx, "transfer committed", "from", from, "to", to, "amount", money.Format(amount))
	return nil
}

func (s *TransferService) transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	if from == to {
		return NewValidationError("toId", "cannot transfer to the same account")
	}
	if err := money.Validate(amount); err != nil {
		return NewValidationError("amount", err.Error())
	}

	backoff := retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.apply(ctx, store.NewAccountRepository(tx), from, to, amount)
		})
		if store.IsRetryable(err) {
			metrics.RecordTransferRetry()
			s.logger.Debug(ctx, "retrying transfer", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *TransferService) apply(ctx context.Context, repo *store.AccountRepository, from, to uuid.UUID, amount decimal.Decimal) error {
	locked := make(map[uuid.UUID]types.Account, 2)
	for _, id := range lockOrder(from, to) {
		account, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		locked[id] = account
	}

	sender, ok := locked[from]
	if !ok {
		return &AccountNotFoundError{Party: PartySender, ID: from}
	}
	receiver, ok := locked[to]
	if !ok {
		return &AccountNotFoundError{Party: PartyReceiver, ID: to}
	}

	if sender.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	if receiver.Balance.Add(amount).GreaterThan(money.MaxAmount) {
		return NewValidationError("amount", "receiver balance would exceed the maximum")
	}

	now := s.now().UTC()
	if s.opts.Cooldown > 0 {
		last, err := repo.LastTransferAt(ctx, from, to)
		switch {
		case err == nil:
			if now.Sub(last) < s.opts.Cooldown {
				return ErrTransferTooSoon
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	if _, err := repo.AdjustBalance(ctx, from, amount.Neg()); err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if _, err := repo.AdjustBalance(ctx, to, amount); err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}

	if s.opts.Cooldown > 0 {
		if err := repo.MarkTransfer(ctx, from, to, now); err != nil {
			return err
		}
	}
	return nil
}

// lockOrder returns both ids in ascending byte order.
func lockOrder(a, b uuid.UUID) [2]uuid.UUID {
	if bytes.Compare(a[:], b[:]) > 0 {
		return [2]uuid.UUID{b, a}
	}
	return [2]uuid.UUID{a, b}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return metrics.OutcomeInsufficientFunds
	case errors.Is(err, ErrTransferTooSoon):
		return metrics.OutcomeTooSoon
	default:
		return metrics.OutcomeError
	}
}

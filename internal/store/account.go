package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/dbx"
	"github.com/openledger/apiserver/types"
	"github.com/shopspring/decimal"
)

// AccountRepository handles persistence for accounts. It works on either a
// *sql.DB or a *sql.Tx, so the transfer engine can run it inside a transaction.
type AccountRepository struct {
	db dbx.DBTX
}

func NewAccountRepository(db dbx.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, username, password, salt, birthdate, balance, created_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (types.Account, error) {
	var acc types.Account
	err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.CredentialHash,
		&acc.CredentialSalt,
		&acc.Birthdate,
		&acc.Balance,
		&acc.CreatedAt,
	)
	return acc, err
}

func (r *AccountRepository) Create(ctx context.Context, acc types.Account) (types.Account, error) {
	const query = `
		INSERT INTO accounts (id, username, password, salt, birthdate, balance)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		acc.ID,
		acc.Username,
		acc.CredentialHash,
		acc.CredentialSalt,
		acc.Birthdate,
		acc.Balance,
	).Scan(&acc.CreatedAt)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// GetForUpdate reads the account and holds a row lock on it until the
// surrounding transaction ends. It must be called on a transaction handle.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *AccountRepository) getOne(ctx context.Context, query string, arg any) (types.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, fmt.Errorf("select account: %w", err)
	}
	return acc, nil
}

// List returns every account ordered by username.
func (r *AccountRepository) List(ctx context.Context) ([]types.AccountSummary, error) {
	const query = `
		SELECT id, username, birthdate, balance
		FROM accounts
		ORDER BY username`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	summaries := make([]types.AccountSummary, 0)
	for rows.Next() {
		var s types.AccountSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.Birthdate, &s.Balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return summaries, nil
}

// AdjustBalance adds delta (which may be negative) to the balance and returns
// the new value.
func (r *AccountRepository) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2
		WHERE id = $1
		RETURNING balance`
	var balance decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}

// LastTransferAt returns when from last sent funds to to. ErrNotFound means
// the pair has never transferred.
func (r *AccountRepository) LastTransferAt(ctx context.Context, from, to uuid.UUID) (time.Time, error) {
	const query = `
		SELECT last_transfer_at
		FROM transfer_cooldowns
		WHERE from_id = $1 AND to_id = $2`
	var at time.Time
	if err := r.db.QueryRowContext(ctx, query, from, to).Scan(&at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("select last transfer: %w", err)
	}
	return at, nil
}

// MarkTransfer records at as the latest transfer time of the ordered pair.
func (r *AccountRepository) MarkTransfer(ctx context.Context, from, to uuid.UUID, at time.Time) error {
	const query = `
		INSERT INTO transfer_cooldowns (from_id, to_id, last_transfer_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_id, to_id) DO UPDATE SET last_transfer_at = EXCLUDED.last_transfer_at`
	if _, err := r.db.ExecContext(ctx, query, from, to, at); err != nil {
		return fmt.Errorf("record transfer time: %w", err)
	}
	return nil
}

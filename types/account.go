package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a ledger account.
// It contains identity, login credentials, and the monetary balance.
type Account struct {
	// ID is the unique identifier of the account, generated at creation.
	ID uuid.UUID `json:"id"`

	// Username is the unique login name chosen by the user.
	// It cannot be changed after creation.
	Username string `json:"username"`

	// CredentialHash stores the encoded argon2id hash of the salted password
	// (column password).
	// This field is never exposed in API responses.
	CredentialHash string `json:"-"`

	// CredentialSalt is the per-account random salt mixed into the password hash
	// (column salt).
	// This field is never exposed in API responses.
	CredentialSalt string `json:"-"`

	// Birthdate is informational only.
	Birthdate Date `json:"birthdate"`

	// Balance is the current balance with two fractional digits.
	// It is never negative at a committed state.
	Balance decimal.Decimal `json:"balance"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the public view of the account.
func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:        a.ID,
		Username:  a.Username,
		Birthdate: a.Birthdate,
		Balance:   a.Balance,
	}
}

// AccountSummary is the listing view of an account, without credential material.
type AccountSummary struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Birthdate Date            `json:"birthdate"`
	Balance   decimal.Decimal `json:"balance"`
}

// MarshalJSON renders the balance with exactly two fractional digits.
func (s AccountSummary) MarshalJSON() ([]byte, error) {
	type alias AccountSummary
	return json.Marshal(struct {
		alias
		Balance string `json:"balance"`
	}{
		alias:   alias(s),
		Balance: s.Balance.StringFixed(2),
	})
}

package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names published after a change commits.
const (
	EventAccountCreated    = "account.created"
	EventTransferCompleted = "transfer.completed"
)

// AccountCreatedEvent announces a new account.
type AccountCreatedEvent struct {
	Type      string    `json:"type"`
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TransferCompletedEvent announces a committed transfer.
type TransferCompletedEvent struct {
	Type        string          `json:"type"`
	FromID      uuid.UUID       `json:"from_id"`
	ToID        uuid.UUID       `json:"to_id"`
	Amount      decimal.Decimal `json:"amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

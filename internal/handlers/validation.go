package handlers

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/money"
	"github.com/openledger/apiserver/internal/services"
	"github.com/openledger/apiserver/types"
	"github.com/shopspring/decimal"
)

type SignupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Birthdate string `json:"birthdate"`
}

// Validate checks the request and returns the parsed birthdate.
func (req *SignupRequest) Validate(now time.Time) (types.Date, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := services.ValidateUsername(req.Username); err != nil {
		return types.Date{}, err
	}
	if err := services.ValidatePassword(req.Password); err != nil {
		return types.Date{}, err
	}
	birthdate, err := types.ParseDate(strings.TrimSpace(req.Birthdate))
	if err != nil {
		return types.Date{}, services.NewValidationError("birthdate", "must be a date formatted YYYY-MM-DD")
	}
	if err := services.ValidateBirthdate(birthdate, now); err != nil {
		return types.Date{}, err
	}
	return birthdate, nil
}

type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req *SigninRequest) Validate() error {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return services.NewValidationError("username", "must not be empty")
	}
	if req.Password == "" {
		return services.NewValidationError("password", "must not be empty")
	}
	return nil
}

// Amount accepts a JSON number or a JSON string and keeps its exact decimal
// text, so 0.1 is never rounded through a float.
type Amount struct {
	raw string
	set bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.raw, a.set = s, true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	a.raw, a.set = n.String(), true
	return nil
}

type TransferRequest struct {
	ToID   string `json:"toId"`
	Amount Amount `json:"amount"`
}

// Validate checks the request and returns the receiver id and amount.
func (req *TransferRequest) Validate() (uuid.UUID, decimal.Decimal, error) {
	toID, err := uuid.Parse(strings.TrimSpace(req.ToID))
	if err != nil {
		return uuid.Nil, decimal.Zero, services.NewValidationError("toId", "must be a UUID")
	}
	if !req.Amount.set {
		return uuid.Nil, decimal.Zero, services.NewValidationError("amount", "is required")
	}
	amount, err := money.Parse(req.Amount.raw)
	if err != nil {
		return uuid.Nil, decimal.Zero, services.NewValidationError("amount", err.Error())
	}
	return toID, amount, nil
}

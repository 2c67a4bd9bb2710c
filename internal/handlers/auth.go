package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/auth"
	"github.com/openledger/apiserver/internal/logging"
	"github.com/openledger/apiserver/internal/services"
	"github.com/openledger/apiserver/types"
)

// AccountDirectory creates and lists accounts.
type AccountDirectory interface {
	Create(ctx context.Context, username, password string, birthdate types.Date) (uuid.UUID, error)
	ListAll(ctx context.Context) ([]types.AccountSummary, error)
}

// Authenticator signs users in and verifies their bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (services.Session, error)
	VerifyToken(token string) (auth.Identity, error)
}

// UserHandler serves signup, signin and the account listing.
type UserHandler struct {
	accounts AccountDirectory
	authn    Authenticator
	logger   logging.Logger
	now      func() time.Time
}

func NewUserHandler(accounts AccountDirectory, authn Authenticator, logger logging.Logger) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		authn:    authn,
		logger:   logger,
		now:      time.Now,
	}
}

// UserRouter registers the /users routes. signinLimit guards signin against
// password guessing; it may be nil.
func UserRouter(r chi.Router, accounts AccountDirectory, authn Authenticator, signinLimit func(http.Handler) http.Handler, logger logging.Logger) {
	handler := NewUserHandler(accounts, authn, logger)

	r.Post("/signup", handler.Signup)
	if signinLimit != nil {
		r.With(signinLimit).Post("/signin", handler.Signin)
	} else {
		r.Post("/signin", handler.Signin)
	}
	r.With(RequireAuth(authn)).Get("/", handler.List)
}

// RequireAuth enforces bearer token authentication and injects the verified
// identity into the request context.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			identity, err := authn.VerifyToken(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// Signup creates a new account holding the initial balance.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	birthdate, err := req.Validate(h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	id, err := h.accounts.Create(r.Context(), req.Username, req.Password, birthdate)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{ID: id})
}

// Signin verifies credentials and returns a session token.
func (h *UserHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.authn.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SigninResponse{
		Token:     session.Token,
		ExpiresIn: int64(session.ExpiresIn / time.Second),
	})
}

// List returns every account without credential material.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: users})
}

type SignupResponse struct {
	ID uuid.UUID `json:"id"`
}

type SigninResponse struct {
	Token string `json:"token"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

type ListUsersResponse struct {
	Users []types.AccountSummary `json:"users"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

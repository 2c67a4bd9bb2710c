package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/openledger/apiserver/internal/auth"
	"github.com/openledger/apiserver/internal/store"
	"github.com/openledger/apiserver/types"
)

// cheap argon2 parameters keep the suite fast
var testHasher = auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32})

type fakeAccountRepo struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]types.Account
	listCalls int
	// raceOnCreate makes Create report a duplicate as if another request
	// inserted the same username between the pre-check and the insert.
	raceOnCreate bool
	err          error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]types.Account)}
}

func (f *fakeAccountRepo) Create(_ context.Context, account types.Account) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Account{}, f.err
	}
	if f.raceOnCreate {
		return types.Account{}, store.ErrDuplicate
	}
	for _, existing := range f.accounts {
		if existing.Username == account.Username {
			return types.Account{}, store.ErrDuplicate
		}
	}
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id uuid.UUID) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Account{}, f.err
	}
	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccountRepo) GetByUsername(_ context.Context, username string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Account{}, f.err
	}
	for _, account := range f.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeAccountRepo) List(_ context.Context) ([]types.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.AccountSummary, 0, len(f.accounts))
	for _, account := range f.accounts {
		out = append(out, account.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateList(context.Context) {
	f.calls++
}

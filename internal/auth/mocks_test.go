package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/joysparks/internal/model"
	"github.com/hitoshi/joysparks/internal/repository"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.Account, error)
	findBySubjectIDFn func(ctx context.Context, subjectID string) (*model.Account, error)
	findByUsernameFn  func(ctx context.Context, username string) (*model.Account, error)
	insertFn          func(ctx context.Context, account *model.Account) error
	linkSubjectFn     func(ctx context.Context, id, subjectID string, updatedAt time.Time) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindBySubjectID(ctx context.Context, subjectID string) (*model.Account, error) {
	if m.findBySubjectIDFn != nil {
		return m.findBySubjectIDFn(ctx, subjectID)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockAccountRepo) Insert(ctx context.Context, account *model.Account) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, account)
	}
	return nil
}

func (m *mockAccountRepo) LinkSubject(ctx context.Context, id, subjectID string, updatedAt time.Time) error {
	if m.linkSubjectFn != nil {
		return m.linkSubjectFn(ctx, id, subjectID, updatedAt)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*model.FederatedClaim, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.FederatedClaim, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

type mockTokenVerifier struct {
	verifyFn func(ctx context.Context, rawToken string) (*model.FederatedClaim, error)
}

func (m *mockTokenVerifier) Verify(ctx context.Context, rawToken string) (*model.FederatedClaim, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, rawToken)
	}
	return nil, nil
}

// memoryAccountRepo は一意制約を再現するインメモリのAccountRepository。
type memoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	inserts  int
	links    int
}

func newMemoryAccountRepo(seed ...model.Account) *memoryAccountRepo {
	r := &memoryAccountRepo{accounts: make(map[string]model.Account)}
	for _, a := range seed {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *memoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (r *memoryAccountRepo) FindBySubjectID(_ context.Context, subjectID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if sub, ok := a.Credentials.SubjectID(); ok && sub == subjectID {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memoryAccountRepo) FindByUsername(_ context.Context, username string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memoryAccountRepo) Insert(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, hasSub := account.Credentials.SubjectID()
	for _, a := range r.accounts {
		if a.Username == account.Username {
			return fmt.Errorf("insert: %w", repository.ErrConflict)
		}
		if other, ok := a.Credentials.SubjectID(); hasSub && ok && other == sub {
			return fmt.Errorf("insert: %w", repository.ErrConflict)
		}
	}
	r.accounts[account.ID] = *account
	r.inserts++
	return nil
}

func (r *memoryAccountRepo) LinkSubject(_ context.Context, id, subjectID string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("link: %w", repository.ErrConflict)
	}
	if _, linked := a.Credentials.SubjectID(); linked {
		return fmt.Errorf("link: %w", repository.ErrConflict)
	}
	for _, other := range r.accounts {
		if sub, ok := other.Credentials.SubjectID(); ok && sub == subjectID {
			return fmt.Errorf("link: %w", repository.ErrConflict)
		}
	}
	a.Credentials = a.Credentials.WithSubject(subjectID)
	a.UpdatedAt = updatedAt
	r.accounts[id] = a
	r.links++
	return nil
}

func (r *memoryAccountRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.AccountRepository = (*memoryAccountRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ TokenVerifier = (*mockTokenVerifier)(nil)

package withdrawal

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referralpay/ledger/internal/ledger"
	typesmember "github.com/referralpay/ledger/internal/types/member"
	"github.com/referralpay/ledger/internal/types/policy"
	"github.com/referralpay/ledger/internal/types/withdrawal"
)

// fakeStore emulates the storage contract: request rows, member balances
// and idempotency-keyed entries behind one mutex.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]*withdrawal.Request
	members  map[int64]*typesmember.Member
	keys     map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		requests: make(map[int64]*withdrawal.Request),
		members:  make(map[int64]*typesmember.Member),
		keys:     make(map[string]struct{}),
	}
}

func (f *fakeStore) addMember(m *typesmember.Member) {
	f.members[m.ID] = m
}

func (f *fakeStore) CreateRequest(ctx context.Context, req *withdrawal.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req.ID = f.nextID
	f.nextID++
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeStore) FindRequestByID(ctx context.Context, id int64) (*withdrawal.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListRequests(ctx context.Context, filter withdrawal.ListFilter) ([]withdrawal.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []withdrawal.Request
	for _, r := range f.requests {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) ListRequestsByMember(ctx context.Context, memberID int64) ([]withdrawal.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []withdrawal.Request
	for _, r := range f.requests {
		if r.MemberID == memberID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) applyEntry(memberID int64, amount decimal.Decimal, key string) error {
	if _, ok := f.keys[key]; ok {
		return nil
	}
	m := f.members[memberID]
	next := m.Balance.Add(amount)
	if next.IsNegative() {
		return ledger.ErrInsufficientFunds
	}
	m.Balance = next
	f.keys[key] = struct{}{}
	return nil
}

func (f *fakeStore) ApproveRequest(ctx context.Context, id int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.State != withdrawal.StatePending && r.State != withdrawal.StateRejected {
		return ErrInvalidStateTransition
	}
	if err := f.applyEntry(r.MemberID, r.Amount.Neg(), key); err != nil {
		return err
	}
	m := f.members[r.MemberID]
	m.TotalWithdrawal = m.TotalWithdrawal.Add(r.Amount)
	now := time.Now().UTC()
	r.State = withdrawal.StateApproved
	r.Approvals++
	r.DecisionReason = nil
	r.DecidedAt = &now
	return nil
}

func (f *fakeStore) RejectRequest(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.State != withdrawal.StatePending {
		return ErrInvalidStateTransition
	}
	now := time.Now().UTC()
	r.State = withdrawal.StateRejected
	r.DecisionReason = &reason
	r.DecidedAt = &now
	return nil
}

func (f *fakeStore) ReverseApproval(ctx context.Context, id int64, key, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.State != withdrawal.StateApproved {
		return ErrInvalidStateTransition
	}
	if err := f.applyEntry(r.MemberID, r.Amount, key); err != nil {
		return err
	}
	m := f.members[r.MemberID]
	m.TotalWithdrawal = m.TotalWithdrawal.Sub(r.Amount)
	now := time.Now().UTC()
	r.State = withdrawal.StateRejected
	r.DecisionReason = &reason
	r.DecidedAt = &now
	return nil
}

func (f *fakeStore) DeleteRequest(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.State == withdrawal.StateApproved {
		return ErrInvalidStateTransition
	}
	delete(f.requests, id)
	return nil
}

func (f *fakeStore) PurgeRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.requests {
		if r.State == withdrawal.StateRejected && r.DecidedAt != nil && r.DecidedAt.Before(cutoff) {
			delete(f.requests, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindMemberByID(ctx context.Context, id int64) (*typesmember.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

type stubLimits struct {
	min decimal.Decimal
	err error
}

func (s *stubLimits) MinWithdrawal(ctx context.Context, level int) (*policy.WithdrawalLimit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &policy.WithdrawalLimit{Level: level, MinAmount: s.min}, nil
}

func setup(t *testing.T, balance int64) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	store.addMember(&typesmember.Member{
		ID:            1,
		Balance:       decimal.NewFromInt(balance),
		WalletAddress: "TRX-abc",
		Status:        typesmember.StatusApproved,
	})
	return NewService(store, store, &stubLimits{min: decimal.NewFromInt(10)}), store
}

func TestCreateAndApprove(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatePending, req.State)
	assert.Equal(t, "TRX-abc", req.WalletAddress)

	updated, err := svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StateApproved, updated.State)

	m := store.members[1]
	assert.True(t, m.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, m.TotalWithdrawal.Equal(decimal.NewFromInt(50)))
}

func TestRejectApprovedReversesDebit(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)

	updated, err := svc.Transition(context.Background(), req.ID, ActionReject, "wrong wallet")
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StateRejected, updated.State)
	require.NotNil(t, updated.DecisionReason)
	assert.Equal(t, "wrong wallet", *updated.DecisionReason)

	m := store.members[1]
	assert.True(t, m.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, m.TotalWithdrawal.IsZero())
}

func TestReApproveAfterReversalDebitsAgain(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionReject, "hold on")
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)

	m := store.members[1]
	assert.True(t, m.Balance.Equal(decimal.NewFromInt(50)), "second approval must debit under a fresh key")
	assert.True(t, m.TotalWithdrawal.Equal(decimal.NewFromInt(50)))
}

func TestCreateBelowMinimum(t *testing.T) {
	svc, _ := setup(t, 100)

	_, err := svc.Create(context.Background(), 1, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestCreateOverBalance(t *testing.T) {
	svc, _ := setup(t, 20)

	_, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestCreateRequiresWallet(t *testing.T) {
	store := newFakeStore()
	store.addMember(&typesmember.Member{
		ID:      1,
		Balance: decimal.NewFromInt(100),
		Status:  typesmember.StatusApproved,
	})
	svc := NewService(store, store, &stubLimits{min: decimal.NewFromInt(10)})

	_, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ErrNoWalletAddress)
}

func TestCreateBlockedMember(t *testing.T) {
	store := newFakeStore()
	store.addMember(&typesmember.Member{
		ID:            1,
		Balance:       decimal.NewFromInt(100),
		WalletAddress: "TRX-abc",
		Status:        typesmember.StatusBlocked,
	})
	svc := NewService(store, store, &stubLimits{min: decimal.NewFromInt(10)})

	_, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ErrMemberBlocked)
}

func TestApproveTwiceConflicts(t *testing.T) {
	svc, _ := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestDeleteApprovedConflicts(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), req.ID, ActionDelete, "")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Len(t, store.requests, 1)
}

func TestDeletePending(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	updated, err := svc.Transition(context.Background(), req.ID, ActionDelete, "")
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Empty(t, store.requests)
}

func TestUnknownAction(t *testing.T) {
	svc, _ := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), req.ID, "escalate", "")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

// The documented state values are lowercase; the filter accepts any casing
// and serialized requests expose the lowercase forms.
func TestListFilterStateLowercase(t *testing.T) {
	svc, _ := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"state":"pending"`)

	for _, state := range []withdrawal.State{"pending", "PENDING", "Pending"} {
		requests, err := svc.List(context.Background(), withdrawal.ListFilter{State: state})
		require.NoError(t, err)
		assert.Len(t, requests, 1, "state filter %q must match", state)
	}

	requests, err := svc.List(context.Background(), withdrawal.ListFilter{State: "approved"})
	require.NoError(t, err)
	assert.Empty(t, requests)
}

// Two admins racing approve against reject on one pending request: the
// store serializes them, the loser's precondition fails cleanly and the
// balance moves exactly once.
func TestConcurrentApproveAndReject(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Transition(context.Background(), req.ID, ActionApprove, "")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Transition(context.Background(), req.ID, ActionReject, "changed my mind")
		errs <- err
	}()
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, ErrInvalidStateTransition)
		}
	}
	assert.LessOrEqual(t, failures, 1)

	final, err := svc.ListByMember(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, final, 1)

	m := store.members[1]
	switch final[0].State {
	case withdrawal.StateApproved:
		assert.True(t, m.Balance.Equal(decimal.NewFromInt(50)))
		assert.True(t, m.TotalWithdrawal.Equal(decimal.NewFromInt(50)))
	case withdrawal.StateRejected:
		assert.True(t, m.Balance.Equal(decimal.NewFromInt(100)))
		assert.True(t, m.TotalWithdrawal.IsZero())
	default:
		t.Fatalf("unexpected final state %q", final[0].State)
	}
}

func TestPurgeRejected(t *testing.T) {
	svc, store := setup(t, 100)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionReject, "stale")
	require.NoError(t, err)

	old := time.Now().UTC().Add(-48 * time.Hour)
	store.requests[req.ID].DecidedAt = &old

	n, err := svc.PurgeRejected(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, store.requests)
}

func TestHandlerTransitionRejectNeedsReason(t *testing.T) {
	svc, _ := setup(t, 100)
	handler := NewHandler(svc)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)

	r := newTransitionRequest(t, req.ID, `{"action":"reject"}`)
	w := httptest.NewRecorder()
	handler.TransitionRequest(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerTransitionConflict(t *testing.T) {
	svc, _ := setup(t, 100)
	handler := NewHandler(svc)

	req, err := svc.Create(context.Background(), 1, decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), req.ID, ActionApprove, "")
	require.NoError(t, err)

	r := newTransitionRequest(t, req.ID, `{"action":"approve"}`)
	w := httptest.NewRecorder()
	handler.TransitionRequest(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerTransitionNotFound(t *testing.T) {
	svc, _ := setup(t, 100)
	handler := NewHandler(svc)

	r := newTransitionRequest(t, 999, `{"action":"approve"}`)
	w := httptest.NewRecorder()
	handler.TransitionRequest(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func newTransitionRequest(t *testing.T, id int64, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/withdrawals/transition", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", strconv.FormatInt(id, 10))
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

package ledger

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referralpay/ledger/internal/middleware"
	"github.com/referralpay/ledger/internal/types/member"
)

type stubEntryRepo struct {
	balances map[int64]decimal.Decimal
	seen     map[string]decimal.Decimal
	errApply error
}

func newStubEntryRepo() *stubEntryRepo {
	return &stubEntryRepo{
		balances: make(map[int64]decimal.Decimal),
		seen:     make(map[string]decimal.Decimal),
	}
}

func (r *stubEntryRepo) ApplyEntry(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, bool, error) {
	if r.errApply != nil {
		return decimal.Zero, false, r.errApply
	}
	if prior, ok := r.seen[key]; ok {
		return prior, false, nil
	}
	next := r.balances[memberID].Add(amount)
	if next.IsNegative() {
		return decimal.Zero, false, ErrInsufficientFunds
	}
	r.balances[memberID] = next
	r.seen[key] = next
	return next, true, nil
}

type stubMemberReader struct {
	members map[int64]*member.Member
}

func (r *stubMemberReader) FindMemberByID(ctx context.Context, id int64) (*member.Member, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m, nil
}

func TestCreditAndDebit(t *testing.T) {
	repo := newStubEntryRepo()
	svc := NewService(repo, &stubMemberReader{})

	bal, err := svc.Credit(context.Background(), 1, decimal.NewFromInt(100), "k1", "test credit")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(100)))

	bal, err = svc.Debit(context.Background(), 1, decimal.NewFromInt(40), "k2", "test debit")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(60)))
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newStubEntryRepo(), &stubMemberReader{})

	_, err := svc.Credit(context.Background(), 1, decimal.Zero, "k", "r")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Debit(context.Background(), 1, decimal.NewFromInt(-5), "k", "r")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDebitInsufficientFunds(t *testing.T) {
	repo := newStubEntryRepo()
	svc := NewService(repo, &stubMemberReader{})

	_, err := svc.Credit(context.Background(), 1, decimal.NewFromInt(30), "k1", "r")
	require.NoError(t, err)

	_, err = svc.Debit(context.Background(), 1, decimal.NewFromInt(50), "k2", "r")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRepeatedKeyIsNoOp(t *testing.T) {
	repo := newStubEntryRepo()
	svc := NewService(repo, &stubMemberReader{})

	first, err := svc.Credit(context.Background(), 1, decimal.NewFromInt(25), "same-key", "r")
	require.NoError(t, err)

	second, err := svc.Credit(context.Background(), 1, decimal.NewFromInt(25), "same-key", "r")
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.True(t, repo.balances[1].Equal(decimal.NewFromInt(25)))
}

func TestSummaryUnknownMember(t *testing.T) {
	svc := NewService(newStubEntryRepo(), &stubMemberReader{members: map[int64]*member.Member{}})

	_, err := svc.Summary(context.Background(), 42)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestHandlerGetBalance(t *testing.T) {
	members := &stubMemberReader{members: map[int64]*member.Member{
		7: {ID: 7, Balance: decimal.NewFromInt(80), Level: 2, TeamSize: 14},
	}}
	handler := NewHandler(NewService(newStubEntryRepo(), members))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req = req.WithContext(middleware.ContextWithMemberID(req.Context(), 7))

	w := httptest.NewRecorder()
	handler.GetBalance(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerGetBalanceNotFound(t *testing.T) {
	members := &stubMemberReader{members: map[int64]*member.Member{}}
	handler := NewHandler(NewService(newStubEntryRepo(), members))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req = req.WithContext(middleware.ContextWithMemberID(req.Context(), 7))

	w := httptest.NewRecorder()
	handler.GetBalance(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

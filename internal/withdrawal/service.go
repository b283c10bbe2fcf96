package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/monitoring"
	"github.com/referralpay/ledger/internal/types/withdrawal"
)

var (
	ErrBelowMinimum           = errors.New("amount below level minimum")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMemberBlocked          = errors.New("member is blocked")
	ErrNoWalletAddress        = errors.New("wallet address not configured")
	ErrRequestNotFound        = errors.New("withdrawal request not found")
	ErrUnknownAction          = errors.New("unknown action")
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionDelete  = "delete"
)

type Service struct {
	repo    RequestRepository
	members MemberReader
	limits  LimitProvider
}

func NewService(repo RequestRepository, members MemberReader, limits LimitProvider) *Service {
	return &Service{repo: repo, members: members, limits: limits}
}

// Create validates and stores a new PENDING request. The wallet address is
// snapshotted onto the request so later profile edits cannot redirect an
// already-filed payout.
func (s *Service) Create(ctx context.Context, memberID int64, amount decimal.Decimal) (*withdrawal.Request, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	m, err := s.members.FindMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !m.Status.Active() {
		return nil, ErrMemberBlocked
	}
	if m.WalletAddress == "" {
		return nil, ErrNoWalletAddress
	}
	limit, err := s.limits.MinWithdrawal(ctx, m.Level)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(limit.MinAmount) {
		return nil, ErrBelowMinimum
	}
	if amount.GreaterThan(m.Balance) {
		return nil, ledger.ErrInsufficientFunds
	}

	req := &withdrawal.Request{
		MemberID:      memberID,
		Amount:        amount,
		State:         withdrawal.StatePending,
		WalletAddress: m.WalletAddress,
		RequestedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Transition applies an administrator action to a request. Exactly one of
// two concurrent conflicting transitions succeeds; the loser observes
// ErrInvalidStateTransition and must re-read before retrying.
func (s *Service) Transition(ctx context.Context, requestID int64, action, reason string) (*withdrawal.Request, error) {
	req, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionApprove:
		err = s.approve(ctx, req)
	case ActionReject:
		err = s.reject(ctx, req, reason)
	case ActionDelete:
		err = s.delete(ctx, req)
	default:
		return nil, ErrUnknownAction
	}
	monitoring.WithdrawalTransitions.WithLabelValues(action, result(err)).Inc()
	if err != nil {
		return nil, err
	}
	if action == ActionDelete {
		return nil, nil
	}
	return s.repo.FindRequestByID(ctx, requestID)
}

func (s *Service) approve(ctx context.Context, req *withdrawal.Request) error {
	if req.State == withdrawal.StateApproved {
		return ErrInvalidStateTransition
	}
	m, err := s.members.FindMemberByID(ctx, req.MemberID)
	if err != nil {
		return err
	}
	limit, err := s.limits.MinWithdrawal(ctx, m.Level)
	if err != nil {
		return err
	}
	if req.Amount.LessThan(limit.MinAmount) {
		return ErrBelowMinimum
	}
	// The debit key is derived from the approvals counter, which only
	// advances when the approval commits. A retry after a transient
	// failure reuses the same key and cannot double-debit, while each
	// later re-approval after a reversal debits anew.
	key := fmt.Sprintf("withdrawal:%d:approve:%d", req.ID, req.Approvals+1)
	return s.repo.ApproveRequest(ctx, req.ID, key)
}

func (s *Service) reject(ctx context.Context, req *withdrawal.Request, reason string) error {
	switch req.State {
	case withdrawal.StatePending:
		return s.repo.RejectRequest(ctx, req.ID, reason)
	case withdrawal.StateApproved:
		key := fmt.Sprintf("withdrawal:%d:reverse-approve:%d", req.ID, req.Approvals)
		return s.repo.ReverseApproval(ctx, req.ID, key, reason)
	default:
		return ErrInvalidStateTransition
	}
}

// delete is allowed only while PENDING or REJECTED: an APPROVED request
// holds a committed debit's audit trail and must be reversed first.
func (s *Service) delete(ctx context.Context, req *withdrawal.Request) error {
	if req.State == withdrawal.StateApproved {
		return ErrInvalidStateTransition
	}
	return s.repo.DeleteRequest(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, filter withdrawal.ListFilter) ([]withdrawal.Request, error) {
	filter.State = withdrawal.State(strings.ToLower(string(filter.State)))
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListRequests(ctx, filter)
}

func (s *Service) ListByMember(ctx context.Context, memberID int64) ([]withdrawal.Request, error) {
	return s.repo.ListRequestsByMember(ctx, memberID)
}

// PurgeRejected removes rejected requests older than the retention window.
func (s *Service) PurgeRejected(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeRejectedBefore(ctx, time.Now().UTC().Add(-retention))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package withdrawal

import (
	"context"
	"time"

	"github.com/referralpay/ledger/internal/types/member"
	"github.com/referralpay/ledger/internal/types/policy"
	"github.com/referralpay/ledger/internal/types/withdrawal"
)

// RequestRepository owns withdrawal request rows. The transition methods
// are atomic: a compare-and-set on state plus the balance side effect
// commit together or not at all, serialized per member.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *withdrawal.Request) error
	FindRequestByID(ctx context.Context, id int64) (*withdrawal.Request, error)
	ListRequests(ctx context.Context, filter withdrawal.ListFilter) ([]withdrawal.Request, error)
	ListRequestsByMember(ctx context.Context, memberID int64) ([]withdrawal.Request, error)

	// ApproveRequest moves PENDING or REJECTED to APPROVED, debits the
	// member under the given idempotency key, adds the amount to
	// total_withdrawal and bumps the approvals counter.
	ApproveRequest(ctx context.Context, id int64, key string) error
	// RejectRequest moves PENDING to REJECTED. No balance effect.
	RejectRequest(ctx context.Context, id int64, reason string) error
	// ReverseApproval moves APPROVED to REJECTED, credits the amount back
	// under the given key and subtracts it from total_withdrawal.
	ReverseApproval(ctx context.Context, id int64, key, reason string) error
	// DeleteRequest removes a PENDING or REJECTED row.
	DeleteRequest(ctx context.Context, id int64) error

	PurgeRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type MemberReader interface {
	FindMemberByID(ctx context.Context, id int64) (*member.Member, error)
}

// LimitProvider yields the per-level minimum at the moment of evaluation.
type LimitProvider interface {
	MinWithdrawal(ctx context.Context, level int) (*policy.WithdrawalLimit, error)
}


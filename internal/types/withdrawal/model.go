package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

type Request struct {
	ID             int64           `db:"id" json:"id"`
	MemberID       int64           `db:"member_id" json:"member_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	State          State           `db:"state" json:"state"`
	// WalletAddress is snapshotted at creation and never updated afterwards.
	WalletAddress  string          `db:"wallet_address" json:"wallet_address"`
	DecisionReason *string         `db:"decision_reason" json:"decision_reason,omitempty"`
	// Approvals counts committed approvals; the debit idempotency key for
	// the next approval is derived from it.
	Approvals   int        `db:"approvals" json:"-"`
	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	DecidedAt   *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}

type CreateRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransitionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// ListFilter narrows the admin listing. Search matches request id, member
// id or the snapshotted wallet address.
type ListFilter struct {
	State  State
	Search string
	Limit  int
	Offset int
}

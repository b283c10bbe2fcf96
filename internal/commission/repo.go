package commission

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/types/member"
	"github.com/referralpay/ledger/internal/types/policy"
)

type MemberRepository interface {
	FindMemberByID(ctx context.Context, id int64) (*member.Member, error)
	// ConfirmPayment flips the member to payment-confirmed and approved
	// and, in the same transaction, walks the referral chain to the root
	// adding one to every ancestor's team size and day/week/month join
	// counters. Returns the ancestor ids, closest first. A member already
	// confirmed (retried event) yields false and no counter movement.
	ConfirmPayment(ctx context.Context, memberID int64) (bool, []int64, error)
	IncrementDirectReferrals(ctx context.Context, memberID int64) (int, error)
}

type PolicyProvider interface {
	CommissionRateFor(ctx context.Context, memberID int64) (*policy.CommissionRate, error)
	ListBonusRules(ctx context.Context) ([]policy.BonusRule, error)
	GetSettings(ctx context.Context) (*policy.Settings, error)
}

type Creditor interface {
	Credit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error)
}

type LevelRecomputer interface {
	Recompute(ctx context.Context, memberID int64) (int, error)
}

package level

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/types/member"
	"github.com/referralpay/ledger/internal/types/policy"
)

type MemberRepository interface {
	FindMemberByID(ctx context.Context, id int64) (*member.Member, error)
	UpdateMemberLevel(ctx context.Context, memberID int64, level int) error

	// ListWeeklySalaryCandidates returns active members at the given level
	// whose join counter for the week starting at weekStart meets minJoins.
	ListWeeklySalaryCandidates(ctx context.Context, level, minJoins int, weekStart time.Time) ([]member.Member, error)
	// ListMonthlySalaryCandidates returns active members whose join counter
	// for the month starting at monthStart is in [minJoins, maxJoins).
	// maxJoins < 0 means unbounded.
	ListMonthlySalaryCandidates(ctx context.Context, minJoins, maxJoins int, monthStart time.Time) ([]member.Member, error)
}

type DefinitionProvider interface {
	ListLevelDefinitions(ctx context.Context) ([]policy.LevelDefinition, error)
	ListMonthlyLevelDefinitions(ctx context.Context) ([]policy.MonthlyLevelDefinition, error)
}

// Creditor is the Balance Store's credit path; the tracker never debits.
type Creditor interface {
	Credit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error)
}

package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/types/member"
)

// EntryRepository applies signed balance mutations atomically. The
// idempotency key is unique per triggering event: a repeated key must not
// mutate again and returns the balance recorded by the first application
// (applied=false).
type EntryRepository interface {
	ApplyEntry(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (balance decimal.Decimal, applied bool, err error)
}

type MemberReader interface {
	FindMemberByID(ctx context.Context, id int64) (*member.Member, error)
}

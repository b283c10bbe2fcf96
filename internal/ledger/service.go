package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/monitoring"
	"github.com/referralpay/ledger/internal/types/member"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMemberNotFound    = errors.New("member not found")
)

type Service struct {
	entries EntryRepository
	members MemberReader
}

func NewService(entries EntryRepository, members MemberReader) *Service {
	return &Service{entries: entries, members: members}
}

// Credit adds amount to the member balance exactly once per key.
func (s *Service) Credit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, applied, err := s.entries.ApplyEntry(ctx, memberID, amount, key, reason)
	if err != nil {
		return decimal.Zero, err
	}
	monitoring.EntriesApplied.WithLabelValues("credit", outcome(applied)).Inc()
	return balance, nil
}

// Debit removes amount from the member balance exactly once per key.
// Fails with ErrInsufficientFunds when the balance would go negative.
func (s *Service) Debit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	balance, applied, err := s.entries.ApplyEntry(ctx, memberID, amount.Neg(), key, reason)
	if err != nil {
		return decimal.Zero, err
	}
	monitoring.EntriesApplied.WithLabelValues("debit", outcome(applied)).Inc()
	return balance, nil
}

func (s *Service) Summary(ctx context.Context, memberID int64) (*member.Summary, error) {
	m, err := s.members.FindMemberByID(ctx, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member.Summary{
		ID:              m.ID,
		Balance:         m.Balance,
		TotalWithdrawal: m.TotalWithdrawal,
		Level:           m.Level,
		TeamSize:        m.TeamSize,
		TodayTeamCount:  m.TodayTeamCount,
	}, nil
}

func outcome(applied bool) string {
	if applied {
		return "applied"
	}
	return "deduplicated"
}

package storage

import (
	"context"

	"github.com/referralpay/ledger/internal/commission"
	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/level"
	"github.com/referralpay/ledger/internal/member"
	"github.com/referralpay/ledger/internal/policy"
	"github.com/referralpay/ledger/internal/withdrawal"
)

// Storage unions the repositories every component consumes. A single
// implementation backs them all so a state transition and its balance
// effect can share one transaction.
type Storage interface {
	member.MemberRepository
	ledger.EntryRepository
	withdrawal.RequestRepository
	level.MemberRepository
	commission.MemberRepository
	policy.LevelRepository
	policy.LimitRepository
	policy.CommissionRateRepository
	policy.BonusRuleRepository
	policy.SettingsRepository

	// Connection management.
	Ping(ctx context.Context) error
	Close() error
}

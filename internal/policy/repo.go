package policy

import (
	"context"

	"github.com/referralpay/ledger/internal/types/policy"
)

type LevelRepository interface {
	ListLevelDefinitions(ctx context.Context) ([]policy.LevelDefinition, error)
	ReplaceLevelDefinitions(ctx context.Context, defs []policy.LevelDefinition) error
	ListMonthlyLevelDefinitions(ctx context.Context) ([]policy.MonthlyLevelDefinition, error)
	ReplaceMonthlyLevelDefinitions(ctx context.Context, defs []policy.MonthlyLevelDefinition) error
}

type LimitRepository interface {
	ListWithdrawalLimits(ctx context.Context) ([]policy.WithdrawalLimit, error)
	ReplaceWithdrawalLimits(ctx context.Context, limits []policy.WithdrawalLimit) error
	FindWithdrawalLimit(ctx context.Context, level int) (*policy.WithdrawalLimit, error)
}

type CommissionRateRepository interface {
	ListCommissionRates(ctx context.Context) ([]policy.CommissionRate, error)
	GetDefaultCommissionRate(ctx context.Context) (*policy.CommissionRate, error)
	FindCommissionRateByMember(ctx context.Context, memberID int64) (*policy.CommissionRate, error)
	UpsertCommissionRate(ctx context.Context, rate *policy.CommissionRate) error
}

type BonusRuleRepository interface {
	ListBonusRules(ctx context.Context) ([]policy.BonusRule, error)
	ReplaceBonusRules(ctx context.Context, rules []policy.BonusRule) error
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (*policy.Settings, error)
	UpdateSettings(ctx context.Context, s *policy.Settings) error
}

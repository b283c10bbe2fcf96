package policy

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/referralpay/ledger/internal/types/policy"
)

var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidThreshold     = errors.New("level thresholds must be strictly increasing")
	ErrInvalidDefinition    = errors.New("invalid definition")
)

type Service struct {
	levels LevelRepository
	limits LimitRepository
	rates  CommissionRateRepository
	rules  BonusRuleRepository
	sets   SettingsRepository
}

func NewService(levels LevelRepository, limits LimitRepository, rates CommissionRateRepository, rules BonusRuleRepository, sets SettingsRepository) *Service {
	return &Service{levels: levels, limits: limits, rates: rates, rules: rules, sets: sets}
}

func (s *Service) ListLevels(ctx context.Context) ([]policy.LevelDefinition, error) {
	return s.levels.ListLevelDefinitions(ctx)
}

// ReplaceLevels swaps the whole weekly level table. Thresholds must be
// strictly increasing with the level number.
func (s *Service) ReplaceLevels(ctx context.Context, defs []policy.LevelDefinition) error {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Level < defs[j].Level })
	for i, d := range defs {
		if d.Level <= 0 || d.WeeklyRecruitment < 0 || d.SalaryWeekday < 0 || d.SalaryWeekday > 6 {
			return ErrInvalidDefinition
		}
		if d.WeeklySalary.IsNegative() {
			return ErrInvalidDefinition
		}
		if i > 0 {
			prev := defs[i-1]
			if d.Level == prev.Level || d.TeamSizeThreshold <= prev.TeamSizeThreshold {
				return ErrInvalidThreshold
			}
		}
	}
	return s.levels.ReplaceLevelDefinitions(ctx, defs)
}

func (s *Service) ListMonthlyLevels(ctx context.Context) ([]policy.MonthlyLevelDefinition, error) {
	return s.levels.ListMonthlyLevelDefinitions(ctx)
}

func (s *Service) ReplaceMonthlyLevels(ctx context.Context, defs []policy.MonthlyLevelDefinition) error {
	sort.Slice(defs, func(i, j int) bool { return defs[i].MonthLevel < defs[j].MonthLevel })
	for i, d := range defs {
		if d.MonthLevel <= 0 || d.RequiredJoins < 0 || d.SalaryDayOfMonth < 1 || d.SalaryDayOfMonth > 31 {
			return ErrInvalidDefinition
		}
		if d.Salary.IsNegative() {
			return ErrInvalidDefinition
		}
		if i > 0 {
			prev := defs[i-1]
			if d.MonthLevel == prev.MonthLevel || d.RequiredJoins <= prev.RequiredJoins {
				return ErrInvalidThreshold
			}
		}
	}
	return s.levels.ReplaceMonthlyLevelDefinitions(ctx, defs)
}

func (s *Service) ListLimits(ctx context.Context) ([]policy.WithdrawalLimit, error) {
	return s.limits.ListWithdrawalLimits(ctx)
}

func (s *Service) ReplaceLimits(ctx context.Context, limits []policy.WithdrawalLimit) error {
	for _, l := range limits {
		if l.Level < 0 || l.MinAmount.IsNegative() {
			return ErrInvalidDefinition
		}
	}
	return s.limits.ReplaceWithdrawalLimits(ctx, limits)
}

// MinWithdrawal returns the minimum allowed amount for a level.
func (s *Service) MinWithdrawal(ctx context.Context, level int) (*policy.WithdrawalLimit, error) {
	limit, err := s.limits.FindWithdrawalLimit(ctx, level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, err
	}
	return limit, nil
}

// CommissionRateFor resolves the per-member override, falling back to the
// global default.
func (s *Service) CommissionRateFor(ctx context.Context, memberID int64) (*policy.CommissionRate, error) {
	rate, err := s.rates.FindCommissionRateByMember(ctx, memberID)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	rate, err = s.rates.GetDefaultCommissionRate(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *Service) ListCommissionRates(ctx context.Context) ([]policy.CommissionRate, error) {
	return s.rates.ListCommissionRates(ctx)
}

func (s *Service) UpsertCommissionRate(ctx context.Context, rate *policy.CommissionRate) error {
	if rate.DirectBonus.IsNegative() || rate.IndirectBonus.IsNegative() {
		return ErrInvalidDefinition
	}
	return s.rates.UpsertCommissionRate(ctx, rate)
}

func (s *Service) ListBonusRules(ctx context.Context) ([]policy.BonusRule, error) {
	return s.rules.ListBonusRules(ctx)
}

func (s *Service) ReplaceBonusRules(ctx context.Context, rules []policy.BonusRule) error {
	for _, r := range rules {
		if r.RequiredReferrers <= 0 || r.Reward.IsNegative() {
			return ErrInvalidDefinition
		}
	}
	return s.rules.ReplaceBonusRules(ctx, rules)
}

func (s *Service) GetSettings(ctx context.Context) (*policy.Settings, error) {
	settings, err := s.sets.GetSettings(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigurationMissing
	}
	return settings, err
}

func (s *Service) UpdateSettings(ctx context.Context, settings *policy.Settings) error {
	if settings.RegistrationFee.IsNegative() || settings.NewUserBonusPercent.IsNegative() || settings.CoinValue.IsNegative() {
		return ErrInvalidDefinition
	}
	return s.sets.UpdateSettings(ctx, settings)
}

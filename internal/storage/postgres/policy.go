package storage

import (
	"context"
	"database/sql"

	"github.com/referralpay/ledger/internal/types/policy"
)

func (s *PostgresStorage) ListLevelDefinitions(ctx context.Context) ([]policy.LevelDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, team_size_threshold, weekly_salary, salary_weekday, weekly_recruitment
         FROM level_definitions ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.LevelDefinition
	for rows.Next() {
		var d policy.LevelDefinition
		if err := rows.Scan(&d.Level, &d.TeamSizeThreshold, &d.WeeklySalary, &d.SalaryWeekday, &d.WeeklyRecruitment); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ReplaceLevelDefinitions(ctx context.Context, defs []policy.LevelDefinition) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM level_definitions`); err != nil {
			return err
		}
		for _, d := range defs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO level_definitions (level, team_size_threshold, weekly_salary, salary_weekday, weekly_recruitment)
                 VALUES ($1,$2,$3,$4,$5)`,
				d.Level, d.TeamSizeThreshold, d.WeeklySalary, d.SalaryWeekday, d.WeeklyRecruitment,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStorage) ListMonthlyLevelDefinitions(ctx context.Context) ([]policy.MonthlyLevelDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month_level, required_joins, salary, salary_day_of_month
         FROM monthly_level_definitions ORDER BY month_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.MonthlyLevelDefinition
	for rows.Next() {
		var d policy.MonthlyLevelDefinition
		if err := rows.Scan(&d.MonthLevel, &d.RequiredJoins, &d.Salary, &d.SalaryDayOfMonth); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ReplaceMonthlyLevelDefinitions(ctx context.Context, defs []policy.MonthlyLevelDefinition) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM monthly_level_definitions`); err != nil {
			return err
		}
		for _, d := range defs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO monthly_level_definitions (month_level, required_joins, salary, salary_day_of_month)
                 VALUES ($1,$2,$3,$4)`,
				d.MonthLevel, d.RequiredJoins, d.Salary, d.SalaryDayOfMonth,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStorage) ListWithdrawalLimits(ctx context.Context) ([]policy.WithdrawalLimit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, min_amount FROM withdrawal_limits ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.WithdrawalLimit
	for rows.Next() {
		var l policy.WithdrawalLimit
		if err := rows.Scan(&l.Level, &l.MinAmount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ReplaceWithdrawalLimits(ctx context.Context, limits []policy.WithdrawalLimit) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM withdrawal_limits`); err != nil {
			return err
		}
		for _, l := range limits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO withdrawal_limits (level, min_amount) VALUES ($1,$2)`,
				l.Level, l.MinAmount,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStorage) FindWithdrawalLimit(ctx context.Context, level int) (*policy.WithdrawalLimit, error) {
	l := &policy.WithdrawalLimit{}
	err := s.db.QueryRowContext(ctx,
		`SELECT level, min_amount FROM withdrawal_limits WHERE level=$1`, level,
	).Scan(&l.Level, &l.MinAmount)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStorage) ListCommissionRates(ctx context.Context) ([]policy.CommissionRate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, direct_bonus, indirect_bonus
         FROM commission_rates ORDER BY member_id NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.CommissionRate
	for rows.Next() {
		var r policy.CommissionRate
		var memberID sql.NullInt64
		if err := rows.Scan(&memberID, &r.DirectBonus, &r.IndirectBonus); err != nil {
			return nil, err
		}
		if memberID.Valid {
			r.MemberID = &memberID.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetDefaultCommissionRate(ctx context.Context) (*policy.CommissionRate, error) {
	r := &policy.CommissionRate{}
	err := s.db.QueryRowContext(ctx,
		`SELECT direct_bonus, indirect_bonus FROM commission_rates WHERE member_id IS NULL`,
	).Scan(&r.DirectBonus, &r.IndirectBonus)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStorage) FindCommissionRateByMember(ctx context.Context, memberID int64) (*policy.CommissionRate, error) {
	r := &policy.CommissionRate{MemberID: &memberID}
	err := s.db.QueryRowContext(ctx,
		`SELECT direct_bonus, indirect_bonus FROM commission_rates WHERE member_id=$1`, memberID,
	).Scan(&r.DirectBonus, &r.IndirectBonus)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStorage) UpsertCommissionRate(ctx context.Context, rate *policy.CommissionRate) error {
	var memberID sql.NullInt64
	if rate.MemberID != nil {
		memberID = sql.NullInt64{Int64: *rate.MemberID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commission_rates (member_id, direct_bonus, indirect_bonus)
         VALUES ($1,$2,$3)
         ON CONFLICT ((COALESCE(member_id, 0)))
         DO UPDATE SET direct_bonus=EXCLUDED.direct_bonus, indirect_bonus=EXCLUDED.indirect_bonus`,
		memberID, rate.DirectBonus, rate.IndirectBonus,
	)
	return err
}

func (s *PostgresStorage) ListBonusRules(ctx context.Context) ([]policy.BonusRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT required_referrers, reward FROM bonus_rules ORDER BY required_referrers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.BonusRule
	for rows.Next() {
		var r policy.BonusRule
		if err := rows.Scan(&r.RequiredReferrers, &r.Reward); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) ReplaceBonusRules(ctx context.Context, rules []policy.BonusRule) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bonus_rules`); err != nil {
			return err
		}
		for _, r := range rules {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bonus_rules (required_referrers, reward) VALUES ($1,$2)`,
				r.RequiredReferrers, r.Reward,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStorage) GetSettings(ctx context.Context) (*policy.Settings, error) {
	set := &policy.Settings{}
	err := s.db.QueryRowContext(ctx,
		`SELECT registration_fee, new_user_bonus_percent, coin_value,
                weekly_salary_requirement, monthly_salary_requirement
         FROM settings WHERE id=1`,
	).Scan(&set.RegistrationFee, &set.NewUserBonusPercent, &set.CoinValue,
		&set.WeeklySalaryRequirement, &set.MonthlySalaryRequirement)
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (s *PostgresStorage) UpdateSettings(ctx context.Context, set *policy.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET registration_fee=$1, new_user_bonus_percent=$2, coin_value=$3,
                weekly_salary_requirement=$4, monthly_salary_requirement=$5
         WHERE id=1`,
		set.RegistrationFee, set.NewUserBonusPercent, set.CoinValue,
		set.WeeklySalaryRequirement, set.MonthlySalaryRequirement,
	)
	return err
}

func (s *PostgresStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

package policy

import "github.com/shopspring/decimal"

// LevelDefinition gates a weekly salary behind a team size threshold and a
// weekly recruitment requirement. Thresholds are strictly increasing with
// the level number.
type LevelDefinition struct {
	Level             int             `db:"level" json:"level"`
	TeamSizeThreshold int             `db:"team_size_threshold" json:"team_size_threshold"`
	WeeklySalary      decimal.Decimal `db:"weekly_salary" json:"weekly_salary"`
	SalaryWeekday     int             `db:"salary_weekday" json:"salary_weekday"`
	WeeklyRecruitment int             `db:"weekly_recruitment" json:"weekly_recruitment"`
}

// MonthlyLevelDefinition is an independent axis from the weekly levels:
// a member's monthly tier is derived from this month's joins only.
type MonthlyLevelDefinition struct {
	MonthLevel       int             `db:"month_level" json:"month_level"`
	RequiredJoins    int             `db:"required_joins" json:"required_joins"`
	Salary           decimal.Decimal `db:"salary" json:"salary"`
	SalaryDayOfMonth int             `db:"salary_day_of_month" json:"salary_day_of_month"`
}

type WithdrawalLimit struct {
	Level     int             `db:"level" json:"level"`
	MinAmount decimal.Decimal `db:"min_amount" json:"min_amount"`
}

// CommissionRate with a nil MemberID is the global default; a row with a
// member id overrides it for that member's referrer payouts.
type CommissionRate struct {
	MemberID      *int64          `db:"member_id" json:"member_id,omitempty"`
	DirectBonus   decimal.Decimal `db:"direct_bonus" json:"direct_bonus"`
	IndirectBonus decimal.Decimal `db:"indirect_bonus" json:"indirect_bonus"`
}

// BonusRule pays a one-time reward when a member's direct referral count
// crosses the threshold.
type BonusRule struct {
	RequiredReferrers int             `db:"required_referrers" json:"required_referrers"`
	Reward            decimal.Decimal `db:"reward" json:"reward"`
}

// Settings is a singleton row.
type Settings struct {
	RegistrationFee          decimal.Decimal `db:"registration_fee" json:"registration_fee"`
	NewUserBonusPercent      decimal.Decimal `db:"new_user_bonus_percent" json:"new_user_bonus_percent"`
	CoinValue                decimal.Decimal `db:"coin_value" json:"coin_value"`
	WeeklySalaryRequirement  int             `db:"weekly_salary_requirement" json:"weekly_salary_requirement"`
	MonthlySalaryRequirement int             `db:"monthly_salary_requirement" json:"monthly_salary_requirement"`
}

package member

import (
	"time"

	"github.com/shopspring/decimal"
)

type MembershipStatus string

const (
	// StatusPending is a registered member whose payment is not confirmed yet.
	StatusPending  MembershipStatus = "pending"
	StatusApproved MembershipStatus = "approved"
	StatusBlocked  MembershipStatus = "blocked"
	StatusDeleted  MembershipStatus = "deleted"
)

// Active reports whether the member may move money.
func (s MembershipStatus) Active() bool {
	return s == StatusApproved
}

type Member struct {
	ID               int64            `db:"id" json:"id"`
	Login            string           `db:"login" json:"login"`
	PasswordHash     string           `db:"password_hash" json:"-"`
	WalletAddress    string           `db:"wallet_address" json:"wallet_address,omitempty"`
	Balance          decimal.Decimal  `db:"balance" json:"balance"`
	TotalWithdrawal  decimal.Decimal  `db:"total_withdrawal" json:"total_withdrawal"`
	Level            int              `db:"level" json:"level"`
	TeamSize         int              `db:"team_size" json:"team_size"`
	TodayTeamCount   int              `db:"today_team_count" json:"today_team_count"`
	WeekTeamCount    int              `db:"week_team_count" json:"-"`
	MonthTeamCount   int              `db:"month_team_count" json:"-"`
	DirectReferrals  int              `db:"direct_referrals" json:"direct_referrals"`
	ReferredBy       *int64           `db:"referred_by" json:"referred_by,omitempty"`
	ReferralCode     string           `db:"referral_code" json:"referral_code"`
	Status           MembershipStatus `db:"status" json:"status"`
	PaymentConfirmed bool             `db:"payment_confirmed" json:"payment_confirmed"`
	IsAdmin          bool             `db:"is_admin" json:"-"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Summary is the read model exposed over HTTP.
type Summary struct {
	ID              int64           `json:"id"`
	Balance         decimal.Decimal `json:"balance"`
	TotalWithdrawal decimal.Decimal `json:"total_withdrawal"`
	Level           int             `json:"level"`
	TeamSize        int             `json:"team_size"`
	TodayTeamCount  int             `json:"today_team_count"`
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/types/member"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &PostgresStorage{db: db}

	if err := s.db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            id BIGSERIAL PRIMARY KEY,
            login TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            wallet_address TEXT NOT NULL DEFAULT '',
            balance NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
            total_withdrawal NUMERIC(20,2) NOT NULL DEFAULT 0,
            level INT NOT NULL DEFAULT 0,
            team_size INT NOT NULL DEFAULT 0,
            today_team_count INT NOT NULL DEFAULT 0,
            today_date DATE NOT NULL DEFAULT CURRENT_DATE,
            week_team_count INT NOT NULL DEFAULT 0,
            week_start DATE NOT NULL DEFAULT date_trunc('week', now())::date,
            month_team_count INT NOT NULL DEFAULT 0,
            month_start DATE NOT NULL DEFAULT date_trunc('month', now())::date,
            direct_referrals INT NOT NULL DEFAULT 0,
            referred_by BIGINT REFERENCES members(id),
            referral_code TEXT UNIQUE NOT NULL,
            status TEXT NOT NULL,
            payment_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
            id BIGSERIAL PRIMARY KEY,
            member_id BIGINT NOT NULL REFERENCES members(id),
            amount NUMERIC(20,2) NOT NULL,
            balance_after NUMERIC(20,2) NOT NULL,
            idempotency_key TEXT UNIQUE NOT NULL,
            reason TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
            id BIGSERIAL PRIMARY KEY,
            member_id BIGINT NOT NULL REFERENCES members(id),
            amount NUMERIC(20,2) NOT NULL CHECK (amount > 0),
            state TEXT NOT NULL,
            wallet_address TEXT NOT NULL,
            decision_reason TEXT,
            approvals INT NOT NULL DEFAULT 0,
            requested_at TIMESTAMPTZ NOT NULL,
            decided_at TIMESTAMPTZ
        )`,
		`CREATE TABLE IF NOT EXISTS level_definitions (
            level INT PRIMARY KEY,
            team_size_threshold INT NOT NULL,
            weekly_salary NUMERIC(20,2) NOT NULL,
            salary_weekday INT NOT NULL,
            weekly_recruitment INT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS monthly_level_definitions (
            month_level INT PRIMARY KEY,
            required_joins INT NOT NULL,
            salary NUMERIC(20,2) NOT NULL,
            salary_day_of_month INT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS withdrawal_limits (
            level INT PRIMARY KEY,
            min_amount NUMERIC(20,2) NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS commission_rates (
            id BIGSERIAL PRIMARY KEY,
            member_id BIGINT,
            direct_bonus NUMERIC(20,2) NOT NULL,
            indirect_bonus NUMERIC(20,2) NOT NULL
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS commission_rates_member_uq
            ON commission_rates ((COALESCE(member_id, 0)))`,
		`CREATE TABLE IF NOT EXISTS bonus_rules (
            required_referrers INT PRIMARY KEY,
            reward NUMERIC(20,2) NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS settings (
            id INT PRIMARY KEY CHECK (id = 1),
            registration_fee NUMERIC(20,2) NOT NULL DEFAULT 0,
            new_user_bonus_percent NUMERIC(20,2) NOT NULL DEFAULT 0,
            coin_value NUMERIC(20,2) NOT NULL DEFAULT 0,
            weekly_salary_requirement INT NOT NULL DEFAULT 0,
            monthly_salary_requirement INT NOT NULL DEFAULT 0
        )`,
		`INSERT INTO settings (id) VALUES (1) ON CONFLICT DO NOTHING`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

const memberColumns = `id, login, password_hash, wallet_address, balance, total_withdrawal,
        level, team_size, today_team_count, week_team_count, month_team_count,
        direct_referrals, referred_by, referral_code, status, payment_confirmed, is_admin, created_at`

func scanMember(row interface{ Scan(...any) error }) (*member.Member, error) {
	m := &member.Member{}
	var referredBy sql.NullInt64
	if err := row.Scan(
		&m.ID, &m.Login, &m.PasswordHash, &m.WalletAddress, &m.Balance, &m.TotalWithdrawal,
		&m.Level, &m.TeamSize, &m.TodayTeamCount, &m.WeekTeamCount, &m.MonthTeamCount,
		&m.DirectReferrals, &referredBy, &m.ReferralCode, &m.Status, &m.PaymentConfirmed,
		&m.IsAdmin, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if referredBy.Valid {
		m.ReferredBy = &referredBy.Int64
	}
	return m, nil
}

func (s *PostgresStorage) CreateMember(ctx context.Context, m *member.Member) error {
	q := `INSERT INTO members (login, password_hash, referred_by, referral_code, status, created_at)
          VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	var referredBy sql.NullInt64
	if m.ReferredBy != nil {
		referredBy = sql.NullInt64{Int64: *m.ReferredBy, Valid: true}
	}
	return s.db.QueryRowContext(ctx, q,
		m.Login, m.PasswordHash, referredBy, m.ReferralCode, m.Status, m.CreatedAt,
	).Scan(&m.ID)
}

func (s *PostgresStorage) FindMemberByLogin(ctx context.Context, login string) (*member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE login=$1`
	return scanMember(s.db.QueryRowContext(ctx, q, login))
}

func (s *PostgresStorage) FindMemberByID(ctx context.Context, id int64) (*member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	return scanMember(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) FindMemberByReferralCode(ctx context.Context, code string) (*member.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE referral_code=$1`
	return scanMember(s.db.QueryRowContext(ctx, q, code))
}

func (s *PostgresStorage) UpdateWalletAddress(ctx context.Context, memberID int64, address string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET wallet_address=$1 WHERE id=$2`, address, memberID)
	return err
}

func (s *PostgresStorage) UpdateMemberStatus(ctx context.Context, memberID int64, status member.MembershipStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET status=$1 WHERE id=$2`, status, memberID)
	return err
}

func (s *PostgresStorage) UpdateMemberLevel(ctx context.Context, memberID int64, level int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET level=$1 WHERE id=$2`, level, memberID)
	return err
}

// ApplyEntry mutates the balance under the member row lock. The unique
// idempotency key makes a replayed mutation a read of the first result.
func (s *PostgresStorage) ApplyEntry(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer tx.Rollback()

	balance, applied, err := applyEntryTx(ctx, tx, memberID, amount, key, reason)
	if err != nil {
		return decimal.Zero, false, err
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, false, err
	}
	return balance, applied, nil
}

// applyEntryTx is the shared mutation path: the withdrawal transitions run
// it inside their own transaction so the state change and the balance
// effect commit together.
func applyEntryTx(ctx context.Context, tx *sql.Tx, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM members WHERE id=$1 FOR UPDATE`, memberID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, ledger.ErrMemberNotFound
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	var prior decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT balance_after FROM ledger_entries WHERE idempotency_key=$1`, key,
	).Scan(&prior)
	if err == nil {
		return prior, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, err
	}

	newBalance := balance.Add(amount)
	if newBalance.IsNegative() {
		return decimal.Zero, false, ledger.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (member_id, amount, balance_after, idempotency_key, reason, created_at)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		memberID, amount, newBalance, key, reason, time.Now().UTC(),
	); err != nil {
		return decimal.Zero, false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET balance=$1 WHERE id=$2`, newBalance, memberID,
	); err != nil {
		return decimal.Zero, false, err
	}
	return newBalance, true, nil
}

// ConfirmPayment flips payment_confirmed exactly once; the returned bool
// reports whether this call was the confirming one. The ancestor counter
// walk commits in the same transaction, so a crash cannot leave the chain
// half bumped.
func (s *PostgresStorage) ConfirmPayment(ctx context.Context, memberID int64) (bool, []int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE members SET payment_confirmed=TRUE, status=$1
         WHERE id=$2 AND payment_confirmed=FALSE`,
		member.StatusApproved, memberID,
	)
	if err != nil {
		return false, nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM members WHERE id=$1)`, memberID,
		).Scan(&exists); err != nil {
			return false, nil, err
		}
		if !exists {
			return false, nil, sql.ErrNoRows
		}
		return false, nil, nil
	}

	ancestors, err := bumpAncestorCounters(ctx, tx, memberID)
	if err != nil {
		return false, nil, err
	}
	if err := tx.Commit(); err != nil {
		return false, nil, err
	}
	return true, ancestors, nil
}

func (s *PostgresStorage) IncrementDirectReferrals(ctx context.Context, memberID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE members SET direct_referrals = direct_referrals + 1
         WHERE id=$1 RETURNING direct_referrals`, memberID,
	).Scan(&count)
	return count, err
}

// bumpAncestorCounters walks referred_by up to the root. The day, week and
// month join counters reset lazily: each anchor column is compared against
// the current period before incrementing.
func bumpAncestorCounters(ctx context.Context, tx *sql.Tx, memberID int64) ([]int64, error) {
	const bump = `
        UPDATE members SET
            team_size = team_size + 1,
            today_team_count = CASE WHEN today_date = CURRENT_DATE THEN today_team_count + 1 ELSE 1 END,
            today_date = CURRENT_DATE,
            week_team_count = CASE WHEN week_start = date_trunc('week', now())::date THEN week_team_count + 1 ELSE 1 END,
            week_start = date_trunc('week', now())::date,
            month_team_count = CASE WHEN month_start = date_trunc('month', now())::date THEN month_team_count + 1 ELSE 1 END,
            month_start = date_trunc('month', now())::date
        WHERE id = $1
        RETURNING referred_by`

	var parent sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT referred_by FROM members WHERE id=$1`, memberID,
	).Scan(&parent)
	if err != nil {
		return nil, err
	}

	var ancestors []int64
	seen := map[int64]bool{memberID: true}
	for parent.Valid && !seen[parent.Int64] {
		id := parent.Int64
		seen[id] = true
		ancestors = append(ancestors, id)

		if err := tx.QueryRowContext(ctx, bump, id).Scan(&parent); err != nil {
			return nil, err
		}
	}
	return ancestors, nil
}

// ListWeeklySalaryCandidates treats a stale week anchor as zero joins.
func (s *PostgresStorage) ListWeeklySalaryCandidates(ctx context.Context, level, minJoins int, weekStart time.Time) ([]member.Member, error) {
	q := `SELECT ` + memberColumns + `
          FROM members
          WHERE status=$1 AND level=$2
            AND (CASE WHEN week_start >= $3 THEN week_team_count ELSE 0 END) >= $4
          ORDER BY id`
	return s.listMembers(ctx, q, member.StatusApproved, level, weekStart, minJoins)
}

func (s *PostgresStorage) ListMonthlySalaryCandidates(ctx context.Context, minJoins, maxJoins int, monthStart time.Time) ([]member.Member, error) {
	q := `SELECT ` + memberColumns + `
          FROM members
          WHERE status=$1
            AND (CASE WHEN month_start >= $2 THEN month_team_count ELSE 0 END) >= $3
            AND ($4 < 0 OR (CASE WHEN month_start >= $2 THEN month_team_count ELSE 0 END) < $4)
          ORDER BY id`
	return s.listMembers(ctx, q, member.StatusApproved, monthStart, minJoins, maxJoins)
}

func (s *PostgresStorage) listMembers(ctx context.Context, query string, args ...any) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

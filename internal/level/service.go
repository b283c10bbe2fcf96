package level

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/referralpay/ledger/internal/types/policy"
)

type Service struct {
	members  MemberRepository
	defs     DefinitionProvider
	creditor Creditor
	workers  int
}

func NewService(members MemberRepository, defs DefinitionProvider, creditor Creditor, workers int) *Service {
	return &Service{members: members, defs: defs, creditor: creditor, workers: workers}
}

// LevelFor resolves a team size to the highest level whose threshold does
// not exceed it, or 0 when the team is below every threshold.
func LevelFor(defs []policy.LevelDefinition, teamSize int) int {
	level := 0
	for _, d := range defs {
		if teamSize >= d.TeamSizeThreshold && d.Level > level {
			level = d.Level
		}
	}
	return level
}

// Recompute refreshes a member's level after a team size change.
func (s *Service) Recompute(ctx context.Context, memberID int64) (int, error) {
	m, err := s.members.FindMemberByID(ctx, memberID)
	if err != nil {
		return 0, err
	}
	defs, err := s.defs.ListLevelDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	level := LevelFor(defs, m.TeamSize)
	if level == m.Level {
		return level, nil
	}
	if err := s.members.UpdateMemberLevel(ctx, memberID, level); err != nil {
		return 0, err
	}
	return level, nil
}

// RunWeeklyPass pays the weekly salary for every level whose payday matches
// now. Re-running the pass is safe: the idempotency key, not wall-clock
// state, is the only double-payment guard.
func (s *Service) RunWeeklyPass(ctx context.Context, now time.Time) error {
	defs, err := s.defs.ListLevelDefinitions(ctx)
	if err != nil {
		return err
	}
	year, week := now.ISOWeek()
	weekStart := startOfISOWeek(now)

	var payouts []payout
	for _, d := range defs {
		if time.Weekday(d.SalaryWeekday) != now.Weekday() || !d.WeeklySalary.IsPositive() {
			continue
		}
		candidates, err := s.members.ListWeeklySalaryCandidates(ctx, d.Level, d.WeeklyRecruitment, weekStart)
		if err != nil {
			return fmt.Errorf("weekly candidates for level %d: %w", d.Level, err)
		}
		for _, m := range candidates {
			payouts = append(payouts, payout{
				memberID: m.ID,
				amount:   d.WeeklySalary,
				key:      fmt.Sprintf("salary:weekly:%d:%d-W%02d", m.ID, year, week),
				reason:   fmt.Sprintf("weekly salary, level %d", d.Level),
				period:   "weekly",
			})
		}
	}
	s.payAll(ctx, payouts)
	return nil
}

// RunMonthlyPass pays the monthly salary. A member's monthly tier is the
// highest definition whose required joins are covered by this month's
// joins, independent of the weekly level axis; the salary fires on that
// tier's day of month only.
func (s *Service) RunMonthlyPass(ctx context.Context, now time.Time) error {
	defs, err := s.defs.ListMonthlyLevelDefinitions(ctx)
	if err != nil {
		return err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].RequiredJoins < defs[j].RequiredJoins })
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearMonth := now.Format("2006-01")

	var payouts []payout
	for i, d := range defs {
		if d.SalaryDayOfMonth != now.Day() || !d.Salary.IsPositive() {
			continue
		}
		maxJoins := -1
		if i+1 < len(defs) {
			maxJoins = defs[i+1].RequiredJoins
		}
		candidates, err := s.members.ListMonthlySalaryCandidates(ctx, d.RequiredJoins, maxJoins, monthStart)
		if err != nil {
			return fmt.Errorf("monthly candidates for tier %d: %w", d.MonthLevel, err)
		}
		for _, m := range candidates {
			payouts = append(payouts, payout{
				memberID: m.ID,
				amount:   d.Salary,
				key:      fmt.Sprintf("salary:monthly:%d:%s", m.ID, yearMonth),
				reason:   fmt.Sprintf("monthly salary, tier %d", d.MonthLevel),
				period:   "monthly",
			})
		}
	}
	s.payAll(ctx, payouts)
	return nil
}

// startOfISOWeek truncates to the Monday 00:00 UTC of now's ISO week.
func startOfISOWeek(now time.Time) time.Time {
	now = now.UTC()
	offset := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

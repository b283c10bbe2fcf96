package level

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referralpay/ledger/internal/types/member"
	"github.com/referralpay/ledger/internal/types/policy"
)

type stubMemberRepo struct {
	members    map[int64]*member.Member
	weekly     map[int][]member.Member
	monthly    []member.Member
	lastLevels map[int64]int
}

func newStubMemberRepo() *stubMemberRepo {
	return &stubMemberRepo{
		members:    make(map[int64]*member.Member),
		weekly:     make(map[int][]member.Member),
		lastLevels: make(map[int64]int),
	}
}

func (r *stubMemberRepo) FindMemberByID(ctx context.Context, id int64) (*member.Member, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m, nil
}

func (r *stubMemberRepo) UpdateMemberLevel(ctx context.Context, memberID int64, level int) error {
	r.lastLevels[memberID] = level
	if m, ok := r.members[memberID]; ok {
		m.Level = level
	}
	return nil
}

func (r *stubMemberRepo) ListWeeklySalaryCandidates(ctx context.Context, level, minJoins int, weekStart time.Time) ([]member.Member, error) {
	return r.weekly[level], nil
}

func (r *stubMemberRepo) ListMonthlySalaryCandidates(ctx context.Context, minJoins, maxJoins int, monthStart time.Time) ([]member.Member, error) {
	var out []member.Member
	for _, m := range r.monthly {
		if m.MonthTeamCount < minJoins {
			continue
		}
		if maxJoins >= 0 && m.MonthTeamCount >= maxJoins {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type stubDefs struct {
	weekly  []policy.LevelDefinition
	monthly []policy.MonthlyLevelDefinition
}

func (d *stubDefs) ListLevelDefinitions(ctx context.Context) ([]policy.LevelDefinition, error) {
	return d.weekly, nil
}

func (d *stubDefs) ListMonthlyLevelDefinitions(ctx context.Context) ([]policy.MonthlyLevelDefinition, error) {
	return d.monthly, nil
}

type recordingCreditor struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	credits map[int64]decimal.Decimal
}

func newRecordingCreditor() *recordingCreditor {
	return &recordingCreditor{
		keys:    make(map[string]struct{}),
		credits: make(map[int64]decimal.Decimal),
	}
}

func (c *recordingCreditor) Credit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return c.credits[memberID], nil
	}
	c.keys[key] = struct{}{}
	c.credits[memberID] = c.credits[memberID].Add(amount)
	return c.credits[memberID], nil
}

func weeklyDefs() []policy.LevelDefinition {
	return []policy.LevelDefinition{
		{Level: 1, TeamSizeThreshold: 5, WeeklySalary: decimal.NewFromInt(10), SalaryWeekday: 1, WeeklyRecruitment: 2},
		{Level: 2, TeamSizeThreshold: 20, WeeklySalary: decimal.NewFromInt(40), SalaryWeekday: 1, WeeklyRecruitment: 5},
		{Level: 3, TeamSizeThreshold: 100, WeeklySalary: decimal.NewFromInt(200), SalaryWeekday: 5, WeeklyRecruitment: 10},
	}
}

func TestLevelFor(t *testing.T) {
	defs := weeklyDefs()

	assert.Equal(t, 0, LevelFor(defs, 0))
	assert.Equal(t, 0, LevelFor(defs, 4))
	assert.Equal(t, 1, LevelFor(defs, 5))
	assert.Equal(t, 1, LevelFor(defs, 19))
	assert.Equal(t, 2, LevelFor(defs, 20))
	assert.Equal(t, 3, LevelFor(defs, 250))
}

func TestRecompute(t *testing.T) {
	repo := newStubMemberRepo()
	repo.members[1] = &member.Member{ID: 1, TeamSize: 21, Level: 1}
	svc := NewService(repo, &stubDefs{weekly: weeklyDefs()}, newRecordingCreditor(), 2)

	level, err := svc.Recompute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	assert.Equal(t, 2, repo.lastLevels[1])
}

func TestRecomputeNoChange(t *testing.T) {
	repo := newStubMemberRepo()
	repo.members[1] = &member.Member{ID: 1, TeamSize: 6, Level: 1}
	svc := NewService(repo, &stubDefs{weekly: weeklyDefs()}, newRecordingCreditor(), 2)

	level, err := svc.Recompute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	_, updated := repo.lastLevels[1]
	assert.False(t, updated)
}

// A Monday run pays levels 1 and 2 but not level 3, whose payday is Friday.
func TestRunWeeklyPass(t *testing.T) {
	repo := newStubMemberRepo()
	repo.weekly[1] = []member.Member{{ID: 10}, {ID: 11}}
	repo.weekly[2] = []member.Member{{ID: 20}}
	repo.weekly[3] = []member.Member{{ID: 30}}
	creditor := newRecordingCreditor()
	svc := NewService(repo, &stubDefs{weekly: weeklyDefs()}, creditor, 2)

	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	require.NoError(t, svc.RunWeeklyPass(context.Background(), monday))

	assert.True(t, creditor.credits[10].Equal(decimal.NewFromInt(10)))
	assert.True(t, creditor.credits[11].Equal(decimal.NewFromInt(10)))
	assert.True(t, creditor.credits[20].Equal(decimal.NewFromInt(40)))
	assert.True(t, creditor.credits[30].IsZero())
}

func TestRunWeeklyPassRerunPaysOnce(t *testing.T) {
	repo := newStubMemberRepo()
	repo.weekly[1] = []member.Member{{ID: 10}}
	creditor := newRecordingCreditor()
	svc := NewService(repo, &stubDefs{weekly: weeklyDefs()}, creditor, 2)

	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RunWeeklyPass(context.Background(), monday))
	require.NoError(t, svc.RunWeeklyPass(context.Background(), monday.Add(2*time.Hour)))

	assert.True(t, creditor.credits[10].Equal(decimal.NewFromInt(10)))
}

// Members are paid the tier matching this month's joins only.
func TestRunMonthlyPass(t *testing.T) {
	repo := newStubMemberRepo()
	repo.monthly = []member.Member{
		{ID: 1, MonthTeamCount: 3},
		{ID: 2, MonthTeamCount: 12},
		{ID: 3, MonthTeamCount: 40},
	}
	creditor := newRecordingCreditor()
	defs := &stubDefs{monthly: []policy.MonthlyLevelDefinition{
		{MonthLevel: 1, RequiredJoins: 2, Salary: decimal.NewFromInt(50), SalaryDayOfMonth: 15},
		{MonthLevel: 2, RequiredJoins: 10, Salary: decimal.NewFromInt(300), SalaryDayOfMonth: 15},
	}}
	svc := NewService(repo, defs, creditor, 2)

	payday := time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RunMonthlyPass(context.Background(), payday))

	assert.True(t, creditor.credits[1].Equal(decimal.NewFromInt(50)))
	assert.True(t, creditor.credits[2].Equal(decimal.NewFromInt(300)))
	assert.True(t, creditor.credits[3].Equal(decimal.NewFromInt(300)))
}

func TestRunMonthlyPassWrongDay(t *testing.T) {
	repo := newStubMemberRepo()
	repo.monthly = []member.Member{{ID: 1, MonthTeamCount: 3}}
	creditor := newRecordingCreditor()
	defs := &stubDefs{monthly: []policy.MonthlyLevelDefinition{
		{MonthLevel: 1, RequiredJoins: 2, Salary: decimal.NewFromInt(50), SalaryDayOfMonth: 15},
	}}
	svc := NewService(repo, defs, creditor, 2)

	require.NoError(t, svc.RunMonthlyPass(context.Background(), time.Date(2026, 8, 16, 6, 0, 0, 0, time.UTC)))
	assert.Empty(t, creditor.keys)
}

type blockingCreditor struct{}

func (c *blockingCreditor) Credit(ctx context.Context, memberID int64, amount decimal.Decimal, key, reason string) (decimal.Decimal, error) {
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

// Canceling the pass context must unblock the payout producer even when
// every worker is stuck and the jobs buffer is full.
func TestRunWeeklyPassStopsOnCancel(t *testing.T) {
	repo := newStubMemberRepo()
	var candidates []member.Member
	for i := int64(1); i <= 50; i++ {
		candidates = append(candidates, member.Member{ID: i})
	}
	repo.weekly[1] = candidates
	svc := NewService(repo, &stubDefs{weekly: weeklyDefs()}, &blockingCreditor{}, 2)

	monday := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = svc.RunWeeklyPass(ctx, monday)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not return after context cancellation")
	}
}

func TestStartOfISOWeek(t *testing.T) {
	sunday := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, monday, startOfISOWeek(sunday))
	assert.Equal(t, monday, startOfISOWeek(monday.Add(time.Hour)))
}

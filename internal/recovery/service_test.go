package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/recoverypulse/internal/database"
	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/store"
)

func setupService(t *testing.T) (*Service, *store.CheckInStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cs := store.NewCheckInStore(db)
	return NewService(cs, time.UTC, nil), cs
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func TestSubmitCreates(t *testing.T) {
	svc, _ := setupService(t)

	c, err := svc.Submit(context.Background(), Input{
		SleepHours: 7.5, SleepQuality: 8, Fatigue: 2, Soreness: 2, Notes: strPtr("easy day"),
	}, testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Date != "2026-03-10" {
		t.Errorf("date = %q, want 2026-03-10", c.Date)
	}
	if c.RecoveryScore != 80 {
		t.Errorf("score = %d, want 80", c.RecoveryScore)
	}
	if c.Notes == nil || *c.Notes != "easy day" {
		t.Errorf("notes = %v", c.Notes)
	}
	if !c.CreatedAt.Equal(testNow) {
		t.Errorf("created_at = %v, want %v", c.CreatedAt, testNow)
	}
}

func TestSubmitClampsMetrics(t *testing.T) {
	svc, _ := setupService(t)

	c, err := svc.Submit(context.Background(), Input{SleepHours: 8, SleepQuality: 14, Fatigue: 0, Soreness: -2}, testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.SleepQuality != 10 || c.Fatigue != 1 || c.Soreness != 1 {
		t.Errorf("metrics = %d/%d/%d, want 10/1/1", c.SleepQuality, c.Fatigue, c.Soreness)
	}
	if c.RecoveryScore != 93 {
		t.Errorf("score = %d, want 93", c.RecoveryScore)
	}
}

func TestSubmitOverwritesSameDay(t *testing.T) {
	svc, cs := setupService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, Input{SleepHours: 6, SleepQuality: 4, Fatigue: 7, Soreness: 6, Notes: strPtr("tired")}, testNow)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	later := testNow.Add(6 * time.Hour)
	second, err := svc.Submit(ctx, Input{SleepHours: 8, SleepQuality: 9, Fatigue: 2, Soreness: 3}, later)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at moved from %v to %v", first.CreatedAt, second.CreatedAt)
	}
	if second.SleepHours != 8 || second.SleepQuality != 9 || second.Fatigue != 2 || second.Soreness != 3 {
		t.Errorf("metrics not overwritten: %+v", second)
	}
	if second.RecoveryScore != ComputeScore(9, 2, 3) {
		t.Errorf("score = %d, want %d", second.RecoveryScore, ComputeScore(9, 2, 3))
	}
	if second.Notes != nil {
		t.Errorf("notes = %q, want cleared", *second.Notes)
	}

	n, _ := cs.Count(ctx)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestSubmitConcurrentSameDay(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cs := store.NewCheckInStore(db)
	svc := NewService(cs, time.UTC, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			if _, err := svc.Submit(ctx, Input{SleepHours: 7, SleepQuality: q, Fatigue: 5, Soreness: 5}, testNow); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("submit: %v", err)
	}

	n, _ := cs.Count(ctx)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

// racyStore hides the first GetByDate result so Submit hits the unique
// constraint as if another writer won the race.
type racyStore struct {
	*store.CheckInStore
	hidden bool
}

func (r *racyStore) GetByDate(ctx context.Context, date string) (*model.CheckIn, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.CheckInStore.GetByDate(ctx, date)
}

func TestSubmitDuplicateFallsBackToUpdate(t *testing.T) {
	_, cs := setupService(t)
	ctx := context.Background()

	existing, err := cs.Insert(ctx, model.CheckIn{Date: "2026-03-10", SleepHours: 5, SleepQuality: 3, Fatigue: 8, Soreness: 8, RecoveryScore: ComputeScore(3, 8, 8)})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewService(&racyStore{CheckInStore: cs}, time.UTC, nil)
	got, err := svc.Submit(ctx, Input{SleepHours: 8, SleepQuality: 9, Fatigue: 1, Soreness: 1}, testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("id = %d, want %d", got.ID, existing.ID)
	}
	if got.RecoveryScore != ComputeScore(9, 1, 1) {
		t.Errorf("score = %d, want %d", got.RecoveryScore, ComputeScore(9, 1, 1))
	}
}

type failingStore struct {
	*store.CheckInStore
}

func (failingStore) Insert(context.Context, model.CheckIn) (*model.CheckIn, error) {
	return nil, errors.New("disk full")
}

func TestSubmitPersistenceFailure(t *testing.T) {
	_, cs := setupService(t)
	svc := NewService(failingStore{cs}, time.UTC, nil)

	if _, err := svc.Submit(context.Background(), Input{SleepQuality: 5, Fatigue: 5, Soreness: 5}, testNow); err == nil {
		t.Fatal("expected error")
	}
	n, _ := cs.Count(context.Background())
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestSubmitUsesServiceTimezone(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	svc := NewService(store.NewCheckInStore(db), time.FixedZone("UTC+10", 10*3600), nil)

	late := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	c, err := svc.Submit(context.Background(), Input{SleepQuality: 5, Fatigue: 5, Soreness: 5}, late)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Date != "2026-03-11" {
		t.Errorf("date = %q, want 2026-03-11", c.Date)
	}
}

func TestEdit(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	c, _ := svc.Submit(ctx, Input{SleepHours: 7, SleepQuality: 5, Fatigue: 5, Soreness: 5, Notes: strPtr("ok")}, testNow)

	edited, err := svc.Edit(ctx, c.ID, model.CheckInPatch{Fatigue: intPtr(1)})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Fatigue != 1 || edited.SleepQuality != 5 {
		t.Errorf("metrics = %d/%d", edited.SleepQuality, edited.Fatigue)
	}
	if edited.RecoveryScore != ComputeScore(5, 1, 5) {
		t.Errorf("score = %d, want %d", edited.RecoveryScore, ComputeScore(5, 1, 5))
	}
	if edited.Notes == nil || *edited.Notes != "ok" {
		t.Errorf("notes = %v, want unchanged", edited.Notes)
	}

	// A patch score is ignored.
	edited, err = svc.Edit(ctx, c.ID, model.CheckInPatch{RecoveryScore: intPtr(100)})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.RecoveryScore != ComputeScore(5, 1, 5) {
		t.Errorf("score = %d after patching score directly", edited.RecoveryScore)
	}
}

func TestEditNotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Edit(context.Background(), 999, model.CheckInPatch{Fatigue: intPtr(3)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAverageAndTrend(t *testing.T) {
	svc, cs := setupService(t)
	ctx := context.Background()

	avg, err := svc.Average(ctx, 7, testNow)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if avg != nil {
		t.Errorf("avg = %d, want nil", *avg)
	}

	for _, c := range []model.CheckIn{
		{Date: "2026-03-10", RecoveryScore: 80},
		{Date: "2026-03-08", RecoveryScore: 60},
		{Date: "2026-02-20", RecoveryScore: 10},
	} {
		if _, err := cs.Insert(ctx, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	avg, err = svc.Average(ctx, 7, testNow)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if avg == nil || *avg != 70 {
		t.Errorf("avg = %v, want 70", avg)
	}

	trend, err := svc.Trend(ctx, 7, testNow)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(trend.Points) != 7 {
		t.Errorf("points = %d, want 7", len(trend.Points))
	}
	if trend.AverageStatus == nil || *trend.AverageStatus != StatusGood {
		t.Errorf("status = %v, want Good", trend.AverageStatus)
	}
}

func TestRecent(t *testing.T) {
	svc, cs := setupService(t)
	ctx := context.Background()

	for _, d := range []string{"2026-03-06", "2026-03-09", "2026-03-07", "2026-03-08"} {
		cs.Insert(ctx, model.CheckIn{Date: d, RecoveryScore: 50})
	}

	got, err := svc.Recent(ctx, 3, OrderAsc)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"2026-03-07", "2026-03-08", "2026-03-09"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, d := range want {
		if got[i].Date != d {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Date, d)
		}
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	d, err := svc.Dashboard(ctx, testNow)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.HasCheckedInToday || d.Today != nil {
		t.Error("expected no check-in today")
	}
	if d.AverageScore != nil || d.AverageStatus != nil {
		t.Error("expected no average")
	}
	if d.Recent == nil || len(d.Recent) != 0 {
		t.Errorf("recent = %v, want empty", d.Recent)
	}

	svc.Submit(ctx, Input{SleepHours: 8, SleepQuality: 8, Fatigue: 2, Soreness: 2}, testNow)

	d, err = svc.Dashboard(ctx, testNow)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !d.HasCheckedInToday {
		t.Error("expected check-in today")
	}
	if d.TodayStatus == nil || *d.TodayStatus != StatusOptimal {
		t.Errorf("today status = %v, want Optimal", d.TodayStatus)
	}
	if d.AverageScore == nil || *d.AverageScore != 80 {
		t.Errorf("average = %v, want 80", d.AverageScore)
	}
}

type stubSnapshotter struct {
	err   error
	calls int
}

func (s *stubSnapshotter) Snapshot(context.Context) (*model.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.Snapshot{ID: 1, Status: model.SnapshotStatusCompleted}, nil
}

func TestReset(t *testing.T) {
	svc, cs := setupService(t)
	ctx := context.Background()
	svc.Submit(ctx, Input{SleepQuality: 5, Fatigue: 5, Soreness: 5}, testNow)
	svc.Submit(ctx, Input{SleepQuality: 5, Fatigue: 5, Soreness: 5}, testNow.AddDate(0, 0, -1))

	snap := &stubSnapshotter{}
	svc.WithSnapshotter(snap)

	res, err := svc.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", res.Deleted)
	}
	if snap.calls != 1 || res.Snapshot == nil {
		t.Errorf("snapshot calls = %d, snapshot = %v", snap.calls, res.Snapshot)
	}
	n, _ := cs.Count(ctx)
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestResetAbortsOnSnapshotFailure(t *testing.T) {
	svc, cs := setupService(t)
	ctx := context.Background()
	svc.Submit(ctx, Input{SleepQuality: 5, Fatigue: 5, Soreness: 5}, testNow)
	svc.WithSnapshotter(&stubSnapshotter{err: errors.New("bucket unreachable")})

	if _, err := svc.Reset(ctx); err == nil {
		t.Fatal("expected error")
	}
	n, _ := cs.Count(ctx)
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

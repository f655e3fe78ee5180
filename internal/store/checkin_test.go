package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/recoverypulse/internal/database"
	"github.com/dukerupert/recoverypulse/internal/model"
)

func setupCheckInTestDB(t *testing.T) *CheckInStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCheckInStore(db)
}

func newCheckIn(date string, score int) model.CheckIn {
	return model.CheckIn{
		Date:          date,
		SleepHours:    7.5,
		SleepQuality:  7,
		Fatigue:       4,
		Soreness:      3,
		RecoveryScore: score,
		CreatedAt:     time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestCheckInInsertAndGet(t *testing.T) {
	cs := setupCheckInTestDB(t)
	ctx := context.Background()

	notes := "slept well"
	in := newCheckIn("2026-02-01", 67)
	in.Notes = &notes

	created, err := cs.Insert(ctx, in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected non-zero id")
	}
	if created.RecoveryScore != 67 {
		t.Errorf("recovery_score = %d, want 67", created.RecoveryScore)
	}
	if created.Notes == nil || *created.Notes != "slept well" {
		t.Errorf("notes = %v, want %q", created.Notes, "slept well")
	}
	if !created.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("created_at = %v, want %v", created.CreatedAt, in.CreatedAt)
	}

	got, err := cs.GetByDate(ctx, "2026-02-01")
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("get by date = %+v, want id %d", got, created.ID)
	}

	missing, err := cs.GetByDate(ctx, "2026-02-02")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing date, got %+v", missing)
	}
}

func TestCheckInInsertDuplicateDate(t *testing.T) {
	cs := setupCheckInTestDB(t)
	ctx := context.Background()

	if _, err := cs.Insert(ctx, newCheckIn("2026-02-01", 60)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := cs.Insert(ctx, newCheckIn("2026-02-01", 70))
	if !errors.Is(err, ErrDuplicateDate) {
		t.Fatalf("err = %v, want ErrDuplicateDate", err)
	}
}

func TestCheckInUpdatePartial(t *testing.T) {
	cs := setupCheckInTestDB(t)
	ctx := context.Background()

	created, err := cs.Insert(ctx, newCheckIn("2026-02-01", 60))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	fatigue := 9
	score := 41
	updated, err := cs.Update(ctx, created.ID, model.CheckInPatch{Fatigue: &fatigue, RecoveryScore: &score})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Fatigue != 9 {
		t.Errorf("fatigue = %d, want 9", updated.Fatigue)
	}
	if updated.RecoveryScore != 41 {
		t.Errorf("recovery_score = %d, want 41", updated.RecoveryScore)
	}
	if updated.SleepQuality != 7 {
		t.Errorf("sleep_quality = %d, want unchanged 7", updated.SleepQuality)
	}
	if updated.Date != "2026-02-01" {
		t.Errorf("date = %q, want unchanged", updated.Date)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}
}

func TestCheckInUpdateNotFound(t *testing.T) {
	cs := setupCheckInTestDB(t)

	fatigue := 2
	got, err := cs.Update(context.Background(), 999, model.CheckInPatch{Fatigue: &fatigue})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestCheckInListing(t *testing.T) {
	cs := setupCheckInTestDB(t)
	ctx := context.Background()

	for i, date := range []string{"2026-02-03", "2026-01-28", "2026-02-01", "2026-02-05"} {
		if _, err := cs.Insert(ctx, newCheckIn(date, 50+i)); err != nil {
			t.Fatalf("insert %s: %v", date, err)
		}
	}

	recent, err := cs.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Date != "2026-02-05" || recent[1].Date != "2026-02-03" {
		t.Errorf("recent dates = %s, %s; want 2026-02-05, 2026-02-03", recent[0].Date, recent[1].Date)
	}

	since, err := cs.ListSince(ctx, "2026-02-01")
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 3 {
		t.Fatalf("len = %d, want 3", len(since))
	}
	for _, c := range since {
		if c.Date < "2026-02-01" {
			t.Errorf("unexpected date %s before start", c.Date)
		}
	}
}

func TestCheckInDeleteAll(t *testing.T) {
	cs := setupCheckInTestDB(t)
	ctx := context.Background()

	for _, date := range []string{"2026-02-01", "2026-02-02"} {
		if _, err := cs.Insert(ctx, newCheckIn(date, 55)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := cs.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	count, err := cs.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

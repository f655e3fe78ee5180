package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/store"
)

// DefaultWindowDays is the span of the dashboard average and trend chart.
const DefaultWindowDays = 7

// ErrNotFound is returned when a check-in id does not exist.
var ErrNotFound = errors.New("check-in not found")

// Store is the record store the service persists check-ins through.
type Store interface {
	GetByID(ctx context.Context, id int64) (*model.CheckIn, error)
	GetByDate(ctx context.Context, date string) (*model.CheckIn, error)
	Insert(ctx context.Context, c model.CheckIn) (*model.CheckIn, error)
	Update(ctx context.Context, id int64, p model.CheckInPatch) (*model.CheckIn, error)
	ListSince(ctx context.Context, startDate string) ([]model.CheckIn, error)
	ListRecent(ctx context.Context, limit int) ([]model.CheckIn, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Snapshotter takes a copy of the database before destructive operations.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// Input is the raw user submission for a day.
type Input struct {
	SleepHours   float64 `json:"sleep_hours"`
	SleepQuality int     `json:"sleep_quality"`
	Fatigue      int     `json:"fatigue"`
	Soreness     int     `json:"soreness"`
	Notes        *string `json:"notes"`
}

type Service struct {
	store       Store
	snapshotter Snapshotter
	loc         *time.Location
	logger      *slog.Logger
	locks       *dateLocks
}

// NewService creates a Service. loc decides which calendar day "now" falls
// on; nil means time.Local.
func NewService(s Store, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, loc: loc, logger: logger, locks: newDateLocks()}
}

// WithSnapshotter makes Reset snapshot the database before deleting.
func (s *Service) WithSnapshotter(sn Snapshotter) *Service {
	s.snapshotter = sn
	return s
}

// Location returns the time zone calendar days are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the date key for now.
func (s *Service) Today(now time.Time) string {
	return DateOf(now, s.loc)
}

// Submit records today's check-in. An existing record for the day has every
// mutable field overwritten; created_at is kept. The score is always
// recomputed from the clamped metrics.
func (s *Service) Submit(ctx context.Context, in Input, now time.Time) (*model.CheckIn, error) {
	date := s.Today(now)
	unlock := s.locks.lock(date)
	defer unlock()

	rec := normalize(in)
	rec.Date = date

	existing, err := s.store.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load check-in %s: %w", date, err)
	}
	if existing != nil {
		return s.overwrite(ctx, existing.ID, rec)
	}

	rec.CreatedAt = now.UTC()
	created, err := s.store.Insert(ctx, rec)
	if errors.Is(err, store.ErrDuplicateDate) {
		// Another writer created the day between our read and insert.
		existing, err = s.store.GetByDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("reload check-in %s: %w", date, err)
		}
		if existing == nil {
			return nil, fmt.Errorf("check-in %s vanished after conflict", date)
		}
		return s.overwrite(ctx, existing.ID, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("create check-in %s: %w", date, err)
	}

	s.logger.Debug("check-in created", "date", date, "score", created.RecoveryScore)
	return created, nil
}

func (s *Service) overwrite(ctx context.Context, id int64, rec model.CheckIn) (*model.CheckIn, error) {
	notes := ""
	if rec.Notes != nil {
		notes = *rec.Notes
	}
	updated, err := s.store.Update(ctx, id, model.CheckInPatch{
		SleepHours:    &rec.SleepHours,
		SleepQuality:  &rec.SleepQuality,
		Fatigue:       &rec.Fatigue,
		Soreness:      &rec.Soreness,
		RecoveryScore: &rec.RecoveryScore,
		Notes:         &notes,
	})
	if err != nil {
		return nil, fmt.Errorf("update check-in %s: %w", rec.Date, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("update check-in %s: %w", rec.Date, ErrNotFound)
	}
	s.logger.Debug("check-in updated", "date", rec.Date, "score", updated.RecoveryScore)
	return updated, nil
}

// Edit applies a partial change to an existing check-in and recomputes its
// score from the merged metrics.
func (s *Service) Edit(ctx context.Context, id int64, p model.CheckInPatch) (*model.CheckIn, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load check-in %d: %w", id, err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}

	unlock := s.locks.lock(existing.Date)
	defer unlock()

	merged := Input{
		SleepHours:   existing.SleepHours,
		SleepQuality: existing.SleepQuality,
		Fatigue:      existing.Fatigue,
		Soreness:     existing.Soreness,
	}
	if p.SleepHours != nil {
		merged.SleepHours = *p.SleepHours
	}
	if p.SleepQuality != nil {
		merged.SleepQuality = *p.SleepQuality
	}
	if p.Fatigue != nil {
		merged.Fatigue = *p.Fatigue
	}
	if p.Soreness != nil {
		merged.Soreness = *p.Soreness
	}
	rec := normalize(merged)

	updated, err := s.store.Update(ctx, id, model.CheckInPatch{
		SleepHours:    &rec.SleepHours,
		SleepQuality:  &rec.SleepQuality,
		Fatigue:       &rec.Fatigue,
		Soreness:      &rec.Soreness,
		RecoveryScore: &rec.RecoveryScore,
		Notes:         p.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("edit check-in %d: %w", id, err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

// TodayCheckIn returns the check-in for now's date, or nil.
func (s *Service) TodayCheckIn(ctx context.Context, now time.Time) (*model.CheckIn, error) {
	c, err := s.store.GetByDate(ctx, s.Today(now))
	if err != nil {
		return nil, fmt.Errorf("load today's check-in: %w", err)
	}
	return c, nil
}

// Recent returns up to limit most recent check-ins in the given order.
func (s *Service) Recent(ctx context.Context, limit int, order Order) ([]model.CheckIn, error) {
	if limit < 1 {
		limit = DefaultWindowDays
	}
	records, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent check-ins: %w", err)
	}
	return SelectRecent(records, limit, order), nil
}

// Average returns the mean score over the trailing window, or nil when the
// window holds no check-ins.
func (s *Service) Average(ctx context.Context, windowDays int, now time.Time) (*int, error) {
	today := s.Today(now)
	records, err := s.store.ListSince(ctx, WindowStart(today, windowDays))
	if err != nil {
		return nil, fmt.Errorf("list check-ins for average: %w", err)
	}
	avg, ok := AggregateWindow(records, today, windowDays)
	if !ok {
		return nil, nil
	}
	return &avg, nil
}

// Trend is the chart view over a trailing window.
type Trend struct {
	Days          int        `json:"days"`
	Points        []DayPoint `json:"points"`
	AverageScore  *int       `json:"average_score"`
	AverageStatus *Status    `json:"average_status"`
}

func (s *Service) Trend(ctx context.Context, days int, now time.Time) (*Trend, error) {
	if days < 1 {
		days = DefaultWindowDays
	}
	today := s.Today(now)
	records, err := s.store.ListSince(ctx, WindowStart(today, days))
	if err != nil {
		return nil, fmt.Errorf("list check-ins for trend: %w", err)
	}

	t := &Trend{Days: days, Points: DailySeries(records, today, days)}
	if avg, ok := AggregateWindow(records, today, days); ok {
		status := Classify(avg)
		t.AverageScore = &avg
		t.AverageStatus = &status
	}
	return t, nil
}

// Dashboard is the home screen view.
type Dashboard struct {
	Date              string          `json:"date"`
	Today             *model.CheckIn  `json:"today"`
	TodayStatus       *Status         `json:"today_status"`
	HasCheckedInToday bool            `json:"has_checked_in_today"`
	AverageScore      *int            `json:"average_score"`
	AverageStatus     *Status         `json:"average_status"`
	Recent            []model.CheckIn `json:"recent"`
}

func (s *Service) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	today, err := s.TodayCheckIn(ctx, now)
	if err != nil {
		return nil, err
	}
	recent, err := s.Recent(ctx, DefaultWindowDays, OrderDesc)
	if err != nil {
		return nil, err
	}
	avg, err := s.Average(ctx, DefaultWindowDays, now)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Date:              s.Today(now),
		Today:             today,
		HasCheckedInToday: today != nil,
		AverageScore:      avg,
		Recent:            recent,
	}
	if d.Recent == nil {
		d.Recent = []model.CheckIn{}
	}
	if today != nil {
		st := Classify(today.RecoveryScore)
		d.TodayStatus = &st
	}
	if avg != nil {
		st := Classify(*avg)
		d.AverageStatus = &st
	}
	return d, nil
}

// ResetResult describes an administrative reset.
type ResetResult struct {
	Deleted  int64           `json:"deleted"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
}

// Reset deletes every check-in. When a snapshotter is configured the
// database is snapshotted first and a failed snapshot aborts the reset.
func (s *Service) Reset(ctx context.Context) (*ResetResult, error) {
	res := &ResetResult{}
	if s.snapshotter != nil {
		sn, err := s.snapshotter.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot before reset: %w", err)
		}
		res.Snapshot = sn
	}

	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset check-ins: %w", err)
	}
	res.Deleted = n
	s.logger.Warn("check-ins reset", "deleted", n)
	return res, nil
}

func normalize(in Input) model.CheckIn {
	c := model.CheckIn{
		SleepHours:   in.SleepHours,
		SleepQuality: ClampMetric(in.SleepQuality),
		Fatigue:      ClampMetric(in.Fatigue),
		Soreness:     ClampMetric(in.Soreness),
		Notes:        in.Notes,
	}
	if c.SleepHours < 0 {
		c.SleepHours = 0
	}
	c.RecoveryScore = ComputeScore(c.SleepQuality, c.Fatigue, c.Soreness)
	return c
}

// dateLocks serializes read-check-write sequences per calendar day.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*dateLock
}

type dateLock struct {
	mu   sync.Mutex
	refs int
}

func newDateLocks() *dateLocks {
	return &dateLocks{locks: make(map[string]*dateLock)}
}

func (d *dateLocks) lock(date string) func() {
	d.mu.Lock()
	l, ok := d.locks[date]
	if !ok {
		l = &dateLock{}
		d.locks[date] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, date)
		}
		d.mu.Unlock()
	}
}

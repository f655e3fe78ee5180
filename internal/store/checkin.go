package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/recoverypulse/internal/model"
)

// ErrDuplicateDate is returned by Insert when a check-in already exists for the date.
var ErrDuplicateDate = errors.New("check-in already exists for date")

type CheckInStore struct {
	db *sql.DB
}

func NewCheckInStore(db *sql.DB) *CheckInStore {
	return &CheckInStore{db: db}
}

func scanCheckIn(scanner interface{ Scan(...any) error }) (*model.CheckIn, error) {
	var c model.CheckIn
	var notes sql.NullString

	err := scanner.Scan(
		&c.ID, &c.Date, &c.SleepHours, &c.SleepQuality, &c.Fatigue, &c.Soreness,
		&c.RecoveryScore, &notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes.Valid {
		c.Notes = &notes.String
	}
	return &c, nil
}

const checkInCols = `id, date, sleep_hours, sleep_quality, fatigue, soreness, recovery_score, notes, created_at, updated_at`

// Insert stores a new check-in. CreatedAt is taken from c; a zero value means now.
func (s *CheckInStore) Insert(ctx context.Context, c model.CheckIn) (*model.CheckIn, error) {
	createdAt := c.CreatedAt.UTC()
	if c.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	notes := nullNotes(c.Notes)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO check_ins (date, sleep_hours, sleep_quality, fatigue, soreness, recovery_score, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Date, c.SleepHours, c.SleepQuality, c.Fatigue, c.Soreness, c.RecoveryScore, notes, createdAt, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert check-in %s: %w", c.Date, ErrDuplicateDate)
		}
		return nil, fmt.Errorf("insert check-in: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CheckInStore) GetByID(ctx context.Context, id int64) (*model.CheckIn, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkInCols+` FROM check_ins WHERE id = ?`, id)
	c, err := scanCheckIn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return c, nil
}

// GetByDate returns the check-in for a "YYYY-MM-DD" date, or nil if none exists.
func (s *CheckInStore) GetByDate(ctx context.Context, date string) (*model.CheckIn, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkInCols+` FROM check_ins WHERE date = ?`, date)
	c, err := scanCheckIn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check-in by date: %w", err)
	}
	return c, nil
}

// Update applies the non-nil fields of p. It returns nil if id does not exist.
// date and created_at are never touched.
func (s *CheckInStore) Update(ctx context.Context, id int64, p model.CheckInPatch) (*model.CheckIn, error) {
	var sets []string
	var args []any
	if p.SleepHours != nil {
		sets = append(sets, "sleep_hours = ?")
		args = append(args, *p.SleepHours)
	}
	if p.SleepQuality != nil {
		sets = append(sets, "sleep_quality = ?")
		args = append(args, *p.SleepQuality)
	}
	if p.Fatigue != nil {
		sets = append(sets, "fatigue = ?")
		args = append(args, *p.Fatigue)
	}
	if p.Soreness != nil {
		sets = append(sets, "soreness = ?")
		args = append(args, *p.Soreness)
	}
	if p.RecoveryScore != nil {
		sets = append(sets, "recovery_score = ?")
		args = append(args, *p.RecoveryScore)
	}
	if p.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, nullNotes(p.Notes))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE check_ins SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update check-in: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

// ListSince returns check-ins dated on or after startDate, newest first.
func (s *CheckInStore) ListSince(ctx context.Context, startDate string) ([]model.CheckIn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkInCols+` FROM check_ins WHERE date >= ? ORDER BY date DESC`, startDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list check-ins since %s: %w", startDate, err)
	}
	return collectCheckIns(rows)
}

// ListRecent returns up to limit check-ins, newest date first.
func (s *CheckInStore) ListRecent(ctx context.Context, limit int) ([]model.CheckIn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkInCols+` FROM check_ins ORDER BY date DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent check-ins: %w", err)
	}
	return collectCheckIns(rows)
}

func (s *CheckInStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM check_ins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count check-ins: %w", err)
	}
	return n, nil
}

// DeleteAll removes every check-in and returns the number deleted.
func (s *CheckInStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM check_ins`)
	if err != nil {
		return 0, fmt.Errorf("delete check-ins: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func collectCheckIns(rows *sql.Rows) ([]model.CheckIn, error) {
	defer rows.Close()

	var out []model.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// nullNotes stores nil and empty notes as NULL.
func nullNotes(n *string) sql.NullString {
	if n == nil || *n == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *n, Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

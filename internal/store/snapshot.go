package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/recoverypulse/internal/model"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, filename, location, object_key, size_bytes, status, error_message, created_at, completed_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.Snapshot, error) {
	var sn model.Snapshot
	var errMsg sql.NullString
	var completedAt sql.NullTime
	err := scanner.Scan(
		&sn.ID, &sn.Filename, &sn.Location, &sn.ObjectKey, &sn.SizeBytes,
		&sn.Status, &errMsg, &sn.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	sn.ErrorMessage = errMsg.String
	if completedAt.Valid {
		sn.CompletedAt = &completedAt.Time
	}
	return &sn, nil
}

func (s *SnapshotStore) Create(ctx context.Context, filename string, location model.SnapshotLocation, objectKey string) (*model.Snapshot, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (filename, location, object_key, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		filename, location, objectKey, model.SnapshotStatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return sn, nil
}

func (s *SnapshotStore) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *sn)
	}
	return out, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(ctx context.Context, id int64, status model.SnapshotStatus, errorMsg string) error {
	var errPtr *string
	if errorMsg != "" {
		errPtr = &errorMsg
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, error_message = ? WHERE id = ?`,
		status, errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) MarkCompleted(ctx context.Context, id, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		model.SnapshotStatusCompleted, sizeBytes, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark snapshot completed: %w", err)
	}
	return nil
}

package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/recoverypulse/internal/database"
	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := store.NewCheckInStore(db).Insert(context.Background(), model.CheckIn{Date: "2026-03-10", RecoveryScore: 77}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func TestManagerDisabled(t *testing.T) {
	db := setupDB(t)

	m := NewManager(Config{Dir: t.TempDir()}, db, store.NewSnapshotStore(db), nil)
	if m.Enabled() {
		t.Error("no passphrase should mean disabled")
	}
	if _, err := m.Snapshot(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}

	m = NewManager(Config{Passphrase: "pw"}, db, store.NewSnapshotStore(db), nil)
	if m.Enabled() {
		t.Error("no destination should mean disabled")
	}

	m = NewManager(Config{Passphrase: "pw", S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}}, db, store.NewSnapshotStore(db), nil)
	if !m.Enabled() {
		t.Error("s3 destination should enable snapshots")
	}
}

func TestSnapshotLocalAndExport(t *testing.T) {
	db := setupDB(t)
	dir := filepath.Join(t.TempDir(), "snapshots")
	m := NewManager(Config{Dir: dir, Passphrase: "pw"}, db, store.NewSnapshotStore(db), nil)
	ctx := context.Background()

	sn, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if sn.Status != model.SnapshotStatusCompleted || sn.Location != model.SnapshotLocal {
		t.Errorf("snapshot = %+v", sn)
	}
	info, err := os.Stat(sn.ObjectKey)
	if err != nil {
		t.Fatalf("stat snapshot file: %v", err)
	}
	if info.Size() != sn.SizeBytes {
		t.Errorf("size = %d, recorded %d", info.Size(), sn.SizeBytes)
	}

	out := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Export(ctx, sn.ID, out); err != nil {
		t.Fatalf("export: %v", err)
	}

	restored, err := sql.Open("sqlite", out)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var score int
	if err := restored.QueryRow(`SELECT recovery_score FROM check_ins WHERE date = '2026-03-10'`).Scan(&score); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if score != 77 {
		t.Errorf("score = %d, want 77", score)
	}
}

func TestSnapshotS3(t *testing.T) {
	db := setupDB(t)
	mock := newMockS3()
	var results []bool
	m := NewManager(Config{Passphrase: "pw", S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Prefix: "pulse"}}, db, store.NewSnapshotStore(db), nil).
		OnResult(func(ok bool) { results = append(results, ok) })
	m.client = mock
	ctx := context.Background()

	sn, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(results) != 1 || !results[0] {
		t.Errorf("results = %v, want [true]", results)
	}
	if sn.Location != model.SnapshotS3 || !strings.HasPrefix(sn.ObjectKey, "pulse/snapshot-") {
		t.Errorf("snapshot = %+v", sn)
	}
	if _, ok := mock.objects[sn.ObjectKey]; !ok {
		t.Fatalf("object %q not uploaded", sn.ObjectKey)
	}

	if err := m.Export(ctx, sn.ID, filepath.Join(t.TempDir(), "out.db")); err != nil {
		t.Errorf("export: %v", err)
	}
}

func TestSnapshotUploadFailureRecorded(t *testing.T) {
	db := setupDB(t)
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	ss := store.NewSnapshotStore(db)
	var results []bool
	m := NewManager(Config{Passphrase: "pw", S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}}, db, ss, nil).
		OnResult(func(ok bool) { results = append(results, ok) })
	m.client = mock
	ctx := context.Background()

	if _, err := m.Snapshot(ctx); err == nil {
		t.Fatal("expected upload error")
	}
	if len(results) != 1 || results[0] {
		t.Errorf("results = %v, want [false]", results)
	}

	list, err := m.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Status != model.SnapshotStatusFailed || !strings.Contains(list[0].ErrorMessage, "access denied") {
		t.Errorf("record = %+v", list[0])
	}

	if err := m.Export(ctx, list[0].ID, filepath.Join(t.TempDir(), "out.db")); !errors.Is(err, ErrNotFound) {
		t.Errorf("export of failed snapshot: err = %v, want ErrNotFound", err)
	}
}

func TestExportWrongPassphrase(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()
	ss := store.NewSnapshotStore(db)
	ctx := context.Background()

	sn, err := NewManager(Config{Dir: dir, Passphrase: "right"}, db, ss, nil).Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.db")
	if err := NewManager(Config{Dir: dir, Passphrase: "wrong"}, db, ss, nil).Export(ctx, sn.ID, out); err == nil {
		t.Fatal("expected decrypt error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no file should be written on failure")
	}
}

// Package snapshot takes encrypted copies of the database, kept in a local
// directory or uploaded to S3-compatible storage.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/recoverypulse/internal/model"
)

// ErrNotConfigured is returned when no passphrase or destination is set.
var ErrNotConfigured = errors.New("snapshots not configured")

// ErrNotFound is returned for an unknown snapshot id.
var ErrNotFound = errors.New("snapshot not found")

// s3Client is the subset of the S3 API used here.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

func (c S3Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	Dir        string   `yaml:"dir"`
	Passphrase string   `yaml:"passphrase"`
	S3         S3Config `yaml:"s3"`
}

// Records persists snapshot metadata.
type Records interface {
	Create(ctx context.Context, filename string, location model.SnapshotLocation, objectKey string) (*model.Snapshot, error)
	GetByID(ctx context.Context, id int64) (*model.Snapshot, error)
	List(ctx context.Context, limit int) ([]model.Snapshot, error)
	UpdateStatus(ctx context.Context, id int64, status model.SnapshotStatus, errorMsg string) error
	MarkCompleted(ctx context.Context, id, sizeBytes int64) error
}

// Manager takes one snapshot at a time.
type Manager struct {
	cfg     Config
	db      *sql.DB
	records Records
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time
	onDone  func(ok bool)

	mu sync.Mutex
}

func NewManager(cfg Config, db *sql.DB, records Records, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{cfg: cfg, db: db, records: records, logger: logger, now: time.Now}
	if cfg.S3.enabled() {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

// OnResult registers fn to be called after every snapshot attempt.
func (m *Manager) OnResult(fn func(ok bool)) *Manager {
	m.onDone = fn
	return m
}

func (m *Manager) report(ok bool) {
	if m.onDone != nil {
		m.onDone(ok)
	}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether Snapshot can run.
func (m *Manager) Enabled() bool {
	return m.cfg.Passphrase != "" && (m.client != nil || m.cfg.Dir != "")
}

// Snapshot copies the database with VACUUM INTO, encrypts the copy and
// stores it. The metadata row tracks progress and failures.
func (m *Manager) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if !m.Enabled() {
		return nil, ErrNotConfigured
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	filename := fmt.Sprintf("snapshot-%s.db.enc", m.now().UTC().Format("2006-01-02T150405.000Z"))
	location, key := model.SnapshotLocal, filepath.Join(m.cfg.Dir, filename)
	if m.client != nil {
		location, key = model.SnapshotS3, path.Join(m.cfg.S3.Prefix, filename)
	}

	rec, err := m.records.Create(ctx, filename, location, key)
	if err != nil {
		m.report(false)
		return nil, fmt.Errorf("create snapshot record: %w", err)
	}
	log := m.logger.With("snapshot_id", rec.ID, "location", location)

	size, err := m.write(ctx, rec.ID, location, key)
	if err != nil {
		if uerr := m.records.UpdateStatus(ctx, rec.ID, model.SnapshotStatusFailed, err.Error()); uerr != nil {
			log.Error("mark snapshot failed", "error", uerr)
		}
		log.Error("snapshot failed", "error", err)
		m.report(false)
		return nil, err
	}

	if err := m.records.MarkCompleted(ctx, rec.ID, size); err != nil {
		m.report(false)
		return nil, fmt.Errorf("mark snapshot completed: %w", err)
	}
	log.Info("snapshot completed", "key", key, "bytes", size)
	m.report(true)
	return m.records.GetByID(ctx, rec.ID)
}

func (m *Manager) write(ctx context.Context, id int64, location model.SnapshotLocation, key string) (int64, error) {
	tmpDir, err := os.MkdirTemp("", "recoverypulse-snapshot-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	copyPath := filepath.Join(tmpDir, "copy.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO "+quote(copyPath)); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}
	plain, err := os.ReadFile(copyPath)
	if err != nil {
		return 0, fmt.Errorf("read database copy: %w", err)
	}
	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return 0, err
	}

	if location == model.SnapshotS3 {
		if err := m.records.UpdateStatus(ctx, id, model.SnapshotStatusUploading, ""); err != nil {
			return 0, fmt.Errorf("mark snapshot uploading: %w", err)
		}
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.S3.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(sealed),
			ContentLength: aws.Int64(int64(len(sealed))),
		})
		if err != nil {
			return 0, fmt.Errorf("upload to s3: %w", err)
		}
		return int64(len(sealed)), nil
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o700); err != nil {
		return 0, fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(key, sealed, 0o600); err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	return int64(len(sealed)), nil
}

// List returns the newest snapshots first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	return m.records.List(ctx, limit)
}

// Export decrypts a completed snapshot to dstPath after checking that it
// is a sound SQLite database.
func (m *Manager) Export(ctx context.Context, id int64, dstPath string) error {
	if m.cfg.Passphrase == "" {
		return ErrNotConfigured
	}
	rec, err := m.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get snapshot: %w", err)
	}
	if rec == nil || rec.Status != model.SnapshotStatusCompleted {
		return ErrNotFound
	}

	sealed, err := m.fetch(ctx, rec)
	if err != nil {
		return err
	}
	plain, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, plain, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err := checkIntegrity(ctx, dstPath); err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, rec *model.Snapshot) ([]byte, error) {
	if rec.Location != model.SnapshotS3 {
		data, err := os.ReadFile(rec.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return data, nil
	}
	if m.client == nil {
		return nil, ErrNotConfigured
	}
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(rec.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 body: %w", err)
	}
	return data, nil
}

func checkIntegrity(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open exported db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

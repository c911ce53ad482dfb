// Package backup takes encrypted snapshots of the SQLite database and keeps
// them in the photo bucket under backups/.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/heirloom/internal/config"
	"github.com/dukerupert/heirloom/internal/model"
	"github.com/dukerupert/heirloom/internal/photo"
	"github.com/dukerupert/heirloom/internal/store"
)

var ErrDisabled = errors.New("backups not configured")

// objectClient is the subset of the S3 API the manager uses.
type objectClient interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Manager runs snapshots, prunes old ones and restores them.
type Manager struct {
	mu     sync.Mutex // one snapshot at a time
	db     *sql.DB
	store  *store.BackupStore
	client objectClient
	bucket string
	cfg    config.BackupConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a manager that is disabled unless both S3 and a
// passphrase are configured.
func NewManager(s3cfg config.S3Config, cfg config.BackupConfig, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		db:     db,
		store:  bs,
		bucket: s3cfg.Bucket,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if s3cfg.Enabled() && cfg.Passphrase != "" {
		m.client = photo.NewS3Client(s3cfg)
	}
	return m
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Loop runs a snapshot and a prune every configured interval until ctx is
// cancelled. It returns at once when backups are disabled.
func (m *Manager) Loop(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if b, err := m.Run(ctx); err != nil {
				m.logger.Error("scheduled backup failed", "error", err)
			} else {
				m.logger.Info("backup completed", "id", b.ID, "key", b.ObjectKey, "size_bytes", b.SizeBytes)
			}
			if n, err := m.Prune(ctx); err != nil {
				m.logger.Error("prune backups", "error", err)
			} else if n > 0 {
				m.logger.Info("pruned old backups", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Run snapshots the database, encrypts it and uploads it. The backup row
// is marked failed if any step after its creation fails.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	filename := fmt.Sprintf("heirloom-%s.db.enc", m.now().Format("2006-01-02T150405.000Z"))
	rec, err := m.store.Create(ctx, filename, "backups/"+filename)
	if err != nil {
		return nil, err
	}

	size, err := m.upload(ctx, rec.ObjectKey)
	if err != nil {
		if markErr := m.store.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			m.logger.Error("record backup failure", "id", rec.ID, "error", markErr)
		}
		return nil, err
	}
	if err := m.store.MarkCompleted(ctx, rec.ID, size); err != nil {
		return nil, err
	}
	return m.store.GetByID(ctx, rec.ID)
}

func (m *Manager) upload(ctx context.Context, key string) (int64, error) {
	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	sealed, err := Encrypt(snapshot, m.cfg.Passphrase)
	if err != nil {
		return 0, err
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}
	return int64(len(sealed)), nil
}

// snapshot writes a transactionally consistent copy of the live database
// with VACUUM INTO and returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "heirloom-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Prune deletes backups older than the retention window, rows first and
// then their objects. Object deletion failures are logged and skipped.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}
	keys, err := m.store.DeleteOlderThan(ctx, m.now().Add(-m.cfg.Retention))
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}

// Restore downloads backup id, decrypts it, checks its integrity and writes
// it to dst. dst must not exist; the live database is never touched.
func (m *Manager) Restore(ctx context.Context, id int64, dst string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return store.ErrNotFound
	}
	if rec.Status != model.BackupStatusCompleted {
		return fmt.Errorf("backup %d is %s", id, rec.Status)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("restore target %s already exists", dst)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(rec.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer out.Body.Close()
	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	plain, err := Decrypt(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	partial := dst + ".partial"
	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}
	if _, err := f.Write(plain); err != nil {
		f.Close()
		os.Remove(partial)
		return fmt.Errorf("write %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("close %s: %w", partial, err)
	}
	if err := checkIntegrity(ctx, partial); err != nil {
		os.Remove(partial)
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		return fmt.Errorf("move restored database: %w", err)
	}
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

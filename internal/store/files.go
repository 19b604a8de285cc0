package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Fingerprint returns the last recorded modification time of filePath.
// The boolean is false when the file has never been fingerprinted.
func (s *Store) Fingerprint(ctx context.Context, filePath string) (time.Time, bool, error) {
	var stamp string
	err := s.conn.QueryRowContext(ctx,
		`SELECT last_modified FROM file_meta WHERE file_path = ?`, filePath).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read fingerprint for %s: %w", filePath, err)
	}

	t, err := parseStamp(stamp)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid fingerprint %q for %s: %w", stamp, filePath, err)
	}
	return t, true, nil
}

// SetFingerprint records modTime as the last observed modification time of filePath.
func (s *Store) SetFingerprint(ctx context.Context, filePath string, modTime time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO file_meta (file_path, last_modified)
		VALUES (?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			last_modified = excluded.last_modified
	`, filePath, formatStamp(modTime))
	if err != nil {
		return fmt.Errorf("failed to set fingerprint for %s: %w", filePath, err)
	}
	return nil
}

// ClearFingerprint forgets the fingerprint of filePath and keeps its
// metrics. Returns nil if none was recorded.
func (s *Store) ClearFingerprint(ctx context.Context, filePath string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM file_meta WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to clear fingerprint for %s: %w", filePath, err)
	}
	return nil
}

// DeleteFile purges every metric and the fingerprint of filePath.
// Returns nil if nothing was stored for it.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete metrics for %s: %w", filePath, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_meta WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("failed to delete fingerprint for %s: %w", filePath, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", filePath, err)
	}
	return nil
}

// FileCount returns the number of fingerprinted files.
func (s *Store) FileCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_meta`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

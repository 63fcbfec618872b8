package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupService snapshots the sqlite database on a schedule. Snapshots are
// taken with VACUUM INTO, which is consistent under WAL while writers are
// active; copying the file directly is not.
type BackupService struct {
	db            *DB
	storagePath   string
	interval      time.Duration
	retentionDays int
	logger        *zerolog.Logger
}

func NewBackupService(db *DB, storagePath string, interval time.Duration, retentionDays int, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		storagePath:   storagePath,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

func (s *BackupService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("path", s.storagePath).Msg("backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Snapshot(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.cleanupOld()
		}
	}
}

// Snapshot writes a point-in-time copy of the database into the storage path.
func (s *BackupService) Snapshot(ctx context.Context) error {
	if err := os.MkdirAll(s.storagePath, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("citysoccer_%s.db", time.Now().Format("20060102_150405"))
	target := filepath.Join(s.storagePath, name)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("vacuum into %s: %w", target, err)
	}

	s.logger.Info().Str("path", target).Msg("backup completed")
	return nil
}

func (s *BackupService) cleanupOld() {
	if s.retentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.storagePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting expired backup")
			_ = os.Remove(filepath.Join(s.storagePath, file.Name()))
		}
	}
}

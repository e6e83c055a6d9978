package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Clear removes tracks in the given statuses. With no statuses, every track
// is removed. Feature rows follow via the foreign key cascade. Returns the
// number of tracks removed.
func (s *Store) Clear(ctx context.Context, statuses ...TrackStatus) (int, error) {
	if len(statuses) == 0 {
		res, err := s.execWithRetry(ctx, `DELETE FROM tracks`)
		if err != nil {
			return 0, fmt.Errorf("clear tracks: %w", err)
		}
		affected, _ := res.RowsAffected()
		return int(affected), nil
	}

	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		if !ValidStatus(status) {
			return 0, fmt.Errorf("invalid track status %q", status)
		}
		args = append(args, status)
	}
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tracks WHERE analysis_status IN (`+makePlaceholders(len(statuses))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear tracks: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// CheckHealth returns diagnostic information about the library database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("library database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat library database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("library database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("library database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping library database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tracks'")
	if err := row.Scan(&tableName); err == nil {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tracks")
		if err := row.Scan(&health.TotalTracks); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tracks: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

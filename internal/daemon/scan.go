package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cadence/internal/library"
	"cadence/internal/logging"
	"cadence/internal/services"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".ogg":  {},
	".m4a":  {},
	".wav":  {},
	".aac":  {},
	".opus": {},
}

func isAudioFile(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ScanResult summarizes a library scan.
type ScanResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Known   int `json:"known"`
}

// Scan walks the configured music directory and registers every audio file
// that is not already in the library. Known paths are left untouched.
func (d *Daemon) Scan(ctx context.Context) (ScanResult, error) {
	root := strings.TrimSpace(d.cfg.Paths.MusicDir)
	if root == "" {
		return ScanResult{}, services.Wrap(services.ErrConfiguration, "daemon", "scan",
			"music_dir is not configured", nil)
	}
	if _, err := os.Stat(root); err != nil {
		return ScanResult{}, services.Wrap(services.ErrConfiguration, "daemon", "scan",
			fmt.Sprintf("music directory %q is not accessible", root), err)
	}

	var result ScanResult
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are logged and skipped rather than
			// aborting the entire scan.
			d.logger.Warn("scan skipping unreadable path",
				logging.String("path", path),
				logging.Error(walkErr),
			)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !isAudioFile(path) {
			return nil
		}

		result.Scanned++
		existing, lookupErr := d.store.GetByPath(ctx, path)
		if lookupErr != nil {
			return lookupErr
		}
		if existing != nil {
			result.Known++
			return nil
		}
		if _, addErr := d.registerFile(ctx, path); addErr != nil {
			d.logger.Warn("scan failed to register file",
				logging.String("path", path),
				logging.Error(addErr),
			)
			return nil
		}
		result.Added++
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk music directory: %w", err)
	}

	d.logger.Info("library scan complete",
		logging.Int("scanned", result.Scanned),
		logging.Int("added", result.Added),
		logging.String(logging.FieldEventType, "library_scan"),
	)
	return result, nil
}

// AddFile registers a single audio file for analysis.
func (d *Daemon) AddFile(ctx context.Context, path string) (*library.Track, error) {
	abs, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add-file",
			fmt.Sprintf("cannot access %q", abs), err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add-file",
			fmt.Sprintf("%q is a directory, expected an audio file", abs), nil)
	}
	if !isAudioFile(abs) {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add-file",
			fmt.Sprintf("unsupported file extension %q", filepath.Ext(abs)), nil)
	}
	return d.registerFile(ctx, abs)
}

// registerFile inserts the path with metadata guessed from its location:
// title from the file name, album and artist from the parent directories.
func (d *Daemon) registerFile(ctx context.Context, path string) (*library.Track, error) {
	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	album := filepath.Base(filepath.Dir(path))
	artist := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if album == "." || album == string(filepath.Separator) {
		album = ""
	}
	if artist == "." || artist == string(filepath.Separator) {
		artist = ""
	}
	return d.store.AddTrack(ctx, path, title, artist, album)
}

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/logging"
)

// Extractor produces audio features for a file. Implementations may take
// seconds per call; errors are transient unless tagged with ErrFatal.
type Extractor interface {
	Extract(ctx context.Context, path string) (Features, error)
}

// toolResult is the JSON document the analyzer binary prints on stdout.
type toolResult struct {
	Success      bool     `json:"success"`
	Features     Features `json:"features"`
	ErrorMessage string   `json:"error_message"`
}

// CommandExtractor shells out to an external analyzer binary per track.
type CommandExtractor struct {
	binary      string
	sampleRate  int
	maxDuration int
	hopLength   int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewCommandExtractor builds an extractor from analysis configuration.
func NewCommandExtractor(cfg *config.Config, logger *slog.Logger) *CommandExtractor {
	return &CommandExtractor{
		binary:      cfg.Analysis.AnalyzerBinary,
		sampleRate:  cfg.Analysis.SampleRate,
		maxDuration: cfg.Analysis.MaxDuration,
		hopLength:   cfg.Analysis.HopLength,
		timeout:     time.Duration(cfg.Analysis.ExtractTimeout) * time.Second,
		logger:      logging.NewComponentLogger(logger, "analysis"),
	}
}

// Extract runs the analyzer on one file and parses its feature document.
func (e *CommandExtractor) Extract(ctx context.Context, path string) (Features, error) {
	if info, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file not found: %s", ErrFatal, path)
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: permission denied: %s", ErrFatal, path)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	} else if info.Size() == 0 {
		return nil, fmt.Errorf("%w: file is empty: %s", ErrFatal, path)
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{
		"--sample-rate", strconv.Itoa(e.sampleRate),
		"--max-duration", strconv.Itoa(e.maxDuration),
		"--hop-length", strconv.Itoa(e.hopLength),
		"--format", "json",
		path,
	}
	cmd := exec.CommandContext(runCtx, e.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	stdout, err := cmd.Output()
	elapsed := time.Since(started)

	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("analyzer timed out after %s: %w", e.timeout, runCtx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, classify(fmt.Errorf("analyzer failed: %s", detail))
	}

	var result toolResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &result); err != nil {
		return nil, fmt.Errorf("parse analyzer output: %w", err)
	}
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "analyzer reported failure without a message"
		}
		return nil, classify(fmt.Errorf("feature extraction failed: %s", msg))
	}
	if len(result.Features) == 0 {
		return nil, errors.New("analyzer returned no features")
	}

	e.logger.Debug("features extracted",
		logging.String("path", path),
		logging.Duration("elapsed", elapsed),
		logging.Int("attributes", len(result.Features)),
	)
	return result.Features, nil
}

// classify tags errors whose text matches a known fatal pattern so callers
// can short-circuit retries without string sniffing of their own.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if LooksFatal(err.Error()) {
		return fmt.Errorf("%w: %s", ErrFatal, err.Error())
	}
	return err
}

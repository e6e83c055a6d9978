package analysis_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cadence/internal/analysis"
	"cadence/internal/logging"
	"cadence/internal/testsupport"
)

const successDoc = `{"success": true, "features": {"tempo": 120.5, "key": "C", "mode": "major", "energy": 0.8, "sample_rate": 8000}}`

func TestExtractParsesFeatureDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer(successDoc, 0))
	input := filepath.Join(cfg.Paths.MusicDir, "track.flac")
	testsupport.WriteFile(t, input, 64)

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	features, err := extractor.Extract(context.Background(), input)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if tempo, ok := features.Float("tempo"); !ok || tempo != 120.5 {
		t.Fatalf("unexpected tempo: %v %v", tempo, ok)
	}
	if key, ok := features.Str("key"); !ok || key != "C" {
		t.Fatalf("unexpected key: %q %v", key, ok)
	}
	if rate, ok := features.Int("sample_rate"); !ok || rate != 8000 {
		t.Fatalf("unexpected sample rate: %v %v", rate, ok)
	}
}

func TestExtractMissingFileIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer(successDoc, 0))

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), filepath.Join(cfg.Paths.MusicDir, "missing.flac"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !analysis.IsFatal(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected file-not-found message, got %v", err)
	}
}

func TestExtractEmptyFileIsFatal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer(successDoc, 0))
	// WriteFile pads zero sizes to one byte, so truncate for a real empty file.
	input := filepath.Join(cfg.Paths.MusicDir, "empty.flac")
	testsupport.WriteFile(t, input, 1)
	if err := os.Truncate(input, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), input)
	if !analysis.IsFatal(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
}

func TestExtractToolReportedFatalFailure(t *testing.T) {
	failureDoc := `{"success": false, "error_message": "unsupported format: .xyz"}`
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer(failureDoc, 0))
	input := filepath.Join(cfg.Paths.MusicDir, "track.xyz")
	testsupport.WriteFile(t, input, 64)

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), input)
	if err == nil {
		t.Fatal("expected error")
	}
	if !analysis.IsFatal(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
}

func TestExtractToolReportedTransientFailure(t *testing.T) {
	failureDoc := `{"success": false, "error_message": "resource temporarily unavailable"}`
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer(failureDoc, 0))
	input := filepath.Join(cfg.Paths.MusicDir, "track.flac")
	testsupport.WriteFile(t, input, 64)

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), input)
	if err == nil {
		t.Fatal("expected error")
	}
	if analysis.IsFatal(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestExtractNonZeroExitIsTransient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer("", 3))
	input := filepath.Join(cfg.Paths.MusicDir, "track.flac")
	testsupport.WriteFile(t, input, 64)

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), input)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if analysis.IsFatal(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestExtractBadJSONOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedAnalyzer("not json", 0))
	input := filepath.Join(cfg.Paths.MusicDir, "track.flac")
	testsupport.WriteFile(t, input, 64)

	extractor := analysis.NewCommandExtractor(cfg, logging.NewNop())
	_, err := extractor.Extract(context.Background(), input)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse analyzer output") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLooksFatalPatterns(t *testing.T) {
	fatal := []string{
		"File Not Found: foo.flac",
		"open: Permission Denied",
		"header corrupted",
		"invalid format",
		"unsupported format .ogg",
		"file is empty",
		"ACCESS DENIED",
	}
	for _, msg := range fatal {
		if !analysis.LooksFatal(msg) {
			t.Fatalf("expected %q to be fatal", msg)
		}
	}
	for _, msg := range []string{"timeout", "connection reset", ""} {
		if analysis.LooksFatal(msg) {
			t.Fatalf("expected %q to be transient", msg)
		}
	}
}

func TestIsFatalNil(t *testing.T) {
	if analysis.IsFatal(nil) {
		t.Fatal("nil error is not fatal")
	}
	if analysis.IsFatal(errors.New("boom")) {
		t.Fatal("untagged error is not fatal")
	}
}

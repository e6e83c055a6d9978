package services_test

import (
	"errors"
	"strings"
	"testing"

	"cadence/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "analysis", "extract", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"analysis", "extract", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "processor", "run", "", errors.New("io"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	permanent := services.Wrap(services.ErrNotFound, "analysis", "open", "missing input", nil)
	if !services.IsPermanent(permanent) {
		t.Fatalf("expected permanent for not-found error: %v", permanent)
	}

	transient := services.Wrap(services.ErrTransient, "analysis", "extract", "", errors.New("io"))
	if services.IsPermanent(transient) {
		t.Fatalf("expected transient error to be retryable: %v", transient)
	}

	if services.IsPermanent(nil) {
		t.Fatal("expected nil error to be non-permanent")
	}
}

package testsupport

import (
	"context"
	"testing"

	"cadence/internal/config"
	"cadence/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddTrack inserts a pending track for tests using the provided store.
func AddTrack(t testing.TB, store *library.Store, filePath string) *library.Track {
	t.Helper()

	track, err := store.AddTrack(context.Background(), filePath, "", "", "")
	if err != nil {
		t.Fatalf("store.AddTrack: %v", err)
	}
	return track
}

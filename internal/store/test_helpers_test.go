package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/erpsim/internal/testutil"
)

// createTestStore creates a store with deterministic IDs and timestamps.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewStepClock(time.Minute)
	s, err := Open(path,
		WithIDGenerator(testutil.NewSequentialIDGenerator("run")),
		WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

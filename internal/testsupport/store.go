package testsupport

import (
	"testing"

	"callscope/internal/calls"
	"callscope/internal/config"
)

// MustOpenStore opens a calls.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *calls.Store {
	t.Helper()

	store, err := calls.Open(cfg)
	if err != nil {
		t.Fatalf("calls.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

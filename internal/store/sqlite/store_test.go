package sqlite

import (
	"path/filepath"
	"testing"

	"strata/internal/store"
	"strata/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store {
		s, err := NewStore(filepath.Join(t.TempDir(), "config.db"))
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

package sqlite

import (
	"path/filepath"
	"testing"

	"strata/internal/audit"
	"strata/internal/audit/audittest"
)

func TestStoreConformance(t *testing.T) {
	audittest.TestStore(t, func(t *testing.T) audit.Store {
		s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

package memory

import (
	"testing"

	"strata/internal/audit"
	"strata/internal/audit/audittest"
)

func TestStoreConformance(t *testing.T) {
	audittest.TestStore(t, func(t *testing.T) audit.Store {
		return NewStore()
	})
}

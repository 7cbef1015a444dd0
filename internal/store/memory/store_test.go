package memory

import (
	"testing"

	"strata/internal/store"
	"strata/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store {
		return NewStore()
	})
}

package store_test

import (
	"testing"

	"github.com/odvcencio/gitcouch/pkg/store"
	"github.com/odvcencio/gitcouch/pkg/store/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, store.NewMemory())
}

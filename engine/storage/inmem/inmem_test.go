package inmem

import (
	"testing"

	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/engine/storage/test"
)

func TestInMemStorage(t *testing.T) {
	test.TestStateStorage(t, "", func() storage.Storage { return New() })
}

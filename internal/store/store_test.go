package store_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/permabox/permabox/internal/keyValStore"
)

// newTestKV opens a throwaway badger store under a temp directory.
func newTestKV(t *testing.T) *keyValStore.KeyValStore {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:  []string{t.TempDir()},
		Logger: log,
	})
	if err != nil {
		t.Fatalf("failed to open test kv store: %v", err)
	}
	t.Cleanup(func() {
		if err := kv.Close(); err != nil {
			t.Errorf("failed to close test kv store: %v", err)
		}
	})
	return kv
}

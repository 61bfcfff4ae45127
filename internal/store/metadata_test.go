package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/types"
)

func TestMetadataStore_InsertAndGet(t *testing.T) {
	metadata := store.NewMetadataStore(newTestKV(t))

	tx := &types.Transaction{
		ID:       "tx-1",
		Owner:    "b3duZXI",
		Quantity: "5",
		Reward:   "1",
		DataSize: "12",
		Height:   3,
	}
	require.NoError(t, metadata.Insert(tx))

	got, err := metadata.GetByID("tx-1")
	require.NoError(t, err)
	assert.Equal(t, tx, got)
}

func TestMetadataStore_GetUnknown(t *testing.T) {
	metadata := store.NewMetadataStore(newTestKV(t))

	_, err := metadata.GetByID("no-such-tx")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

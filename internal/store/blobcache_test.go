package store_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabox/permabox/internal/store"
)

func TestDataBlobCache_RoundTrip(t *testing.T) {
	blobs := store.NewDataBlobCache(newTestKV(t))

	payload := bytes.Repeat([]byte("some payload bytes "), 4096)
	require.NoError(t, blobs.Put("record-1", payload))

	got, err := blobs.Get("record-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDataBlobCache_EmptyPayload(t *testing.T) {
	blobs := store.NewDataBlobCache(newTestKV(t))

	require.NoError(t, blobs.Put("record-empty", nil))

	got, err := blobs.Get("record-empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDataBlobCache_PutIsWriteOnce(t *testing.T) {
	blobs := store.NewDataBlobCache(newTestKV(t))

	require.NoError(t, blobs.Put("record-1", []byte("original")))
	require.NoError(t, blobs.Put("record-1", []byte("different bytes")))

	got, err := blobs.Get("record-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestDataBlobCache_GetUnknown(t *testing.T) {
	blobs := store.NewDataBlobCache(newTestKV(t))

	_, err := blobs.Get("no-such-record")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDataBlobCache_Has(t *testing.T) {
	blobs := store.NewDataBlobCache(newTestKV(t))

	ok, err := blobs.Has("record-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, blobs.Put("record-1", []byte("data")))

	ok, err = blobs.Has("record-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

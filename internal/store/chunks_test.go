package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/types"
)

func TestChunkStore_GetByRootIsOffsetOrdered(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	// Insert out of order on purpose.
	for _, c := range []types.Chunk{
		{DataRoot: "root-a", DataSize: 9, Offset: 6, Data: []byte("ghi")},
		{DataRoot: "root-a", DataSize: 9, Offset: 0, Data: []byte("abc")},
		{DataRoot: "root-a", DataSize: 9, Offset: 3, Data: []byte("def")},
	} {
		require.NoError(t, chunks.Insert(&c))
	}

	got, err := chunks.GetByRoot("root-a")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(0), got[0].Offset)
	assert.Equal(t, int64(3), got[1].Offset)
	assert.Equal(t, int64(6), got[2].Offset)
	assert.Equal(t, []byte("abc"), got[0].Data)
}

func TestChunkStore_UnknownRootIsEmpty(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	got, err := chunks.GetByRoot("no-such-root")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChunkStore_RootsDoNotBleed(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	require.NoError(t, chunks.Insert(&types.Chunk{DataRoot: "root-a", Offset: 0, Data: []byte("a")}))
	require.NoError(t, chunks.Insert(&types.Chunk{DataRoot: "root-b", Offset: 0, Data: []byte("b")}))

	got, err := chunks.GetByRoot("root-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("a"), got[0].Data)
}

func TestChunkStore_RejectsNegativeOffset(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	err := chunks.Insert(&types.Chunk{DataRoot: "root-a", Offset: -1})
	assert.Error(t, err)
}

func TestChunkStore_GetOffsetInfo(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	require.NoError(t, chunks.Insert(&types.Chunk{DataRoot: "root-a", DataSize: 6, Offset: 0, Data: []byte("abc")}))
	require.NoError(t, chunks.Insert(&types.Chunk{DataRoot: "root-a", DataSize: 6, Offset: 3, Data: []byte("def")}))

	info, err := chunks.GetOffsetInfo("root-a", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Offset)
	assert.Equal(t, int64(6), info.Size)
}

func TestChunkStore_GetOffsetInfoUnknownRoot(t *testing.T) {
	chunks := store.NewChunkStore(newTestKV(t))

	_, err := chunks.GetOffsetInfo("no-such-root", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

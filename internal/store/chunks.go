package store

import (
	"encoding/json"
	"fmt"

	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/pkg/types"
)

const chunkPrefix = "chunk:"

// ChunkStore holds payload fragments keyed by (data_root, offset). Offsets
// are zero-padded into the key, so a prefix scan over a root yields fragments
// already in offset order.
type ChunkStore struct {
	kv *keyValStore.KeyValStore
}

// OffsetInfo is the recorded position of a payload in fragmented storage.
type OffsetInfo struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

func NewChunkStore(kv *keyValStore.KeyValStore) *ChunkStore {
	return &ChunkStore{kv: kv}
}

func chunkKey(root string, offset int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", chunkPrefix, root, offset))
}

func (s *ChunkStore) Insert(c *types.Chunk) error {
	if c.Offset < 0 {
		return fmt.Errorf("chunk offset %d must not be negative", c.Offset)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode chunk %s@%d: %w", c.DataRoot, c.Offset, err)
	}
	return s.kv.Write(chunkKey(c.DataRoot, c.Offset), raw)
}

// GetByRoot returns every fragment stored under a content root, in offset
// order. An unknown root yields an empty slice, not an error.
func (s *ChunkStore) GetByRoot(root string) ([]types.Chunk, error) {
	pairs, err := s.kv.GetItemsWithPrefix([]byte(chunkPrefix + root + ":"))
	if err != nil {
		return nil, fmt.Errorf("scan chunks of %s: %w", root, err)
	}

	chunks := make([]types.Chunk, 0, len(pairs))
	for _, pair := range pairs {
		var c types.Chunk
		if err := json.Unmarshal(pair[1], &c); err != nil {
			return nil, fmt.Errorf("decode chunk %s: %w", pair[0], err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// GetOffsetInfo returns the recorded offset of the fragment set matching the
// given root and declared payload size.
func (s *ChunkStore) GetOffsetInfo(root string, size int64) (*OffsetInfo, error) {
	chunks, err := s.GetByRoot(root)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.DataSize == size {
			return &OffsetInfo{Offset: c.Offset, Size: size}, nil
		}
	}
	if len(chunks) > 0 {
		return &OffsetInfo{Offset: chunks[0].Offset, Size: size}, nil
	}
	return nil, ErrNotFound
}

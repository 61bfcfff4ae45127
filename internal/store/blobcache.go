package store

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	chunker "github.com/ipfs/boxo/chunker"
	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/ulikunitz/xz/lzma"
)

const (
	blobPrefix      = "blob:"
	blobChunkPrefix = "bchunk:"
)

// DataBlobCache is a write-once cache of fully reconstructed payload bytes
// keyed by record id. Payloads are split with a content-defined chunker,
// compressed and stored as content-addressed sub-chunks, so identical data
// cached under many ids is held once.
type DataBlobCache struct {
	kv *keyValStore.KeyValStore
}

type blobManifest struct {
	Size   int64    `json:"size"`
	Chunks []string `json:"chunks"`
}

func NewDataBlobCache(kv *keyValStore.KeyValStore) *DataBlobCache {
	return &DataBlobCache{kv: kv}
}

func (s *DataBlobCache) Has(id string) (bool, error) {
	return s.kv.Exists([]byte(blobPrefix + id))
}

// Put caches the payload bytes for id. Re-insertion under an existing id is a
// harmless no-op.
func (s *DataBlobCache) Put(id string, data []byte) error {
	exists, err := s.Has(id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	manifest := blobManifest{Size: int64(len(data))}

	bz := chunker.NewBuzhash(bytes.NewReader(data))
	for {
		chunk, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("chunk payload for %s: %w", id, err)
		}

		sum := sha512.Sum512(chunk)
		name := hex.EncodeToString(sum[:])
		manifest.Chunks = append(manifest.Chunks, name)

		chunkExists, err := s.kv.Exists([]byte(blobChunkPrefix + name))
		if err != nil {
			return err
		}
		if chunkExists {
			continue
		}

		compressed, err := compressWithLzma(chunk)
		if err != nil {
			return fmt.Errorf("compress chunk of %s: %w", id, err)
		}
		if err := s.kv.Write([]byte(blobChunkPrefix+name), compressed); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode blob manifest %s: %w", id, err)
	}
	return s.kv.Write([]byte(blobPrefix+id), raw)
}

// Get returns the exact cached payload bytes for id, or ErrNotFound.
func (s *DataBlobCache) Get(id string) ([]byte, error) {
	raw, err := s.kv.Read([]byte(blobPrefix + id))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var manifest blobManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode blob manifest %s: %w", id, err)
	}

	data := make([]byte, 0, manifest.Size)
	for _, name := range manifest.Chunks {
		compressed, err := s.kv.Read([]byte(blobChunkPrefix + name))
		if err != nil {
			return nil, fmt.Errorf("read blob chunk %s of %s: %w", name, id, err)
		}
		chunk, err := decompressWithLzma(compressed)
		if err != nil {
			return nil, fmt.Errorf("decompress blob chunk %s of %s: %w", name, id, err)
		}
		data = append(data, chunk...)
	}

	if int64(len(data)) != manifest.Size {
		return nil, fmt.Errorf("blob %s reassembled to %d bytes, manifest says %d",
			id, len(data), manifest.Size)
	}
	return data, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

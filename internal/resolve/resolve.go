// Package resolve implements the content reconstruction engine: record
// payloads come from the blob cache when present, otherwise from ordered
// reassembly of content-addressed fragments.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"sort"

	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/bundle"
	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

// ErrNotFound reports an unknown record id.
var ErrNotFound = errors.New("resolve: not found")

// ErrNotReconstructable reports a payload whose fragment set is missing or
// does not reassemble to the declared size. The read fails whole; no partial
// body is ever returned.
var ErrNotReconstructable = errors.New("resolve: payload not reconstructable")

// Resolver serves record payload bytes by id.
type Resolver struct {
	metadata *store.MetadataStore
	chunks   *store.ChunkStore
	blobs    *store.DataBlobCache
	log      *slog.Logger
}

func NewResolver(
	metadata *store.MetadataStore,
	chunks *store.ChunkStore,
	blobs *store.DataBlobCache,
	log *slog.Logger,
) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{metadata: metadata, chunks: chunks, blobs: blobs, log: log}
}

// Resolve returns the payload bytes and metadata of a record. Reconstructed
// payloads are cached so a second read does not touch the fragment store.
func (r *Resolver) Resolve(ctx context.Context, id string) ([]byte, *types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tx, err := r.metadata.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if data, err := r.blobs.Get(id); err == nil {
		return data, tx, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	fragments, err := r.chunks.GetByRoot(tx.DataRoot)
	if err != nil {
		return nil, nil, err
	}
	if len(fragments) == 0 {
		return nil, nil, fmt.Errorf("no fragments for root %s: %w", tx.DataRoot, ErrNotReconstructable)
	}

	// The store returns fragments offset-ordered already; sort anyway so the
	// reassembly order never depends on that guarantee.
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Offset < fragments[j].Offset
	})

	var data []byte
	for _, f := range fragments {
		data = append(data, f.Data...)
	}

	want, err := tx.DataSizeBytes()
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) != want {
		return nil, nil, fmt.Errorf("reassembled %d bytes, data_size is %d: %w",
			len(data), want, ErrNotReconstructable)
	}

	// Best effort: a failed cache fill must not fail the read.
	if err := r.blobs.Put(id, data); err != nil {
		r.log.Warn("failed to cache reconstructed payload", "tx", id, "error", err)
	}

	return data, tx, nil
}

// ContentTypeFor decides the response content type for a record payload. A
// payload carrying the bundle sentinel is always an undifferentiated binary
// stream regardless of any declared Content-Type; otherwise the declared
// Content-Type tag governs, defaulting to plain text when absent or invalid.
// A record typed "file" without a declared Content-Type is served opaque.
func ContentTypeFor(tx *types.Transaction) string {
	format, _ := encoding.FirstTagValue(tx.Tags, bundle.FormatTagName)
	version, _ := encoding.FirstTagValue(tx.Tags, bundle.VersionTagName)
	if bundle.IsBundle(format, version) {
		return "application/octet-stream"
	}

	if declared, ok := encoding.FirstTagValue(tx.Tags, "Content-Type"); ok {
		if _, _, err := mime.ParseMediaType(declared); err == nil {
			return declared
		}
	}

	if kind, ok := encoding.FirstTagValue(tx.Tags, "type"); ok && kind == "file" {
		return "application/octet-stream"
	}

	return "text/plain; charset=utf-8"
}

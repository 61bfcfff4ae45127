// Package ingest implements the submission pipeline: tag decoding, bundle
// detection and recursive expansion, ledger application and persistence.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/permabox/permabox/internal/store"
	"github.com/permabox/permabox/pkg/bundle"
	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

// DefaultMaxBundleDepth bounds recursive bundle expansion against
// adversarial deeply-nested containers.
const DefaultMaxBundleDepth = 8

// Engine runs the per-record submission state machine. It holds every
// collaborator by reference; construct one per process.
type Engine struct {
	metadata *store.MetadataStore
	tags     *store.TagStore
	wallets  *store.WalletStore
	blocks   *store.BlockStore
	blobs    *store.DataBlobCache
	log      *slog.Logger
	maxDepth int
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMaxBundleDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

func NewEngine(
	metadata *store.MetadataStore,
	tags *store.TagStore,
	wallets *store.WalletStore,
	blocks *store.BlockStore,
	blobs *store.DataBlobCache,
	opts ...Option,
) *Engine {
	e := &Engine{
		metadata: metadata,
		tags:     tags,
		wallets:  wallets,
		blocks:   blocks,
		blobs:    blobs,
		log:      slog.Default(),
		maxDepth: DefaultMaxBundleDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitTx ingests one submitted record at the current ledger height. Nested
// bundle items are expanded recursively and share the parent's height.
func (e *Engine) SubmitTx(ctx context.Context, tx *types.Transaction) error {
	height, err := e.blocks.Height()
	if err != nil {
		return fmt.Errorf("read ledger height: %w", err)
	}
	return e.ingest(ctx, tx, height, 0)
}

// ingest is the state machine of one record:
// Received -> TagsDecoded -> {BundleExpansion | Direct} -> LedgerChecked ->
// Persisted, or Rejected with no further side effects. It operates on decoded
// record values only; nested items re-enter here, never the HTTP layer.
func (e *Engine) ingest(ctx context.Context, tx *types.Transaction, height uint64, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.expandBundle(ctx, tx, height, depth)

	address, err := encoding.OwnerToAddress(tx.Owner)
	if err != nil {
		return fmt.Errorf("derive address for %s: %w", tx.ID, err)
	}

	quantity, err := tx.QuantityAmount()
	if err != nil {
		return fmt.Errorf("record %s: %w", tx.ID, err)
	}
	reward, err := tx.RewardAmount()
	if err != nil {
		return fmt.Errorf("record %s: %w", tx.ID, err)
	}

	// Ledger application. A transfer and its reward are checked against the
	// same pre-transaction balance inside one store transaction; the reward
	// alone is burned whether or not a transfer occurred.
	if tx.Target != "" && tx.Quantity != "" {
		if err := e.wallets.Transfer(address, tx.Target, quantity, reward); err != nil {
			return fmt.Errorf("record %s: %w", tx.ID, err)
		}
	} else {
		if err := e.wallets.Debit(address, reward); err != nil {
			return fmt.Errorf("record %s: burn reward: %w", tx.ID, err)
		}
	}

	return e.persist(tx, height)
}

// expandBundle unpacks a record payload carrying the container sentinel and
// ingests each nested item in container order, sequentially, at the parent
// height. Expansion failures abort only this step: the parent record and any
// siblings already processed are unaffected. Item commits are independent by
// design; there is no rollback across a bundle.
func (e *Engine) expandBundle(ctx context.Context, tx *types.Transaction, height uint64, depth int) {
	format, _ := encoding.FirstTagValue(tx.Tags, bundle.FormatTagName)
	version, _ := encoding.FirstTagValue(tx.Tags, bundle.VersionTagName)
	if !bundle.IsBundle(format, version) {
		return
	}

	if depth >= e.maxDepth {
		e.log.Warn("bundle nesting depth exceeded, skipping expansion",
			"tx", tx.ID, "depth", depth)
		return
	}

	payload, err := encoding.FromB64URL(tx.Data)
	if err != nil {
		e.log.Warn("bundle payload is not decodable, skipping expansion",
			"tx", tx.ID, "error", err)
		return
	}

	items, err := bundle.Decode(payload)
	if err != nil {
		e.log.Warn("malformed bundle, skipping expansion", "tx", tx.ID, "error", err)
		return
	}

	for i, item := range items {
		nested := item.Transaction()
		if err := e.ingest(ctx, nested, height, depth+1); err != nil {
			e.log.Warn("nested bundle item rejected",
				"tx", tx.ID, "item", nested.ID, "index", i, "error", err)
		}
	}
}

// persist writes the record metadata with its height, each tag decoded and in
// order, and the inline payload when present.
func (e *Engine) persist(tx *types.Transaction, height uint64) error {
	tx.Height = height

	if tx.Data != "" {
		payload, err := encoding.FromB64URL(tx.Data)
		if err != nil {
			return fmt.Errorf("decode payload of %s: %w", tx.ID, err)
		}
		// data_size must equal the exact reconstructed byte length.
		tx.DataSize = strconv.Itoa(len(payload))

		if err := e.blobs.Put(tx.ID, payload); err != nil {
			return fmt.Errorf("cache payload of %s: %w", tx.ID, err)
		}
	}

	if err := e.metadata.Insert(tx); err != nil {
		return fmt.Errorf("persist metadata of %s: %w", tx.ID, err)
	}

	for i, tag := range tx.Tags {
		name, value := encoding.DecodeTag(tag)
		if err := e.tags.Insert(tx.ID, i, name, value); err != nil {
			return fmt.Errorf("persist tag %d of %s: %w", i, tx.ID, err)
		}
	}

	return nil
}

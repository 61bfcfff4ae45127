package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

const (
	blockPrefix    = "block:"
	blockLatestKey = "block!latest"
)

// BlockStore tracks the local ledger height. Blocks here carry no consensus
// semantics; minting just advances the height and provides an anchor id.
type BlockStore struct {
	kv *keyValStore.KeyValStore
}

func NewBlockStore(kv *keyValStore.KeyValStore) *BlockStore {
	return &BlockStore{kv: kv}
}

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", blockPrefix, height))
}

// Latest returns the most recent block, or ErrNotFound when none exist.
func (s *BlockStore) Latest() (*types.Block, error) {
	var block *types.Block
	err := s.kv.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blockLatestKey))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var b types.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("decode latest block: %w", err)
		}
		block = &b
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return block, nil
}

// Height returns the number of blocks, which is also the height assigned to
// the next ingested record.
func (s *BlockStore) Height() (uint64, error) {
	latest, err := s.Latest()
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Height + 1, nil
}

// Mint appends one block with a fresh random id and returns it.
func (s *BlockStore) Mint() (*types.Block, error) {
	var minted *types.Block
	err := s.kv.Update(func(txn *badger.Txn) error {
		block := &types.Block{
			ID:        encoding.RandomID(),
			Timestamp: time.Now().Unix(),
		}

		item, err := txn.Get([]byte(blockLatestKey))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// genesis: height 0, no previous
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var prev types.Block
			if err := json.Unmarshal(raw, &prev); err != nil {
				return fmt.Errorf("decode latest block: %w", err)
			}
			block.Height = prev.Height + 1
			block.Previous = prev.ID
		}

		raw, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", block.Height, err)
		}
		if err := txn.Set(blockKey(block.Height), raw); err != nil {
			return err
		}
		if err := txn.Set([]byte(blockLatestKey), raw); err != nil {
			return err
		}
		minted = block
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

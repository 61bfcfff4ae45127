package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/pkg/types"
)

const metadataPrefix = "tx:"

// MetadataStore is the durable record of transaction metadata keyed by id.
type MetadataStore struct {
	kv *keyValStore.KeyValStore
}

func NewMetadataStore(kv *keyValStore.KeyValStore) *MetadataStore {
	return &MetadataStore{kv: kv}
}

func (s *MetadataStore) Insert(tx *types.Transaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
	}
	return s.kv.Write([]byte(metadataPrefix+tx.ID), raw)
}

func (s *MetadataStore) GetByID(id string) (*types.Transaction, error) {
	raw, err := s.kv.Read([]byte(metadataPrefix + id))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read transaction %s: %w", id, err)
	}

	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	return &tx, nil
}

package store

import (
	"encoding/json"
	"fmt"

	"github.com/permabox/permabox/internal/keyValStore"
	"github.com/permabox/permabox/pkg/types"
)

const tagPrefix = "tag:"

// TagStore persists decoded tag pairs per record. The zero-padded index in
// the key preserves tag order across prefix scans.
type TagStore struct {
	kv *keyValStore.KeyValStore
}

func NewTagStore(kv *keyValStore.KeyValStore) *TagStore {
	return &TagStore{kv: kv}
}

func tagKey(txID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", tagPrefix, txID, index))
}

func (s *TagStore) Insert(txID string, index int, name, value string) error {
	raw, err := json.Marshal(types.Tag{Name: name, Value: value})
	if err != nil {
		return fmt.Errorf("encode tag %d of %s: %w", index, txID, err)
	}
	return s.kv.Write(tagKey(txID, index), raw)
}

// GetByTx returns the decoded tags of a record in stored order.
func (s *TagStore) GetByTx(txID string) ([]types.Tag, error) {
	pairs, err := s.kv.GetItemsWithPrefix([]byte(tagPrefix + txID + ":"))
	if err != nil {
		return nil, fmt.Errorf("scan tags of %s: %w", txID, err)
	}

	tags := make([]types.Tag, 0, len(pairs))
	for _, pair := range pairs {
		var tag types.Tag
		if err := json.Unmarshal(pair[1], &tag); err != nil {
			return nil, fmt.Errorf("decode tag %s: %w", pair[0], err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

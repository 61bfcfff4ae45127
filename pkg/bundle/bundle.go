// Package bundle implements the binary container format that packs multiple
// records into one submitted payload (format "binary", version "2.0.0").
//
// A container starts with a 32-byte little-endian item count, followed by one
// 64-byte header entry per item (32-byte body size, 32-byte raw item id) and
// the item bodies in header order. Item order is significant: an item's
// identifier comes from its header slot, so the decoder exposes items exactly
// in container order. Decoding is pure and performs no I/O.
package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/permabox/permabox/pkg/encoding"
	"github.com/permabox/permabox/pkg/types"
)

const (
	// FormatTagName and VersionTagName are the reserved tag names that mark
	// a record payload as a container.
	FormatTagName  = "Bundle-Format"
	VersionTagName = "Bundle-Version"

	// Format and Version are the only recognized sentinel values.
	Format  = "binary"
	Version = "2.0.0"

	headerEntrySize = 64
	countFieldSize  = 32
	idSize          = 32

	// maxItems bounds the declared item count so a hostile header cannot
	// force a huge allocation before body parsing fails.
	maxItems = 1 << 20
)

// ErrMalformed reports a container that does not parse. It aborts only the
// bundle-expansion step for the enclosing record, never unrelated records.
var ErrMalformed = errors.New("bundle: malformed container")

// Item is one nested record decoded from a container. Tags hold plain-text
// pairs (the container stores them undecoded, not transport-encoded).
type Item struct {
	// ID is the positional identifier from the container header, base64url.
	ID            string
	SignatureType int
	Signature     []byte
	Owner         []byte
	Target        []byte
	Anchor        []byte
	Tags          []types.Tag
	Data          []byte
}

// sigParams maps a signature type to its fixed signature and owner lengths.
var sigParams = map[int]struct{ sigLen, ownerLen int }{
	1: {512, 512}, // RSA-4096
	2: {64, 32},   // ed25519
	3: {65, 65},   // secp256k1
	4: {64, 32},   // curve25519
}

// IsBundle reports whether the given decoded tag values carry the exact
// container sentinel.
func IsBundle(format, version string) bool {
	return format == Format && version == Version
}

// Decode parses a binary container into its ordered items.
func Decode(buf []byte) ([]Item, error) {
	if len(buf) < countFieldSize {
		return nil, fmt.Errorf("%w: truncated count field", ErrMalformed)
	}
	count, err := readLong32(buf[:countFieldSize])
	if err != nil {
		return nil, err
	}
	if count > maxItems {
		return nil, fmt.Errorf("%w: item count %d exceeds limit", ErrMalformed, count)
	}

	headerEnd := countFieldSize + int(count)*headerEntrySize
	if len(buf) < headerEnd {
		return nil, fmt.Errorf("%w: truncated item headers", ErrMalformed)
	}

	items := make([]Item, 0, count)
	bodyOffset := headerEnd
	for i := 0; i < int(count); i++ {
		entry := buf[countFieldSize+i*headerEntrySize : countFieldSize+(i+1)*headerEntrySize]
		size, err := readLong32(entry[:32])
		if err != nil {
			return nil, err
		}
		id := entry[32:64]

		// Compare against the remaining length without addition so a size
		// with high bits set cannot wrap the bounds check.
		if size > uint64(len(buf)-bodyOffset) {
			return nil, fmt.Errorf("%w: item %d body overruns buffer", ErrMalformed, i)
		}
		item, err := decodeItem(buf[bodyOffset : bodyOffset+int(size)])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		item.ID = encoding.ToB64URL(id)
		items = append(items, item)
		bodyOffset += int(size)
	}

	return items, nil
}

func decodeItem(body []byte) (Item, error) {
	r := byteReader{buf: body}

	sigTypeRaw, err := r.take(2)
	if err != nil {
		return Item{}, err
	}
	sigType := int(binary.LittleEndian.Uint16(sigTypeRaw))
	params, ok := sigParams[sigType]
	if !ok {
		return Item{}, fmt.Errorf("%w: unknown signature type %d", ErrMalformed, sigType)
	}

	item := Item{SignatureType: sigType}
	if item.Signature, err = r.take(params.sigLen); err != nil {
		return Item{}, err
	}
	if item.Owner, err = r.take(params.ownerLen); err != nil {
		return Item{}, err
	}

	if item.Target, err = r.optionalField(idSize); err != nil {
		return Item{}, err
	}
	if item.Anchor, err = r.optionalField(idSize); err != nil {
		return Item{}, err
	}

	tagCountRaw, err := r.take(8)
	if err != nil {
		return Item{}, err
	}
	tagCount := binary.LittleEndian.Uint64(tagCountRaw)

	tagBytesRaw, err := r.take(8)
	if err != nil {
		return Item{}, err
	}
	tagBytesLen := binary.LittleEndian.Uint64(tagBytesRaw)

	tagBytes, err := r.take(int(tagBytesLen))
	if err != nil {
		return Item{}, err
	}
	item.Tags, err = decodeTags(tagBytes)
	if err != nil {
		return Item{}, err
	}
	if uint64(len(item.Tags)) != tagCount {
		return Item{}, fmt.Errorf("%w: tag count %d does not match encoded %d",
			ErrMalformed, tagCount, len(item.Tags))
	}

	item.Data = r.rest()
	return item, nil
}

// Transaction converts a decoded item to the record form the ingestion
// pipeline operates on. Nested items carry no value transfer: quantity and
// reward are zero, and the positional id becomes the record id.
func (it Item) Transaction() *types.Transaction {
	tx := &types.Transaction{
		ID:        it.ID,
		Owner:     encoding.ToB64URL(it.Owner),
		Data:      encoding.ToB64URL(it.Data),
		DataSize:  strconv.Itoa(len(it.Data)),
		Signature: encoding.ToB64URL(it.Signature),
	}
	if len(it.Target) > 0 {
		tx.Target = encoding.ToB64URL(it.Target)
	}
	if len(it.Anchor) > 0 {
		tx.LastTx = encoding.ToB64URL(it.Anchor)
	}
	for _, t := range it.Tags {
		tx.Tags = append(tx.Tags, encoding.EncodeTag(t.Name, t.Value))
	}
	return tx
}

// Encode builds a binary container from the given items, preserving order.
// Every item must carry a 32-byte id (base64url) and signature/owner material
// matching its signature type.
func Encode(items []Item) ([]byte, error) {
	var bodies [][]byte
	var header []byte

	count := make([]byte, countFieldSize)
	binary.LittleEndian.PutUint64(count, uint64(len(items)))
	header = append(header, count...)

	for i, it := range items {
		body, err := encodeItem(it)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		id, err := encoding.FromB64URL(it.ID)
		if err != nil || len(id) != idSize {
			return nil, fmt.Errorf("item %d: id must be %d raw bytes", i, idSize)
		}

		size := make([]byte, 32)
		binary.LittleEndian.PutUint64(size, uint64(len(body)))
		header = append(header, size...)
		header = append(header, id...)
		bodies = append(bodies, body)
	}

	out := header
	for _, b := range bodies {
		out = append(out, b...)
	}
	return out, nil
}

func encodeItem(it Item) ([]byte, error) {
	params, ok := sigParams[it.SignatureType]
	if !ok {
		return nil, fmt.Errorf("unknown signature type %d", it.SignatureType)
	}
	if len(it.Signature) != params.sigLen {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", params.sigLen, len(it.Signature))
	}
	if len(it.Owner) != params.ownerLen {
		return nil, fmt.Errorf("owner must be %d bytes, got %d", params.ownerLen, len(it.Owner))
	}

	var out []byte
	sigType := make([]byte, 2)
	binary.LittleEndian.PutUint16(sigType, uint16(it.SignatureType))
	out = append(out, sigType...)
	out = append(out, it.Signature...)
	out = append(out, it.Owner...)

	for _, field := range [][]byte{it.Target, it.Anchor} {
		if len(field) == 0 {
			out = append(out, 0)
			continue
		}
		if len(field) != idSize {
			return nil, fmt.Errorf("optional field must be %d bytes, got %d", idSize, len(field))
		}
		out = append(out, 1)
		out = append(out, field...)
	}

	tagBytes := encodeTags(it.Tags)
	counts := make([]byte, 16)
	binary.LittleEndian.PutUint64(counts[:8], uint64(len(it.Tags)))
	binary.LittleEndian.PutUint64(counts[8:], uint64(len(tagBytes)))
	out = append(out, counts...)
	out = append(out, tagBytes...)
	out = append(out, it.Data...)
	return out, nil
}

// readLong32 reads a 32-byte little-endian size field. Only the low 8 bytes
// may be set; anything wider is malformed.
func readLong32(b []byte) (uint64, error) {
	for _, extra := range b[8:] {
		if extra != 0 {
			return 0, fmt.Errorf("%w: oversized length field", ErrMalformed)
		}
	}
	return binary.LittleEndian.Uint64(b[:8]), nil
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.buf)-r.pos {
		return nil, fmt.Errorf("%w: truncated item body", ErrMalformed)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// optionalField reads a presence byte followed by the field when present.
func (r *byteReader) optionalField(n int) ([]byte, error) {
	flag, err := r.take(1)
	if err != nil {
		return nil, err
	}
	switch flag[0] {
	case 0:
		return nil, nil
	case 1:
		return r.take(n)
	default:
		return nil, fmt.Errorf("%w: invalid presence byte %d", ErrMalformed, flag[0])
	}
}

func (r *byteReader) rest() []byte {
	out := r.buf[r.pos:]
	r.pos = len(r.buf)
	return out
}

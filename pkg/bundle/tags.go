package bundle

import (
	"fmt"

	"github.com/permabox/permabox/pkg/types"
)

// Container tags are stored as an Avro array of {name: bytes, value: bytes}
// records: zigzag-varint block counts, length-prefixed entries, terminated by
// a zero count. A negative block count is followed by the block byte size.

func decodeTags(buf []byte) ([]types.Tag, error) {
	r := varintReader{buf: buf}
	var tags []types.Tag

	for {
		count, err := r.readLong()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			break
		}
		if count < 0 {
			// Block with explicit byte size; the size itself is not needed
			// for sequential decoding.
			if _, err := r.readLong(); err != nil {
				return nil, err
			}
			count = -count
		}
		for i := int64(0); i < count; i++ {
			name, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			value, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			tags = append(tags, types.Tag{Name: string(name), Value: string(value)})
		}
	}

	if r.pos != len(r.buf) {
		return nil, fmt.Errorf("%w: trailing bytes after tag array", ErrMalformed)
	}
	return tags, nil
}

func encodeTags(tags []types.Tag) []byte {
	if len(tags) == 0 {
		return []byte{0}
	}
	var out []byte
	out = appendZigZag(out, int64(len(tags)))
	for _, t := range tags {
		out = appendZigZag(out, int64(len(t.Name)))
		out = append(out, t.Name...)
		out = appendZigZag(out, int64(len(t.Value)))
		out = append(out, t.Value...)
	}
	out = append(out, 0)
	return out
}

type varintReader struct {
	buf []byte
	pos int
}

// readLong decodes one zigzag base-128 varint.
func (r *varintReader) readLong() (int64, error) {
	var raw uint64
	var shift uint
	for {
		if r.pos >= len(r.buf) {
			return 0, fmt.Errorf("%w: truncated varint", ErrMalformed)
		}
		if shift > 63 {
			return 0, fmt.Errorf("%w: varint overflow", ErrMalformed)
		}
		b := r.buf[r.pos]
		r.pos++
		raw |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(raw>>1) ^ -int64(raw&1), nil
}

func (r *varintReader) readBytes() ([]byte, error) {
	n, err := r.readLong()
	if err != nil {
		return nil, err
	}
	if n < 0 || r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated tag entry", ErrMalformed)
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func appendZigZag(out []byte, v int64) []byte {
	raw := uint64(v<<1) ^ uint64(v>>63)
	for raw >= 0x80 {
		out = append(out, byte(raw)|0x80)
		raw >>= 7
	}
	return append(out, byte(raw))
}

// Package encoding holds the transport codec shared by the ingestion and
// serving paths: base64url payload/tag encoding, the owner address digest and
// anchor id generation.
package encoding

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/permabox/permabox/pkg/types"
)

// FromB64URL decodes an unpadded base64url string. Padded input is accepted
// too since some clients pad.
func FromB64URL(s string) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("base64url decode: %w", err)
	}
	return raw, nil
}

// ToB64URL encodes bytes as unpadded base64url.
func ToB64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeTagText decodes one transport-encoded tag field. Decoding is total:
// malformed input is returned verbatim so a single bad tag never blocks
// ingestion of an otherwise valid record.
func DecodeTagText(s string) string {
	raw, err := FromB64URL(s)
	if err != nil {
		return s
	}
	return string(raw)
}

// DecodeTag decodes a transport-encoded tag into its plain-text pair.
func DecodeTag(t types.Tag) (name, value string) {
	return DecodeTagText(t.Name), DecodeTagText(t.Value)
}

// EncodeTag builds a transport-encoded tag from a plain-text pair.
func EncodeTag(name, value string) types.Tag {
	return types.Tag{
		Name:  ToB64URL([]byte(name)),
		Value: ToB64URL([]byte(value)),
	}
}

// FirstTagValue scans tags in order and returns the decoded value of the
// first tag whose decoded name matches exactly. Names are case-sensitive and
// need not be unique; first match wins.
func FirstTagValue(tags []types.Tag, name string) (string, bool) {
	for _, t := range tags {
		n, v := DecodeTag(t)
		if n == name {
			return v, true
		}
	}
	return "", false
}

// OwnerToAddress derives the submitting address from base64url-encoded owner
// public-key material: the SHA-256 digest of the key bytes, base64url encoded.
func OwnerToAddress(owner string) (string, error) {
	raw, err := FromB64URL(owner)
	if err != nil {
		return "", fmt.Errorf("decode owner: %w", err)
	}
	sum := sha256.Sum256(raw)
	return ToB64URL(sum[:]), nil
}

// RandomID returns a fresh random 43-character base64url identifier, used as
// a tx anchor when no block exists yet and for locally minted block ids.
func RandomID() string {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("encoding: rand failed: %v", err))
	}
	return ToB64URL(buf[:])
}

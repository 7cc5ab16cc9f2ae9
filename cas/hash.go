package cas

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"fmt"
)

// ByteLen is the number of hash bytes retained from the sha512 digest.
const ByteLen = 20

// StringLen is the length of the base32 text form (20 bytes, no padding).
const StringLen = 32

var encoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// Hash is the identity of a chunk: the first 20 bytes of the sha512 digest
// of its content.
type Hash [ByteLen]byte

// ZeroHash is the hash of nothing; it never names a stored chunk.
var ZeroHash Hash

// Of computes the hash of a byte sequence.
func Of(data []byte) Hash {
	digest := sha512.Sum512(data)
	var h Hash
	copy(h[:], digest[:ByteLen])
	return h
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return encoding.EncodeToString(h[:])
}

// Less orders hashes bytewise, for deterministic tie-breaking.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// Parse decodes the base32 text form produced by String.
func Parse(s string) (Hash, error) {
	var h Hash
	if len(s) != StringLen {
		return h, fmt.Errorf("invalid hash %q: want %d characters", s, StringLen)
	}
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], raw)
	return h, nil
}

// MarshalText makes hashes usable as JSON values and map keys.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

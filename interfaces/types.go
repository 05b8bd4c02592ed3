// Package interfaces defines the core interfaces and types for the blob repository.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/google/uuid"
)

// BlobID is a 128-bit blob identifier stored big-endian.
// It is the sole key for every storage operation.
type BlobID [16]byte

// NewBlobID generates a random (version 4) identifier.
func NewBlobID() BlobID {
	return BlobID(uuid.New())
}

// NewBlobIDFromBytes creates an identifier from its 16 raw bytes.
func NewBlobIDFromBytes(source []byte) (BlobID, error) {
	if len(source) != 16 {
		return BlobID{}, errors.New("invalid BlobID conversion from bytes: incorrect length")
	}

	var id BlobID
	copy(id[:], source)
	return id, nil
}

// ParseBlobID parses either the 32-character hex form used on disk and in
// object keys, or the canonical dashed UUID form.
func ParseBlobID(source string) (BlobID, error) {
	clean := strings.TrimSpace(source)
	if len(clean) == 32 {
		idBytes, err := hex.DecodeString(clean)
		if err != nil {
			return BlobID{}, fmt.Errorf("invalid hex format: %w", err)
		}
		return NewBlobIDFromBytes(idBytes)
	}

	parsed, err := uuid.Parse(clean)
	if err != nil {
		return BlobID{}, fmt.Errorf("invalid blob id %q: %w", source, err)
	}
	return BlobID(parsed), nil
}

// MustParseBlobID is like ParseBlobID but panics on malformed input.
func MustParseBlobID(source string) BlobID {
	id, err := ParseBlobID(source)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the lowercase 32-character hex representation.
func (id BlobID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 16 bytes.
func (id BlobID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identifier is all zeroes.
func (id BlobID) IsZero() bool {
	return id == BlobID{}
}

// Stripe returns the identifier, read as an unsigned 128-bit integer,
// modulo stripes. Stripes must be positive.
func (id BlobID) Stripe(stripes int) int {
	hi := binary.BigEndian.Uint64(id[:8])
	lo := binary.BigEndian.Uint64(id[8:])
	return int(bits.Rem64(hi, lo, uint64(stripes)))
}

// MarshalText implements encoding.TextMarshaler.
func (id BlobID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *BlobID) UnmarshalText(text []byte) error {
	parsed, err := ParseBlobID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

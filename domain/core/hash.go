package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for log lines
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// HashFloats fingerprints a float sequence bit-exactly. Two runs with the same
// seed series and seed produce the same fingerprint.
func HashFloats(values []float64, extra ...int64) Hash {
	buf := make([]byte, 8*(len(values)+len(extra)))
	off := 0
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	for _, e := range extra {
		binary.LittleEndian.PutUint64(buf[off:], uint64(e))
		off += 8
	}
	return NewHash(buf)
}

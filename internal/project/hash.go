package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest is a fixed 256-bit content hash.
type Digest [32]byte

// DigestBytes hashes raw content.
func DigestBytes(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// Combine builds a dependent hash: H(content || dep1 || dep2 ...).
// Callers keep deps in a deterministic order.
func Combine(content Digest, deps ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(content[:])
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero reports whether no hash was ever assigned.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short is the first 8 bytes in hex, enough for log lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:8])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(d)) {
		return fmt.Errorf("digest: want %d hex digits, got %d", hex.EncodedLen(len(d)), len(text))
	}
	_, err := hex.Decode(d[:], text)
	return err
}

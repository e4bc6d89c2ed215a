// Package rng provides the deterministic pseudo-random streams that back
// fixture generation. All randomness in the engine flows through a seeded
// Stream so that identical seeds reproduce identical value trees regardless
// of thread scheduling.
package rng

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// Algorithm selects the stream construction.
type Algorithm string

const (
	// AlgorithmChaCha20 derives values from a ChaCha20 keystream.
	AlgorithmChaCha20 Algorithm = "chacha20"
	// AlgorithmHMACSHA256 derives values from HMAC-SHA256 over a counter.
	AlgorithmHMACSHA256 Algorithm = "hmac_sha256"
)

// Stream is a deterministic random value source. A Stream is exclusively
// owned by one generation context and is not safe for concurrent use.
type Stream struct {
	algorithm Algorithm
	key       []byte
	cipher    *chacha20.Cipher
	counter   uint64
	seed      uint64
}

// New creates a stream seeded from a 64-bit seed using the default ChaCha20
// construction.
func New(seed uint64) *Stream {
	s, _ := NewWithAlgorithm(AlgorithmChaCha20, seed)
	return s
}

// NewWithAlgorithm creates a stream with an explicit algorithm.
func NewWithAlgorithm(alg Algorithm, seed uint64) (*Stream, error) {
	key := expandSeed(seed, "kontrakt/rng/key")
	s := &Stream{algorithm: alg, key: key, seed: seed}

	switch alg {
	case AlgorithmChaCha20:
		nonce := expandSeed(seed, "kontrakt/rng/nonce")[:chacha20.NonceSize]
		c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
		if err != nil {
			return nil, fmt.Errorf("rng: cipher init: %w", err)
		}
		s.cipher = c
	case AlgorithmHMACSHA256:
		// counter-mode HMAC, no state beyond the counter
	default:
		return nil, fmt.Errorf("rng: unsupported algorithm %q", alg)
	}

	return s, nil
}

// Seed returns the seed the stream was created with.
func (s *Stream) Seed() uint64 { return s.seed }

// Fork derives an independent stream from this stream's seed and a label.
// Forked streams do not share position with their parent.
func (s *Stream) Fork(label string) *Stream {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(label))
	child, _ := NewWithAlgorithm(s.algorithm, binary.BigEndian.Uint64(h.Sum(nil)[:8]))
	return child
}

// Uint64 returns the next deterministic value.
func (s *Stream) Uint64() uint64 {
	switch s.algorithm {
	case AlgorithmChaCha20:
		var buf [8]byte
		s.cipher.XORKeyStream(buf[:], buf[:])
		return binary.BigEndian.Uint64(buf[:])
	default:
		s.counter++
		var counter [8]byte
		binary.BigEndian.PutUint64(counter[:], s.counter)
		h := hmac.New(sha256.New, s.key)
		h.Write(counter[:])
		return binary.BigEndian.Uint64(h.Sum(nil)[:8])
	}
}

// Intn returns a value in [0, n). n <= 0 yields 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// IntBetween returns a value in [min, max] inclusive. Degenerate bounds
// collapse to min.
func (s *Stream) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.Intn(max-min+1)
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Bool returns a deterministic boolean.
func (s *Stream) Bool() bool {
	return s.Uint64()&1 == 1
}

// Bytes returns n deterministic bytes.
func (s *Stream) Bytes(n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += 8 {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], s.Uint64())
		copy(out[i:], buf[:min(8, n-i)])
	}
	return out
}

func expandSeed(seed uint64, label string) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], seed)
	h := hmac.New(sha256.New, []byte(label))
	h.Write(raw[:])
	return h.Sum(nil)
}

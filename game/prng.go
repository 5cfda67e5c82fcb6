package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// RngDomain is mixed into every block so streams from this package never
// collide with other HMAC uses of the same seed.
const RngDomain = "racehouse/rng/v1"

const rngBlockSize = sha256.Size

// Rng is a reproducible byte stream keyed by a seed.
//
// Block i of the stream is HMAC-SHA256(key=seed, msg=RngDomain || uint64_be(i)).
// Bytes are handed out in order, block after block. Two implementations that
// follow this construction produce byte-identical output for the same seed.
type Rng struct {
	seed   []byte
	block  uint64
	pos    int
	buffer [rngBlockSize]byte
}

func NewRng(seed []byte) (*Rng, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("rng: empty seed")
	}
	r := &Rng{seed: append([]byte(nil), seed...)}
	r.fill()
	return r, nil
}

// RestoreRng returns an Rng positioned after the first position bytes of the stream.
func RestoreRng(seed []byte, position uint64) (*Rng, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("rng: empty seed")
	}
	r := &Rng{
		seed:  append([]byte(nil), seed...),
		block: position / rngBlockSize,
		pos:   int(position % rngBlockSize),
	}
	r.fill()
	return r, nil
}

func (r *Rng) fill() {
	var msg [len(RngDomain) + 8]byte
	copy(msg[:], RngDomain)
	binary.BigEndian.PutUint64(msg[len(RngDomain):], r.block)

	h := hmac.New(sha256.New, r.seed)
	h.Write(msg[:])
	copy(r.buffer[:], h.Sum(nil))
}

// Next returns the next byte of the stream.
func (r *Rng) Next() byte {
	if r.pos >= rngBlockSize {
		r.block++
		r.pos = 0
		r.fill()
	}
	b := r.buffer[r.pos]
	r.pos++
	return b
}

// Uint64 reads the next 8 bytes as a big-endian integer.
func (r *Rng) Uint64() uint64 {
	var b [8]byte
	for i := range b {
		b[i] = r.Next()
	}
	return binary.BigEndian.Uint64(b[:])
}

// Float64 returns a uniform value in [0, 1) built from the top 53 bits of Uint64.
func (r *Rng) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// IntN returns a uniform integer in [0, n). Draws above the largest multiple
// of n are rejected, so the result carries no modulo bias.
func (r *Rng) IntN(n uint64) uint64 {
	if n == 0 {
		panic("rng: IntN with n == 0")
	}
	limit := ^uint64(0) - (^uint64(0) % n)
	for {
		v := r.Uint64()
		if v < limit {
			return v % n
		}
	}
}

// Position is the number of bytes consumed so far.
func (r *Rng) Position() uint64 {
	return r.block*rngBlockSize + uint64(r.pos)
}

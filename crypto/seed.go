package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SeedDomain prefixes the race id when a block hash is turned into a race seed.
const SeedDomain = "racehouse/seed/v1:"

// Provenance is the public chain data a race seed was derived from.
type Provenance struct {
	Height    uint64 `json:"height"`
	BlockHash string `json:"blockHash"`
}

// DeriveSeed turns a block hash into the 32-byte seed for one race.
// The block hash is the only entropy; the race id separates races that
// resolve against the same block.
func DeriveSeed(blockHash []byte, raceID string) [32]byte {
	h := hmac.New(sha256.New, blockHash)
	h.Write([]byte(SeedDomain + raceID))

	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed
}

// ParseBlockHash decodes a hex block hash, with or without a 0x prefix.
func ParseBlockHash(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, fmt.Errorf("empty block hash")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash: %w", err)
	}
	return b, nil
}

// SeedFromHex derives the race seed from a hex-encoded block hash.
func SeedFromHex(blockHash, raceID string) ([32]byte, error) {
	b, err := ParseBlockHash(blockHash)
	if err != nil {
		return [32]byte{}, err
	}
	return DeriveSeed(b, raceID), nil
}

// VerifySeed reports whether seedHex is the seed derived from blockHash for raceID.
func VerifySeed(blockHash, raceID, seedHex string) bool {
	seed, err := SeedFromHex(blockHash, raceID)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(seedHex)
	if err != nil {
		return false
	}
	return hmac.Equal(seed[:], want)
}

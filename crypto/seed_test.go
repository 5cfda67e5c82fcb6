package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSeedDeterministic(t *testing.T) {
	hash, err := ParseBlockHash("0xdeadbeef00000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	a := DeriveSeed(hash, "race-1")
	b := DeriveSeed(hash, "race-1")
	c := DeriveSeed(hash, "race-2")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c, "race id must separate seeds from the same block")
}

func TestParseBlockHash(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"prefixed", "0xdeadbeef", false},
		{"bare", "deadbeef", false},
		{"empty", "", true},
		{"prefix only", "0x", true},
		{"not hex", "0xzz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlockHash(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVerifySeed(t *testing.T) {
	seed, err := SeedFromHex("0xdeadbeef", "race-9")
	require.NoError(t, err)

	require.True(t, VerifySeed("0xdeadbeef", "race-9", hex.EncodeToString(seed[:])))
	require.False(t, VerifySeed("0xdeadbeee", "race-9", hex.EncodeToString(seed[:])))
	require.False(t, VerifySeed("0xdeadbeef", "race-9", "nothex"))
}

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	err := Wrapf(ErrLocked, "creature %s locked until %s", "c1", "12:00")

	require.True(t, errors.Is(err, ErrLocked))
	require.True(t, errors.Is(err, ErrStateConflict))
	require.False(t, errors.Is(err, ErrAlreadyResolved))
	require.False(t, errors.Is(err, ErrValidation))
	require.Contains(t, err.Error(), "Locked")
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := NotFound("race %s", "r1")
	wrapped := fmt.Errorf("failed to load race: %w", inner)

	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"seed unavailable", ErrSeedUnavailable, true},
		{"oracle", Oracle(errors.New("timeout"), "block 10"), true},
		{"version conflict", ErrConcurrentModification, true},
		{"already resolved", ErrAlreadyResolved, false},
		{"validation", Validation("bad wallet"), false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WithCause(ErrOracle, cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrOracle)
}

package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStructuralKinds(t *testing.T) {
	for _, err := range []error{ErrMissingElement, ErrUnexpectedElement, ErrInvalidKey} {
		require.ErrorIs(t, err, ErrStructural)
		require.ErrorIs(t, fmt.Errorf("dataset: %w", err), ErrStructural)
	}

	require.NotErrorIs(t, ErrSizeMismatch, ErrStructural)
}

func TestIsLookupMiss(t *testing.T) {
	require.True(t, IsLookupMiss(fmt.Errorf("class 3: %w", ErrDataClassNotFound)))
	require.True(t, IsLookupMiss(ErrBlockNotPresent))
	require.False(t, IsLookupMiss(ErrMissingElement))
	require.False(t, IsLookupMiss(nil))
}

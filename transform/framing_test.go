package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/errs"
)

func TestSubsequenceFraming(t *testing.T) {
	streams := [][]byte{{1, 2, 3}, {}, {4}}
	data, err := JoinSubsequences(streams)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 3, 1, 2, 3, 0, 0, 0, 0, 4}, data)

	got, err := SplitSubsequences(data, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got[0])
	require.Empty(t, got[1])
	require.Equal(t, []byte{4}, got[2])

	single, err := JoinSubsequences([][]byte{{9, 9}})
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, single)

	empty, err := JoinSubsequences(nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSplitSubsequencesErrors(t *testing.T) {
	_, err := SplitSubsequences([]byte{0, 0}, 2)
	require.ErrorIs(t, err, errs.ErrStructural)

	_, err = SplitSubsequences([]byte{0, 0, 0, 9, 1}, 2)
	require.ErrorIs(t, err, errs.ErrStructural)

	_, err = SplitSubsequences(nil, 0)
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestSplitDoesNotLeakIntoNextStream(t *testing.T) {
	got, err := SplitSubsequences([]byte{0, 0, 0, 1, 7, 8}, 2)
	require.NoError(t, err)

	// appending to the first stream must not overwrite the second
	first := append(got[0], 0xFF) //nolint:gocritic
	require.Equal(t, []byte{7, 0xFF}, first)
	require.Equal(t, []byte{8}, got[1])
}

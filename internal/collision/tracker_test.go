package collision

import (
	"testing"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/hash"
	"github.com/stretchr/testify/require"
)

// trackWithHash files name under an explicit hash to simulate a collision.
func (t *Tracker) trackWithHash(name string, h uint64) int {
	pos := len(t.names)
	t.names = append(t.names, name)
	t.byHash[h] = append(t.byHash[h], pos)

	return pos
}

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	require.NotNil(t, tracker)
	require.Equal(t, 0, tracker.Count())
	_, ok := tracker.Lookup("tumor")
	require.False(t, ok)
}

func TestTracker_Track(t *testing.T) {
	tracker := NewTracker()

	pos, err := tracker.Track("tumor")
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	pos, err = tracker.Track("normal")
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, 2, tracker.Count())

	got, ok := tracker.Lookup("normal")
	require.True(t, ok)
	require.Equal(t, 1, got)

	_, ok = tracker.Lookup("absent")
	require.False(t, ok)
}

func TestTracker_TrackErrors(t *testing.T) {
	tracker := NewTracker()

	_, err := tracker.Track("")
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	_, err = tracker.Track("exome")
	require.NoError(t, err)
	_, err = tracker.Track("exome")
	require.ErrorIs(t, err, errs.ErrDuplicateLabel)
	require.Equal(t, 1, tracker.Count())
}

func TestTracker_Collision(t *testing.T) {
	tracker := NewTracker()

	_, err := tracker.Track("first")
	require.NoError(t, err)

	// Put "second" into the bucket of "first", then track a third name
	// under the same hash through the regular path.
	tracker.trackWithHash("second", hash.ID("first"))
	tracker.byHash[hash.ID("third")] = tracker.byHash[hash.ID("first")]
	pos, err := tracker.Track("third")
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	got, ok := tracker.Lookup("first")
	require.True(t, ok)
	require.Equal(t, 0, got)

	got, ok = tracker.Lookup("third")
	require.True(t, ok)
	require.Equal(t, 2, got)

	// A name stored under a foreign hash is not reachable by its own hash.
	_, ok = tracker.Lookup("second")
	require.False(t, ok)

	_, err = tracker.Track("first")
	require.ErrorIs(t, err, errs.ErrDuplicateLabel)
}

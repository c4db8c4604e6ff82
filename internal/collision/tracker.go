package collision

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/hash"
)

// Tracker indexes names by their xxHash64 id.
//
// Lookups go through the hash map and compare names within a bucket, so two
// distinct names sharing a hash both stay reachable.
type Tracker struct {
	byHash map[uint64][]int // hash → positions in names
	names  []string         // names in insertion order
}

// NewTracker creates a new collision tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byHash: make(map[uint64][]int),
	}
}

// Track adds name and returns its position.
//
// Empty names fail with ErrInvalidValue and repeated names with ErrDuplicateLabel.
// A hash collision between distinct names is not an error.
func (t *Tracker) Track(name string) (int, error) {
	if name == "" {
		return -1, fmt.Errorf("%w: empty name", errs.ErrInvalidValue)
	}

	h := hash.ID(name)
	bucket := t.byHash[h]
	for _, pos := range bucket {
		if t.names[pos] == name {
			return -1, fmt.Errorf("%w: %q", errs.ErrDuplicateLabel, name)
		}
	}

	pos := len(t.names)
	t.names = append(t.names, name)
	t.byHash[h] = append(bucket, pos)

	return pos, nil
}

// Lookup returns the position of name.
func (t *Tracker) Lookup(name string) (int, bool) {
	for _, pos := range t.byHash[hash.ID(name)] {
		if t.names[pos] == name {
			return pos, true
		}
	}

	return -1, false
}

// Count returns the number of tracked names.
func (t *Tracker) Count() int {
	return len(t.names)
}

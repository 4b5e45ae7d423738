// Package prng provides the deterministic, seeded priority generator the
// patch and markerindex treaps use to balance themselves.
package prng

import "math/rand"

// Source generates treap node priorities in [1, math.MaxInt32-1]. Both 0
// and math.MaxInt32 are reserved sentinel values and never handed out.
type Source struct {
	rnd *rand.Rand
}

// New returns a Source seeded deterministically so that two MarkerIndexes
// built with the same seed and the same operation sequence produce
// identical trees.
func New(seed uint32) *Source {
	return &Source{rnd: rand.New(rand.NewSource(int64(seed)))}
}

// Next returns the next priority in [1, math.MaxInt32-1].
func (s *Source) Next() int32 {
	return 1 + s.rnd.Int31n(int32(1<<31-1)-1)
}

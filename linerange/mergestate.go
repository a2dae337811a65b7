package linerange

import "sort"

// MergeState holds the constituent ranges of a combined block. It is a value
// type and every mutator returns a new state without touching the receiver.
type MergeState struct {
	ranges []LineRange
}

func (m MergeState) Len() int { return len(m.ranges) }

// Ranges returns a copy of the constituents in insertion order
func (m MergeState) Ranges() []LineRange {
	if len(m.ranges) == 0 {
		return nil
	}
	out := make([]LineRange, len(m.ranges))
	copy(out, m.ranges)
	return out
}

func (m MergeState) Add(r LineRange) MergeState {
	next := make([]LineRange, len(m.ranges), len(m.ranges)+1)
	copy(next, m.ranges)
	return MergeState{ranges: append(next, r)}
}

func (m MergeState) Reset() MergeState { return MergeState{} }

// Has matches by id
func (m MergeState) Has(r LineRange) bool {
	for _, c := range m.ranges {
		if c.id == r.id {
			return true
		}
	}
	return false
}

// IsContactChain reports whether there are at least two constituents and,
// ordered by start line, each one meets the next exactly at a boundary.
func (m MergeState) IsContactChain() bool {
	if len(m.ranges) <= 1 {
		return false
	}

	sorted := m.Ranges()
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end < sorted[j].end
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].id == sorted[i-1].id {
			continue
		}
		if !sorted[i].IsContact(sorted[i-1]) {
			return false
		}
	}
	return true
}

func (m MergeState) sameIDs(o MergeState) bool {
	if len(m.ranges) != len(o.ranges) {
		return false
	}
	for i := range m.ranges {
		if m.ranges[i].id != o.ranges[i].id {
			return false
		}
	}
	return true
}

// Package mapping tracks the line-range correspondences between the result
// document and each side of a three-way merge.
package mapping

import (
	"sort"

	"mergetab/linerange"
	"mergetab/types"
)

// Pair is one conflict block seen from both documents. Side and Result share
// an id.
type Pair struct {
	Side   linerange.LineRange
	Result linerange.LineRange
}

// ID returns the block id shared by both ranges
func (p Pair) ID() string { return p.Result.ID() }

// IsComplete reports whether the block was resolved on this side
func (p Pair) IsComplete() bool { return p.Result.IsComplete() }

// DocumentMapping is the correspondence between result ranges and the ranges
// of one side document. Resolved entries stay in the table, flagged complete,
// so that later edits keep moving them and a revoke can find them again.
type DocumentMapping struct {
	turn  types.TurnDirection
	pairs map[string]Pair
}

// NewDocumentMapping creates an empty mapping for one side
func NewDocumentMapping(turn types.TurnDirection) *DocumentMapping {
	return &DocumentMapping{
		turn:  turn,
		pairs: make(map[string]Pair),
	}
}

// TurnDirection returns the side this mapping belongs to
func (m *DocumentMapping) TurnDirection() types.TurnDirection { return m.turn }

// Ingest replaces the table with a fresh diff. Original intervals are on the
// side document, modified intervals on the result document. An incoming entry
// with the same geometry as a pending entry keeps that entry's id, so ingesting
// the same diff twice leaves the mapping unchanged.
func (m *DocumentMapping) Ingest(changes []types.LineRangeMapping) {
	previous := make(map[[4]int]string, len(m.pairs))
	for id, p := range m.pairs {
		if p.IsComplete() {
			continue
		}
		previous[geometryKey(p.Side.Interval(), p.Result.Interval())] = id
	}

	pairs := make(map[string]Pair, len(changes))
	for _, c := range changes {
		side := linerange.FromInterval(c.Original)
		result := linerange.FromInterval(c.Modified)
		if id, ok := previous[geometryKey(c.Original, c.Modified)]; ok {
			side = side.WithID(id)
		}

		kind := linerange.Classify(side, result)
		side = side.WithType(kind).WithTurnDirection(m.turn)
		result = result.WithID(side.ID()).WithType(kind).WithTurnDirection(m.turn)
		pairs[side.ID()] = Pair{Side: side, Result: result}
	}
	m.pairs = pairs
}

func geometryKey(side, result types.LineInterval) [4]int {
	return [4]int{side.Start, side.End, result.Start, result.End}
}

// Len returns the number of tracked entries, resolved ones included
func (m *DocumentMapping) Len() int { return len(m.pairs) }

// Entries returns every tracked entry ordered by result position
func (m *DocumentMapping) Entries() []Pair {
	out := make([]Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p)
	}
	sortPairs(out)
	return out
}

// PendingEntries returns the unresolved entries ordered by result position
func (m *DocumentMapping) PendingEntries() []Pair {
	var out []Pair
	for _, p := range m.pairs {
		if !p.IsComplete() {
			out = append(out, p)
		}
	}
	sortPairs(out)
	return out
}

func sortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i].Result, pairs[j].Result
		if a.Start() != b.Start() {
			return a.Start() < b.Start()
		}
		if a.EndExclusive() != b.EndExclusive() {
			return a.EndExclusive() < b.EndExclusive()
		}
		return a.ID() < b.ID()
	})
}

// ResultRanges returns every tracked result range in document order
func (m *DocumentMapping) ResultRanges() []linerange.LineRange {
	entries := m.Entries()
	out := make([]linerange.LineRange, len(entries))
	for i, p := range entries {
		out[i] = p.Result
	}
	return out
}

// Lookup returns the entry for id whatever its completion state
func (m *DocumentMapping) Lookup(id string) (Pair, bool) {
	p, ok := m.pairs[id]
	return p, ok
}

// Pending returns the entry for id only while it is unresolved
func (m *DocumentMapping) Pending(id string) (Pair, bool) {
	p, ok := m.pairs[id]
	if !ok || p.IsComplete() {
		return Pair{}, false
	}
	return p, true
}

// Reverse maps a result range to its side range. Only pending entries
// answer. The scan matches by id first and falls back to geometry.
func (m *DocumentMapping) Reverse(result linerange.LineRange) (linerange.LineRange, bool) {
	var byGeometry *Pair
	for _, p := range m.pairs {
		if p.IsComplete() {
			continue
		}
		if p.Result.ID() == result.ID() {
			return p.Side, true
		}
		if byGeometry == nil && p.Result.Equals(result) {
			found := p
			byGeometry = &found
		}
	}
	if byGeometry != nil {
		return byGeometry.Side, true
	}
	return linerange.LineRange{}, false
}

// Opposite maps a side range to its current result range. Only pending
// entries answer.
func (m *DocumentMapping) Opposite(side linerange.LineRange) (linerange.LineRange, bool) {
	p, ok := m.Pending(side.ID())
	if !ok {
		return linerange.LineRange{}, false
	}
	return p.Result, true
}

// Add inserts or replaces an entry. The result range takes the side's id.
func (m *DocumentMapping) Add(side, result linerange.LineRange) {
	m.pairs[side.ID()] = Pair{Side: side, Result: result.WithID(side.ID())}
}

// Remove deletes an entry outright
func (m *DocumentMapping) Remove(id string) bool {
	if _, ok := m.pairs[id]; !ok {
		return false
	}
	delete(m.pairs, id)
	return true
}

// Complete flags a pending entry as resolved. It returns false for unknown or
// already resolved entries.
func (m *DocumentMapping) Complete(id string, reason types.CompleteReason) bool {
	p, ok := m.Pending(id)
	if !ok {
		return false
	}
	m.pairs[id] = Pair{Side: p.Side.Done(reason), Result: p.Result.Done(reason)}
	return true
}

// Restore flags a resolved entry as pending again
func (m *DocumentMapping) Restore(id string) bool {
	p, ok := m.pairs[id]
	if !ok || !p.IsComplete() {
		return false
	}
	m.pairs[id] = Pair{Side: p.Side.Cancel(), Result: p.Result.Cancel()}
	return true
}

// setResult moves the result range of id onto new geometry, keeping its state
func (m *DocumentMapping) setResult(id string, start, end int) {
	p, ok := m.pairs[id]
	if !ok {
		return
	}
	p.Result = p.Result.WithGeometry(start, max(start, end))
	m.pairs[id] = p
}

// DeltaAdjacentQueue shifts every tracked result range that starts at or
// after the end of anchor. The anchor's own entry is never moved.
func (m *DocumentMapping) DeltaAdjacentQueue(anchor linerange.LineRange, offset int) {
	if offset == 0 {
		return
	}
	for id, p := range m.pairs {
		if id == anchor.ID() || !p.Result.IsAfter(anchor) {
			continue
		}
		p.Result = p.Result.Delta(offset)
		m.pairs[id] = p
	}
}

// DeltaEndAdjacentQueue grows or shrinks the entry tracked for anchor at its
// end and shifts everything after the anchor's previous geometry.
func (m *DocumentMapping) DeltaEndAdjacentQueue(anchor linerange.LineRange, offset int) {
	p, ok := m.pairs[anchor.ID()]
	if !ok {
		return
	}
	old := p.Result
	m.setResult(old.ID(), old.Start(), old.EndExclusive()+offset)
	m.DeltaAdjacentQueue(old, offset)
}

// DeltaAdjacentQueueAfter shifts everything after anchor, and with
// includeSelf the anchor's own entry too.
func (m *DocumentMapping) DeltaAdjacentQueueAfter(anchor linerange.LineRange, offset int, includeSelf bool) {
	p, ok := m.pairs[anchor.ID()]
	if !ok {
		m.DeltaAdjacentQueue(anchor, offset)
		return
	}
	old := p.Result
	if includeSelf {
		p.Result = old.Delta(offset)
		m.pairs[old.ID()] = p
	}
	m.DeltaAdjacentQueue(old, offset)
}

// FindIncludeRange returns the first tracked result range containing target
func (m *DocumentMapping) FindIncludeRange(target linerange.LineRange) (linerange.LineRange, bool) {
	for _, p := range m.Entries() {
		if p.Result.IsInclude(target) {
			return p.Result, true
		}
	}
	return linerange.LineRange{}, false
}

// FindTouchesRange returns the first tracked result range touching target.
// Without allowContact a range that only shares a boundary line is skipped.
func (m *DocumentMapping) FindTouchesRange(target linerange.LineRange, allowContact bool) (linerange.LineRange, bool) {
	for _, p := range m.Entries() {
		if !p.Result.IsTouches(target) {
			continue
		}
		if !allowContact && p.Result.IsContact(target) {
			continue
		}
		return p.Result, true
	}
	return linerange.LineRange{}, false
}

// FindNextSameRange returns the first tracked result range starting at or
// after the start of target.
func (m *DocumentMapping) FindNextSameRange(target linerange.LineRange) (linerange.LineRange, bool) {
	for _, p := range m.Entries() {
		if p.Result.Start() >= target.Start() {
			return p.Result, true
		}
	}
	return linerange.LineRange{}, false
}

// Clear drops every entry
func (m *DocumentMapping) Clear() {
	m.pairs = make(map[string]Pair)
}

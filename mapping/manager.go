package mapping

import (
	"sort"

	"mergetab/linerange"
	"mergetab/logger"
	"mergetab/types"
)

// RangePair is the answer of a query fanned out to both mappings. A nil
// field means that side had no match.
type RangePair struct {
	Current  *linerange.LineRange
	Incoming *linerange.LineRange
}

// Manager owns the current and incoming mappings and keeps them in step
type Manager struct {
	current  *DocumentMapping
	incoming *DocumentMapping
}

// NewManager composes a manager from two mappings
func NewManager(current, incoming *DocumentMapping) *Manager {
	return &Manager{current: current, incoming: incoming}
}

func (m *Manager) Current() *DocumentMapping  { return m.current }
func (m *Manager) Incoming() *DocumentMapping { return m.incoming }

// Mapping returns the mapping for one side, or nil for TurnBoth
func (m *Manager) Mapping(turn types.TurnDirection) *DocumentMapping {
	switch turn {
	case types.TurnCurrent:
		return m.current
	case types.TurnIncoming:
		return m.incoming
	default:
		return nil
	}
}

func (m *Manager) both() []*DocumentMapping {
	return []*DocumentMapping{m.current, m.incoming}
}

func (m *Manager) IngestCurrent(changes []types.LineRangeMapping) {
	m.current.Ingest(changes)
}

func (m *Manager) IngestIncoming(changes []types.LineRangeMapping) {
	m.incoming.Ingest(changes)
}

// MarkComplete resolves the entry of side on its own mapping. Unless ignoring,
// the result range is first resized to the side's height and the difference
// is propagated downstream on both mappings. Stale or already resolved
// entries are left alone and false is returned.
func (m *Manager) MarkComplete(side linerange.LineRange, isIgnore bool, reason types.CompleteReason) bool {
	mapping := m.Mapping(side.TurnDirection())
	if mapping == nil {
		return false
	}
	pair, ok := mapping.Pending(side.ID())
	if !ok {
		logger.Debug("mapping: stale complete for %s on %s", side.ID(), side.TurnDirection())
		return false
	}

	if !isIgnore {
		margin := pair.Side.Length() - pair.Result.Length()
		m.Reshape(pair.Result, pair.Result.DeltaEnd(margin))
	}
	return mapping.Complete(side.ID(), reason)
}

// Reshape moves every entry sharing old's id onto next's geometry and shifts
// every range located after old by the change in height, on both mappings.
func (m *Manager) Reshape(old, next linerange.LineRange) {
	margin := next.Length() - old.Length()
	for _, mapping := range m.both() {
		if _, ok := mapping.Lookup(old.ID()); ok {
			mapping.setResult(old.ID(), next.Start(), next.EndExclusive())
		}
		mapping.DeltaAdjacentQueue(old, margin)
	}
}

// Revoke marks the entries of id pending again on the sides turn names
func (m *Manager) Revoke(turn types.TurnDirection, id string) bool {
	var mappings []*DocumentMapping
	if turn == types.TurnBoth {
		mappings = m.both()
	} else if mapping := m.Mapping(turn); mapping != nil {
		mappings = []*DocumentMapping{mapping}
	}

	restored := false
	for _, mapping := range mappings {
		if mapping.Restore(id) {
			restored = true
		}
	}
	return restored
}

// FindIncludeRanges fans FindIncludeRange out to both mappings
func (m *Manager) FindIncludeRanges(target linerange.LineRange) RangePair {
	return m.fanOut(func(d *DocumentMapping) (linerange.LineRange, bool) {
		return d.FindIncludeRange(target)
	})
}

// FindTouchesRanges fans FindTouchesRange out to both mappings
func (m *Manager) FindTouchesRanges(target linerange.LineRange, allowContact bool) RangePair {
	return m.fanOut(func(d *DocumentMapping) (linerange.LineRange, bool) {
		return d.FindTouchesRange(target, allowContact)
	})
}

// FindNextLineRanges fans FindNextSameRange out to both mappings
func (m *Manager) FindNextLineRanges(target linerange.LineRange) RangePair {
	return m.fanOut(func(d *DocumentMapping) (linerange.LineRange, bool) {
		return d.FindNextSameRange(target)
	})
}

func (m *Manager) fanOut(find func(*DocumentMapping) (linerange.LineRange, bool)) RangePair {
	var pair RangePair
	if r, ok := find(m.current); ok {
		pair.Current = &r
	}
	if r, ok := find(m.incoming); ok {
		pair.Incoming = &r
	}
	return pair
}

// Side returns the RangePair field for turn
func (p RangePair) Side(turn types.TurnDirection) *linerange.LineRange {
	switch turn {
	case types.TurnCurrent:
		return p.Current
	case types.TurnIncoming:
		return p.Incoming
	default:
		return nil
	}
}

// ResultRanges returns the result ranges of both mappings in document order.
// Combined blocks exist on both sides under one id and are reported once,
// with TurnBoth.
func (m *Manager) ResultRanges() []linerange.LineRange {
	seen := make(map[string]int)
	var out []linerange.LineRange
	for _, mapping := range m.both() {
		for _, r := range mapping.ResultRanges() {
			if i, ok := seen[r.ID()]; ok {
				// a block counts as complete once every side resolved it
				if !r.IsComplete() {
					out[i] = out[i].Cancel()
				}
				continue
			}
			seen[r.ID()] = len(out)
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start() != out[j].Start() {
			return out[i].Start() < out[j].Start()
		}
		return out[i].EndExclusive() < out[j].EndExclusive()
	})
	return out
}

// FindResult returns the latest result geometry tracked for id
func (m *Manager) FindResult(id string) (linerange.LineRange, bool) {
	for _, mapping := range m.both() {
		if p, ok := mapping.Lookup(id); ok {
			return p.Result, true
		}
	}
	return linerange.LineRange{}, false
}

// Lookup returns the entries for id on both sides
func (m *Manager) Lookup(id string) (current, incoming *Pair) {
	if p, ok := m.current.Lookup(id); ok {
		current = &p
	}
	if p, ok := m.incoming.Lookup(id); ok {
		incoming = &p
	}
	return current, incoming
}

// Clear drops every entry on both sides
func (m *Manager) Clear() {
	m.current.Clear()
	m.incoming.Clear()
}

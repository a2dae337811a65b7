package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetab/linerange"
	"mergetab/types"
)

func hunk(sideStart, sideEnd, resultStart, resultEnd int) types.LineRangeMapping {
	return types.LineRangeMapping{
		Original: types.LineInterval{Start: sideStart, End: sideEnd},
		Modified: types.LineInterval{Start: resultStart, End: resultEnd},
	}
}

func iv(start, end int) types.LineInterval {
	return types.LineInterval{Start: start, End: end}
}

func resultIntervals(m *DocumentMapping) []types.LineInterval {
	var out []types.LineInterval
	for _, r := range m.ResultRanges() {
		out = append(out, r.Interval())
	}
	return out
}

func TestIngest_BuildsPairs(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{
		hunk(2, 4, 2, 3),
		hunk(7, 7, 6, 8),
		hunk(9, 11, 10, 10),
	})

	entries := m.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, iv(2, 4), entries[0].Side.Interval())
	assert.Equal(t, iv(2, 3), entries[0].Result.Interval())
	assert.Equal(t, entries[0].Side.ID(), entries[0].Result.ID(), "pair shares one id")
	assert.Equal(t, types.RangeModify, entries[0].Side.Type())

	assert.Equal(t, types.RangeInsert, entries[1].Side.Type(), "empty on the side, present in result")
	assert.Equal(t, types.RangeRemove, entries[2].Side.Type(), "present on the side, empty in result")

	for _, e := range entries {
		assert.Equal(t, types.TurnCurrent, e.Side.TurnDirection())
		assert.Equal(t, types.TurnCurrent, e.Result.TurnDirection())
		assert.False(t, e.IsComplete())
	}
}

func TestIngest_Idempotent(t *testing.T) {
	changes := []types.LineRangeMapping{hunk(2, 4, 2, 3), hunk(9, 11, 10, 12)}

	m := NewDocumentMapping(types.TurnIncoming)
	m.Ingest(changes)
	first := m.Entries()

	m.Ingest(changes)
	second := m.Entries()

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Side.Same(second[i].Side), "side %d unchanged", i)
		assert.True(t, first[i].Result.Same(second[i].Result), "result %d unchanged", i)
	}
}

func TestIngest_ReplacesPreviousEntries(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{hunk(2, 4, 2, 3)})
	m.Ingest([]types.LineRangeMapping{hunk(5, 6, 5, 6)})

	assert.Equal(t, []types.LineInterval{iv(5, 6)}, resultIntervals(m))
}

func TestReverseAndOpposite(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{hunk(3, 5, 4, 6)})
	p := m.Entries()[0]

	side, ok := m.Reverse(p.Result)
	require.True(t, ok)
	assert.Equal(t, iv(3, 5), side.Interval())

	byGeometry, ok := m.Reverse(linerange.New(4, 6))
	require.True(t, ok, "geometry fallback")
	assert.Equal(t, p.Side.ID(), byGeometry.ID())

	result, ok := m.Opposite(p.Side)
	require.True(t, ok)
	assert.Equal(t, iv(4, 6), result.Interval())

	_, ok = m.Reverse(linerange.New(40, 41))
	assert.False(t, ok)
}

func TestReverse_IgnoresResolved(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{hunk(3, 5, 4, 6)})
	p := m.Entries()[0]

	require.True(t, m.Complete(p.ID(), types.ReasonUserManual))

	_, ok := m.Reverse(p.Result)
	assert.False(t, ok, "resolved entries do not answer reverse lookups")

	_, ok = m.Lookup(p.ID())
	assert.True(t, ok, "resolved entries stay tracked")

	assert.False(t, m.Complete(p.ID(), types.ReasonUserManual), "second completion is a no-op")
	assert.True(t, m.Restore(p.ID()))
	assert.False(t, m.Restore(p.ID()), "second restore is a no-op")
}

func TestDeltaAdjacentQueue(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{
		hunk(10, 15, 10, 15),
		hunk(30, 35, 30, 35),
		hunk(40, 41, 40, 40),
	})
	first := m.Entries()[0]

	m.DeltaAdjacentQueue(first.Result, -2)

	assert.Equal(t, []types.LineInterval{iv(10, 15), iv(28, 33), iv(38, 38)}, resultIntervals(m))
}

func TestDeltaEndAdjacentQueue(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{
		hunk(10, 15, 10, 15),
		hunk(30, 35, 30, 35),
	})
	entries := m.Entries()

	m.DeltaEndAdjacentQueue(entries[0].Result, 3)

	after := m.Entries()
	assert.Equal(t, iv(10, 18), after[0].Result.Interval())
	assert.Equal(t, iv(33, 38), after[1].Result.Interval())
	assert.Equal(t, entries[1].ID(), after[1].ID(), "id unchanged")
	assert.False(t, after[1].IsComplete(), "completion unchanged")
	assert.Equal(t, iv(30, 35), after[1].Side.Interval(), "side documents never shift")
}

func TestDeltaEndAdjacentQueue_ClampsAtStart(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{hunk(10, 12, 10, 12)})

	m.DeltaEndAdjacentQueue(m.Entries()[0].Result, -5)

	assert.Equal(t, []types.LineInterval{iv(10, 10)}, resultIntervals(m))
}

func TestDeltaAdjacentQueueAfter(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{
		hunk(10, 15, 10, 15),
		hunk(30, 35, 30, 35),
	})
	entries := m.Entries()

	m.DeltaAdjacentQueueAfter(entries[0].Result, 2, true)
	assert.Equal(t, []types.LineInterval{iv(12, 17), iv(32, 37)}, resultIntervals(m))

	m.DeltaAdjacentQueueAfter(m.Entries()[0].Result, 1, false)
	assert.Equal(t, []types.LineInterval{iv(12, 17), iv(33, 38)}, resultIntervals(m))
}

func TestFindQueries(t *testing.T) {
	m := NewDocumentMapping(types.TurnCurrent)
	m.Ingest([]types.LineRangeMapping{
		hunk(10, 15, 10, 15),
		hunk(30, 35, 30, 35),
	})

	r, ok := m.FindIncludeRange(linerange.New(12, 13))
	require.True(t, ok)
	assert.Equal(t, iv(10, 15), r.Interval())

	_, ok = m.FindIncludeRange(linerange.New(14, 17))
	assert.False(t, ok)

	r, ok = m.FindTouchesRange(linerange.New(14, 17), false)
	require.True(t, ok)
	assert.Equal(t, iv(10, 15), r.Interval())

	_, ok = m.FindTouchesRange(linerange.New(15, 16), false)
	assert.False(t, ok, "boundary contact excluded")

	r, ok = m.FindTouchesRange(linerange.New(15, 16), true)
	require.True(t, ok, "boundary contact allowed")
	assert.Equal(t, iv(10, 15), r.Interval())

	r, ok = m.FindNextSameRange(linerange.New(15, 16))
	require.True(t, ok)
	assert.Equal(t, iv(30, 35), r.Interval())

	_, ok = m.FindNextSameRange(linerange.New(36, 37))
	assert.False(t, ok)
}

func TestAddRemove(t *testing.T) {
	m := NewDocumentMapping(types.TurnIncoming)
	side := linerange.New(1, 3)
	m.Add(side, linerange.New(4, 6))

	p, ok := m.Lookup(side.ID())
	require.True(t, ok)
	assert.Equal(t, side.ID(), p.Result.ID(), "result adopts the side id")

	assert.True(t, m.Remove(side.ID()))
	assert.False(t, m.Remove(side.ID()))
	assert.Equal(t, 0, m.Len())
}

package engine

import (
	"sort"

	"mergetab/linerange"
	"mergetab/mapping"
	"mergetab/text"
	"mergetab/types"
)

// changeOffset is the number of lines a content change adds (or removes when
// negative)
func changeOffset(c types.ContentChange) int {
	return c.StartLine - c.EndLine + text.CountEOL(c.Text)
}

// propagateResultChange moves every tracked result range to follow a user
// edit of the result document. Changes are applied bottom-up so earlier ones
// see untouched geometry.
func propagateResultChange(m *mapping.Manager, ev types.ContentChangeEvent) {
	changes := make([]types.ContentChange, len(ev.Changes))
	copy(changes, ev.Changes)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].StartLine > changes[j].StartLine
	})

	for _, c := range changes {
		offset := changeOffset(c)
		if offset == 0 {
			continue
		}
		target := linerange.New(c.StartLine, c.EndLine+max(0, offset))

		include := m.FindIncludeRanges(target)
		touches := m.FindTouchesRanges(target, false)
		next := m.FindNextLineRanges(target)

		for _, turn := range []types.TurnDirection{types.TurnCurrent, types.TurnIncoming} {
			dm := m.Mapping(turn)
			switch {
			case include.Side(turn) != nil:
				dm.DeltaEndAdjacentQueue(*include.Side(turn), offset)
			case touches.Side(turn) != nil:
				dm.DeltaEndAdjacentQueue(*touches.Side(turn), offset)
			case next.Side(turn) != nil:
				dm.DeltaAdjacentQueueAfter(*next.Side(turn), offset, true)
			}
		}
	}
}

package engine

import (
	"sort"

	"mergetab/linerange"
	"mergetab/mapping"
	"mergetab/types"
)

// touchRun is a maximal sequence of result ranges, from either side, that
// touch one another
type touchRun struct {
	members []linerange.LineRange
	merged  linerange.LineRange
}

// distillRuns groups sorted result ranges into touching runs
func distillRuns(sorted []linerange.LineRange) []touchRun {
	var runs []touchRun
	for _, r := range sorted {
		if n := len(runs); n > 0 && runs[n-1].merged.IsTouches(r) {
			last := &runs[n-1]
			last.merged = last.merged.Merge(r, true)
			last.members = append(last.members, r)
			continue
		}
		runs = append(runs, touchRun{members: []linerange.LineRange{r}, merged: r})
	}
	return runs
}

// combineTouching replaces every run of touching result ranges with a single
// block tracked on both sides under one id. It returns the number of blocks
// created.
func combineTouching(m *mapping.Manager) int {
	var all []linerange.LineRange
	all = append(all, m.Current().ResultRanges()...)
	all = append(all, m.Incoming().ResultRanges()...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start() != all[j].Start() {
			return all[i].Start() < all[j].Start()
		}
		return all[i].EndExclusive() < all[j].EndExclusive()
	})

	combined := 0
	for _, run := range distillRuns(all) {
		if len(run.members) < 2 {
			continue
		}
		applyRun(m, run)
		combined++
	}
	return combined
}

// applyRun swaps the members of run for one pair per side. The side range of
// each pair is stretched so it covers the whole run: the first member of that
// side grows back to the run start and the last one forward to the run end.
// The raw side ranges are kept as provenance for accept-combination.
func applyRun(m *mapping.Manager, run touchRun) {
	merged := run.merged.WithType(types.RangeModify).WithTurnDirection(types.TurnBoth)

	for _, turn := range []types.TurnDirection{types.TurnCurrent, types.TurnIncoming} {
		dm := m.Mapping(turn)

		var members []linerange.LineRange
		for _, r := range run.members {
			if r.TurnDirection() == turn {
				members = append(members, r)
			}
		}

		var side linerange.LineRange
		found := false
		for i, member := range members {
			pair, ok := dm.Lookup(member.ID())
			if !ok {
				continue
			}
			raw := pair.Side
			adjusted := raw
			if i == 0 {
				adjusted = adjusted.DeltaStart(min(0, merged.Start()-member.Start()))
			}
			if i == len(members)-1 {
				adjusted = adjusted.DeltaEnd(max(0, merged.EndExclusive()-member.EndExclusive()))
			}

			if !found {
				side = adjusted.ResetMerge()
				found = true
			} else {
				side = side.Merge(adjusted, false)
			}
			side = side.RecordMerge(raw)
			dm.Remove(member.ID())
		}
		if !found {
			continue
		}

		side = side.WithID(merged.ID()).WithTurnDirection(turn).WithType(types.RangeModify)
		dm.Add(side, merged)
	}
}

// Package linerange implements the half-open line interval that every
// conflict block is tracked with. A LineRange is an immutable value: every
// transform returns a copy that keeps the id, type, turn direction,
// completion state and merge provenance unless the transform says otherwise.
package linerange

import (
	"fmt"

	"github.com/google/uuid"

	"mergetab/types"
)

// LineRange is the half-open interval [Start, EndExclusive) with identity
type LineRange struct {
	id         string
	start      int
	end        int
	kind       types.RangeType
	turn       types.TurnDirection
	complete   bool
	reason     types.CompleteReason
	mergeState MergeState
}

// New creates a range with a fresh id
func New(start, endExclusive int) LineRange {
	return LineRange{
		id:    uuid.NewString(),
		start: start,
		end:   endExclusive,
	}
}

// FromInterval creates a range with a fresh id covering iv
func FromInterval(iv types.LineInterval) LineRange {
	return New(iv.Start, iv.End)
}

func (r LineRange) ID() string { return r.id }
func (r LineRange) Start() int { return r.start }
func (r LineRange) EndExclusive() int { return r.end }
func (r LineRange) Type() types.RangeType { return r.kind }
func (r LineRange) TurnDirection() types.TurnDirection { return r.turn }
func (r LineRange) IsComplete() bool { return r.complete }
func (r LineRange) CompleteReason() types.CompleteReason { return r.reason }
func (r LineRange) MergeState() MergeState { return r.mergeState }

func (r LineRange) IsEmpty() bool { return r.start == r.end }

func (r LineRange) Length() int { return r.end - r.start }

// Interval returns the geometry without identity
func (r LineRange) Interval() types.LineInterval {
	return types.LineInterval{Start: r.start, End: r.end}
}

// IsMerge reports whether the range was produced by combining blocks
func (r LineRange) IsMerge() bool { return r.mergeState.Len() > 0 }

// IsAllowCombination reports whether the constituents form a contact chain
func (r LineRange) IsAllowCombination() bool { return r.mergeState.IsContactChain() }

// IsConflictPoint reports whether both sides changed the block
func (r LineRange) IsConflictPoint() bool {
	return r.IsMerge() && r.kind == types.RangeModify
}

// Provenance returns a copy of the constituent ranges
func (r LineRange) Provenance() []LineRange { return r.mergeState.Ranges() }

// IsTouches reports whether the closed intervals share at least one line
func (r LineRange) IsTouches(o LineRange) bool {
	return r.end >= o.start && o.end >= r.start
}

// IsContact reports whether the ranges meet exactly at a boundary
func (r LineRange) IsContact(o LineRange) bool {
	return r.start == o.end || r.end == o.start
}

// IsInclude reports whether o lies fully inside r
func (r LineRange) IsInclude(o LineRange) bool {
	return r.start <= o.start && r.end >= o.end
}

// IsAfter reports whether r starts at or after the end of o
func (r LineRange) IsAfter(o LineRange) bool { return r.start >= o.end }

// IsBefore reports whether r ends at or before the start of o
func (r LineRange) IsBefore(o LineRange) bool { return r.end <= o.start }

// IsTendencyRight is true when r is a pure insertion point against ref
func (r LineRange) IsTendencyRight(ref LineRange) bool {
	return r.IsEmpty() && !ref.IsEmpty()
}

// IsTendencyLeft is true when ref is a pure insertion point against r
func (r LineRange) IsTendencyLeft(ref LineRange) bool {
	return !r.IsEmpty() && ref.IsEmpty()
}

// Classify returns the range type of r relative to its counterpart ref
func Classify(r, ref LineRange) types.RangeType {
	switch {
	case r.IsTendencyRight(ref):
		return types.RangeInsert
	case r.IsTendencyLeft(ref):
		return types.RangeRemove
	default:
		return types.RangeModify
	}
}

// Equals compares geometry only
func (r LineRange) Equals(o LineRange) bool {
	return r.start == o.start && r.end == o.end
}

// Same compares geometry, identity and state, provenance ids included
func (r LineRange) Same(o LineRange) bool {
	return r.id == o.id &&
		r.Equals(o) &&
		r.kind == o.kind &&
		r.turn == o.turn &&
		r.complete == o.complete &&
		r.reason == o.reason &&
		r.mergeState.sameIDs(o.mergeState)
}

func (r LineRange) String() string {
	return fmt.Sprintf("[%d,%d)%s", r.start, r.end, r.turn)
}

// Born returns a copy with a fresh id and otherwise identical state
func (r LineRange) Born() LineRange {
	c := r.clone()
	c.id = uuid.NewString()
	return c
}

func (r LineRange) Delta(offset int) LineRange {
	c := r.clone()
	c.start += offset
	c.end += offset
	return c
}

func (r LineRange) DeltaStart(offset int) LineRange {
	c := r.clone()
	c.start += offset
	return c
}

func (r LineRange) DeltaEnd(offset int) LineRange {
	c := r.clone()
	c.end += offset
	return c
}

// Resize returns a copy anchored at the same start spanning length lines
func (r LineRange) Resize(length int) LineRange {
	c := r.clone()
	c.end = c.start + length
	return c
}

// Merge spans both ranges and marks the result as belonging to both sides.
// With keep set, r (once, by id) and o are appended to the provenance.
func (r LineRange) Merge(o LineRange, keep bool) LineRange {
	c := r.clone()
	c.start = min(r.start, o.start)
	c.end = max(r.end, o.end)
	c.turn = types.TurnBoth
	if keep {
		if !c.mergeState.Has(r) {
			c.mergeState = c.mergeState.Add(r)
		}
		c.mergeState = c.mergeState.Add(o)
	}
	return c
}

// RecordMerge returns a copy whose provenance additionally holds o
func (r LineRange) RecordMerge(o LineRange) LineRange {
	c := r.clone()
	c.mergeState = c.mergeState.Add(o)
	return c
}

// ResetMerge returns a copy with empty provenance
func (r LineRange) ResetMerge() LineRange {
	c := r.clone()
	c.mergeState = c.mergeState.Reset()
	return c
}

func (r LineRange) WithID(id string) LineRange {
	c := r.clone()
	c.id = id
	return c
}

func (r LineRange) WithType(t types.RangeType) LineRange {
	c := r.clone()
	c.kind = t
	return c
}

func (r LineRange) WithTurnDirection(d types.TurnDirection) LineRange {
	c := r.clone()
	c.turn = d
	return c
}

// WithGeometry copies r onto new line numbers
func (r LineRange) WithGeometry(start, endExclusive int) LineRange {
	c := r.clone()
	c.start = start
	c.end = endExclusive
	return c
}

// Done returns a completed copy
func (r LineRange) Done(reason types.CompleteReason) LineRange {
	c := r.clone()
	c.complete = true
	c.reason = reason
	return c
}

// Cancel returns a pending copy
func (r LineRange) Cancel() LineRange {
	c := r.clone()
	c.complete = false
	c.reason = types.ReasonNone
	return c
}

// clone copies every field. MergeState is copy-on-write so sharing its
// backing slice is safe.
func (r LineRange) clone() LineRange {
	return LineRange{
		id:         r.id,
		start:      r.start,
		end:        r.end,
		kind:       r.kind,
		turn:       r.turn,
		complete:   r.complete,
		reason:     r.reason,
		mergeState: r.mergeState,
	}
}

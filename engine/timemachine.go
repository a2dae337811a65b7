package engine

import "mergetab/linerange"

// Snapshot is the content a block had before anyone resolved it. A nil Text
// means the block was a pure deletion point.
type Snapshot struct {
	Range linerange.LineRange
	Text  *string
}

// TimeMachine remembers the original content of every block so it can be
// revoked. Snapshots are write-once.
type TimeMachine struct {
	snapshots map[string]Snapshot
}

func NewTimeMachine() *TimeMachine {
	return &TimeMachine{snapshots: make(map[string]Snapshot)}
}

// Record stores the snapshot for r unless one already exists
func (t *TimeMachine) Record(r linerange.LineRange, text *string) bool {
	if _, ok := t.snapshots[r.ID()]; ok {
		return false
	}
	if r.IsEmpty() {
		text = nil
	}
	t.snapshots[r.ID()] = Snapshot{Range: r, Text: text}
	return true
}

func (t *TimeMachine) Get(id string) (Snapshot, bool) {
	s, ok := t.snapshots[id]
	return s, ok
}

func (t *TimeMachine) Len() int { return len(t.snapshots) }

func (t *TimeMachine) Clear() {
	t.snapshots = make(map[string]Snapshot)
}

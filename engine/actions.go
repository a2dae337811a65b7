package engine

import (
	"context"
	"sort"
	"sync"

	"mergetab/linerange"
	"mergetab/logger"
	"mergetab/mapping"
	"mergetab/text"
	"mergetab/types"
)

// Action is one request to change a block. Range carries the block id and the
// side acting on it; its geometry is refreshed from the mappings before use.
type Action struct {
	Type   types.ActionType
	Range  linerange.LineRange
	Reason types.CompleteReason
	Ctx    context.Context // parent of AI requests, background when nil
}

// Outcome reports what an action did. Pending is set when an AI request was
// prepared and still has to be executed.
type Outcome struct {
	Action  types.ActionType
	ID      string
	Applied bool
	State   BlockState
	Reply   *types.Reply
	Pending *PendingResolve
}

// PendingResolve is an AI request registered for a block. Only the latest
// generation for an id may finish.
type PendingResolve struct {
	ID         string
	Generation uint64
	Action     types.ActionType
	Request    *types.ResolveRequest

	gather *GatherRequest
	ctx    context.Context
	cancel context.CancelFunc
}

type aiState struct {
	loading bool
	answer  *string
}

// ActionsManager applies conflict actions to the result document and keeps
// the mappings in step with every edit it makes.
type ActionsManager struct {
	docs        Documents
	mappings    *mapping.Manager
	timeMachine *TimeMachine
	resolver    Resolver
	gatherer    ContextGatherer
	config      EngineConfig

	states map[string]BlockState
	ai     map[string]*aiState

	inflightMu sync.Mutex
	inflight   map[string]*PendingResolve
	generation uint64
}

// NewActionsManager wires an actions manager. resolver may be nil, in which
// case AI actions answer with an error reply.
func NewActionsManager(docs Documents, mappings *mapping.Manager, tm *TimeMachine, resolver Resolver) *ActionsManager {
	return &ActionsManager{
		docs:        docs,
		mappings:    mappings,
		timeMachine: tm,
		resolver:    resolver,
		config:      EngineConfig{ContextLines: defaultContextLines, GatherTimeout: defaultGatherTimeout},
		states:      make(map[string]BlockState),
		ai:          make(map[string]*aiState),
		inflight:    make(map[string]*PendingResolve),
	}
}

func (am *ActionsManager) SetGatherer(g ContextGatherer) { am.gatherer = g }

func (am *ActionsManager) SetConfig(config EngineConfig) {
	if config.ContextLines <= 0 {
		config.ContextLines = defaultContextLines
	}
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = defaultGatherTimeout
	}
	am.config = config
}

// State returns the block state for id
func (am *ActionsManager) State(id string) BlockState {
	return am.states[id]
}

// IsLoading reports whether an AI request is running for id
func (am *ActionsManager) IsLoading(id string) bool {
	st, ok := am.ai[id]
	return ok && st.loading
}

// Answer returns the last AI answer spliced into block id
func (am *ActionsManager) Answer(id string) (string, bool) {
	st, ok := am.ai[id]
	if !ok || st.answer == nil {
		return "", false
	}
	return *st.answer, true
}

// Handle runs action through the transitions table
func (am *ActionsManager) Handle(action Action) Outcome {
	if action.Reason == types.ReasonNone {
		action.Reason = types.ReasonUserManual
	}
	out := am.dispatch(action)
	if out.Applied {
		logger.Info("actions: %s on %s -> %s", action.Type, out.ID, out.State)
	}
	return out
}

func (am *ActionsManager) stale(a Action) Outcome {
	return Outcome{Action: a.Type, ID: a.Range.ID(), State: am.State(a.Range.ID())}
}

func (am *ActionsManager) settle(a Action, next BlockState) Outcome {
	id := a.Range.ID()
	if next == BlockPending {
		delete(am.states, id)
	} else {
		am.states[id] = next
	}
	return Outcome{Action: a.Type, ID: id, Applied: true, State: next}
}

func acceptedState(turn types.TurnDirection) BlockState {
	if turn == types.TurnIncoming {
		return BlockAcceptedIncoming
	}
	return BlockAcceptedCurrent
}

// pendingSide returns the entry the acting range belongs to. A side range
// with no pending result counterpart is stale.
func (am *ActionsManager) pendingSide(r linerange.LineRange) (mapping.Pair, bool) {
	m := am.mappings.Mapping(r.TurnDirection())
	if m == nil {
		return mapping.Pair{}, false
	}
	p, ok := m.Lookup(r.ID())
	if !ok {
		return mapping.Pair{}, false
	}
	result, ok := m.Opposite(p.Side)
	if !ok {
		return mapping.Pair{}, false
	}
	return mapping.Pair{Side: p.Side, Result: result}, true
}

// sideLines reads iv from a side editor
func (am *ActionsManager) sideLines(turn types.TurnDirection, iv types.LineInterval) []string {
	if iv.IsEmpty() {
		return nil
	}
	ed := am.docs.editor(turn)
	return text.SplitLines(ed.GetText(iv), ed.EOL())
}

// resultText joins lines with the result EOL. No lines means deletion.
func (am *ActionsManager) resultText(lines []string) *string {
	if len(lines) == 0 {
		return nil
	}
	s := text.JoinLines(lines, am.docs.Result.EOL())
	return &s
}

// clampEdit keeps an edit inside a document of lineCount lines
func clampEdit(edit types.Edit, lineCount int) types.Edit {
	limit := lineCount + 1
	start := min(max(edit.Range.Start, 1), limit)
	end := min(max(edit.Range.End, start), limit)
	return types.Edit{Range: types.LineInterval{Start: start, End: end}, Text: edit.Text}
}

func (am *ActionsManager) applyResult(edit types.Edit) bool {
	ed := am.docs.Result
	if err := ed.ApplyEdits([]types.Edit{clampEdit(edit, ed.LineCount())}); err != nil {
		logger.Error("actions: apply result edit %v: %v", edit.Range, err)
		return false
	}
	return true
}

func (am *ActionsManager) doAccept(a Action) Outcome {
	pair, ok := am.pendingSide(a.Range)
	if !ok {
		return am.stale(a)
	}
	turn := a.Range.TurnDirection()
	lines := am.sideLines(turn, pair.Side.Interval())
	if !am.applyResult(types.Edit{Range: pair.Result.Interval(), Text: am.resultText(lines)}) {
		return am.stale(a)
	}
	am.mappings.MarkComplete(pair.Side, false, a.Reason)
	return am.settle(a, acceptedState(turn))
}

func (am *ActionsManager) doAppend(a Action) Outcome {
	pair, ok := am.pendingSide(a.Range)
	if !ok {
		return am.stale(a)
	}
	turn := a.Range.TurnDirection()
	lines := am.sideLines(turn, pair.Side.Interval())
	result := pair.Result
	if len(lines) > 0 {
		at := types.LineInterval{Start: result.EndExclusive(), End: result.EndExclusive()}
		if !am.applyResult(types.Edit{Range: at, Text: am.resultText(lines)}) {
			return am.stale(a)
		}
		am.mappings.Reshape(result, result.DeltaEnd(len(lines)))
	}
	am.mappings.MarkComplete(pair.Side, true, a.Reason)

	next := acceptedState(turn)
	if prev := am.State(a.Range.ID()); prev != next && (prev == BlockAcceptedCurrent || prev == BlockAcceptedIncoming) {
		next = BlockCombined
	}
	return am.settle(a, next)
}

func (am *ActionsManager) doIgnore(a Action) Outcome {
	turns := []types.TurnDirection{a.Range.TurnDirection()}
	if a.Range.TurnDirection() == types.TurnBoth {
		turns = []types.TurnDirection{types.TurnCurrent, types.TurnIncoming}
	}

	ignored := false
	for _, turn := range turns {
		pair, ok := am.pendingSide(a.Range.WithTurnDirection(turn))
		if !ok {
			continue
		}
		if am.mappings.MarkComplete(pair.Side, true, a.Reason) {
			ignored = true
		}
	}
	if !ignored {
		return am.stale(a)
	}

	next := BlockIgnored
	if prev := am.State(a.Range.ID()); prev == BlockAcceptedCurrent || prev == BlockAcceptedIncoming {
		next = prev
	}
	return am.settle(a, next)
}

func (am *ActionsManager) doRevoke(a Action) Outcome {
	id := a.Range.ID()
	snap, ok := am.timeMachine.Get(id)
	if !ok {
		logger.Warn("actions: no snapshot for %s", id)
		return am.stale(a)
	}
	result, ok := am.mappings.FindResult(id)
	if !ok {
		return am.stale(a)
	}
	cur, inc := am.mappings.Lookup(id)
	if !(cur != nil && cur.IsComplete()) && !(inc != nil && inc.IsComplete()) {
		return am.stale(a)
	}

	if !am.applyResult(types.Edit{Range: result.Interval(), Text: snap.Text}) {
		return am.stale(a)
	}
	am.mappings.Reshape(result, result.Resize(snap.Range.Length()))
	am.mappings.Revoke(result.TurnDirection(), id)
	am.clearAI(id)
	return am.settle(a, BlockPending)
}

func (am *ActionsManager) doAcceptCombination(a Action) Outcome {
	id := a.Range.ID()
	result, ok := am.mappings.FindResult(id)
	if !ok || !result.IsAllowCombination() {
		return am.stale(a)
	}
	cur, okCur := am.mappings.Current().Reverse(result)
	inc, okInc := am.mappings.Incoming().Reverse(result)
	if !okCur || !okInc {
		return am.stale(a)
	}

	var lines []string
	for _, seg := range combinationSegments(result, cur, inc) {
		if seg.IsEmpty() {
			continue
		}
		lines = append(lines, am.sideLines(seg.TurnDirection(), seg.Interval())...)
	}
	if !am.applyResult(types.Edit{Range: result.Interval(), Text: am.resultText(lines)}) {
		return am.stale(a)
	}
	am.mappings.Reshape(result, result.Resize(len(lines)))
	am.mappings.MarkComplete(cur, true, types.ReasonCombination)
	am.mappings.MarkComplete(inc, true, types.ReasonCombination)
	return am.settle(a, BlockCombined)
}

// combinationSegments pairs each result constituent, in document order, with
// the next raw side range recorded for its side.
func combinationSegments(result, current, incoming linerange.LineRange) []linerange.LineRange {
	queues := map[types.TurnDirection][]linerange.LineRange{
		types.TurnCurrent:  sortedByStart(current.Provenance()),
		types.TurnIncoming: sortedByStart(incoming.Provenance()),
	}

	var out []linerange.LineRange
	for _, c := range sortedByStart(result.Provenance()) {
		turn := c.TurnDirection()
		q := queues[turn]
		if len(q) == 0 {
			continue
		}
		out = append(out, q[0].WithTurnDirection(turn))
		queues[turn] = q[1:]
	}
	return out
}

func sortedByStart(ranges []linerange.LineRange) []linerange.LineRange {
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].Start() < ranges[j].Start()
	})
	return ranges
}

// AcceptAll resolves every pending block of one side. A merged block whose
// other side is already in gets this side appended instead of overwritten.
// Conflict points are skipped when ignoreConflict is set.
func (am *ActionsManager) AcceptAll(turn types.TurnDirection, ignoreConflict bool, reason types.CompleteReason) int {
	m := am.mappings.Mapping(turn)
	other := am.mappings.Mapping(turn.Opposite())
	if m == nil {
		return 0
	}

	var ids []string
	for _, p := range m.PendingEntries() {
		ids = append(ids, p.ID())
	}

	applied := 0
	for _, id := range ids {
		pair, ok := m.Pending(id)
		if !ok {
			continue
		}
		if ignoreConflict && pair.Result.IsConflictPoint() {
			continue
		}
		actionType := types.ActionAcceptCurrent
		if pair.Result.IsMerge() {
			if sibling, ok := other.Lookup(id); ok && sibling.IsComplete() {
				actionType = types.ActionAppend
			}
		}
		if am.Handle(Action{Type: actionType, Range: pair.Side, Reason: reason}).Applied {
			applied++
		}
	}
	return applied
}

package engine

import (
	"mergetab/logger"
	"mergetab/types"
)

// BlockState is the resolution state of one block
type BlockState int

const (
	BlockPending BlockState = iota
	BlockAcceptedCurrent
	BlockAcceptedIncoming
	BlockCombined
	BlockIgnored
	BlockAIResolved
)

// String returns a human-readable name for the state
func (s BlockState) String() string {
	switch s {
	case BlockPending:
		return "Pending"
	case BlockAcceptedCurrent:
		return "AcceptedCurrent"
	case BlockAcceptedIncoming:
		return "AcceptedIncoming"
	case BlockCombined:
		return "Combined"
	case BlockIgnored:
		return "Ignored"
	case BlockAIResolved:
		return "AIResolved"
	default:
		return "Unknown"
	}
}

// Transition represents a valid action on a block in a given state
type Transition struct {
	From   BlockState
	Action types.ActionType
	Run    func(*ActionsManager, Action) Outcome
}

// transitions defines every action a block accepts per state.
//
// Block State Overview:
//
//	BlockPending
//	├─[AcceptCurrent]──► BlockAcceptedCurrent / BlockAcceptedIncoming
//	├─[Append]──► BlockAcceptedCurrent / BlockAcceptedIncoming, or BlockCombined once both sides are in
//	├─[Ignore]──► BlockIgnored
//	├─[AcceptCombination]──► BlockCombined
//	└─[AIResolve / AIResolveRegenerate]──► reply ──► BlockAIResolved
//	                                       └─ cancel or error ──► BlockPending
//
//	BlockAcceptedCurrent / BlockAcceptedIncoming / BlockIgnored
//	├─[AcceptCurrent / Append / Ignore]──► the other side of a combined block
//	└─[Revoke]──► BlockPending
//
//	BlockCombined ─[Revoke]──► BlockPending
//	BlockAIResolved ─[Revoke]──► BlockPending, ─[AIResolveRegenerate]──► BlockAIResolved
var transitions = []Transition{
	// From BlockPending
	{BlockPending, types.ActionAcceptCurrent, (*ActionsManager).doAccept},
	{BlockPending, types.ActionAppend, (*ActionsManager).doAppend},
	{BlockPending, types.ActionIgnore, (*ActionsManager).doIgnore},
	{BlockPending, types.ActionAcceptCombination, (*ActionsManager).doAcceptCombination},
	{BlockPending, types.ActionAIResolve, (*ActionsManager).doAIResolve},
	{BlockPending, types.ActionAIResolveRegenerate, (*ActionsManager).doAIResolve},

	// From BlockAcceptedCurrent
	{BlockAcceptedCurrent, types.ActionAcceptCurrent, (*ActionsManager).doAccept},
	{BlockAcceptedCurrent, types.ActionAppend, (*ActionsManager).doAppend},
	{BlockAcceptedCurrent, types.ActionIgnore, (*ActionsManager).doIgnore},
	{BlockAcceptedCurrent, types.ActionRevoke, (*ActionsManager).doRevoke},

	// From BlockAcceptedIncoming
	{BlockAcceptedIncoming, types.ActionAcceptCurrent, (*ActionsManager).doAccept},
	{BlockAcceptedIncoming, types.ActionAppend, (*ActionsManager).doAppend},
	{BlockAcceptedIncoming, types.ActionIgnore, (*ActionsManager).doIgnore},
	{BlockAcceptedIncoming, types.ActionRevoke, (*ActionsManager).doRevoke},

	// From BlockIgnored
	{BlockIgnored, types.ActionAcceptCurrent, (*ActionsManager).doAccept},
	{BlockIgnored, types.ActionAppend, (*ActionsManager).doAppend},
	{BlockIgnored, types.ActionIgnore, (*ActionsManager).doIgnore},
	{BlockIgnored, types.ActionRevoke, (*ActionsManager).doRevoke},

	// From BlockCombined
	{BlockCombined, types.ActionRevoke, (*ActionsManager).doRevoke},

	// From BlockAIResolved
	{BlockAIResolved, types.ActionRevoke, (*ActionsManager).doRevoke},
	{BlockAIResolved, types.ActionAIResolveRegenerate, (*ActionsManager).doAIResolve},
}

type transitionKey struct {
	from   BlockState
	action types.ActionType
}

var transitionMap map[transitionKey]*Transition

func init() {
	transitionMap = make(map[transitionKey]*Transition)
	for i := range transitions {
		t := &transitions[i]
		transitionMap[transitionKey{from: t.From, action: t.Action}] = t
	}
}

// findTransition returns the transition for the given state and action, or nil
func findTransition(from BlockState, action types.ActionType) *Transition {
	return transitionMap[transitionKey{from: from, action: action}]
}

// dispatch runs the transition for action on the block's current state
func (am *ActionsManager) dispatch(action Action) Outcome {
	from := am.State(action.Range.ID())
	t := findTransition(from, action.Type)
	if t == nil {
		logger.Debug("actions: no transition for %s from %s on %s", action.Type, from, action.Range.ID())
		return am.stale(action)
	}
	return t.Run(am, action)
}

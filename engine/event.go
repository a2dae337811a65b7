package engine

import "mergetab/types"

// EventType represents the type of event in the engine
type EventType string

// Event type constants
const (
	EventOpen          EventType = "open"
	EventCompare       EventType = "compare"
	EventAction        EventType = "action"
	EventResultChanged EventType = "result_changed"
	EventAIReply       EventType = "ai_reply"
	EventAcceptAll     EventType = "accept_all"
	EventResolveAllAI  EventType = "resolve_all_ai"
	EventStopAI        EventType = "stop_ai"
	EventStop          EventType = "stop"
)

// Event represents an event in the engine
type Event struct {
	Type EventType
	Data any
}

var eventTypeMap map[string]EventType

func init() {
	eventTypeMap = make(map[string]EventType)
	for _, t := range []EventType{
		EventOpen,
		EventCompare,
		EventAction,
		EventResultChanged,
		EventAIReply,
		EventAcceptAll,
		EventResolveAllAI,
		EventStopAI,
		EventStop,
	} {
		eventTypeMap[string(t)] = t
	}
}

// EventTypeFromString converts a string to EventType
func EventTypeFromString(s string) EventType {
	if eventType, exists := eventTypeMap[s]; exists {
		return eventType
	}
	return ""
}

// ActionRequest is the payload of EventAction. View is the document the user
// acted from; TurnBoth means the result.
type ActionRequest struct {
	Type types.ActionType
	ID   string
	View types.TurnDirection
}

// AcceptAllRequest is the payload of EventAcceptAll
type AcceptAllRequest struct {
	View           types.TurnDirection
	IgnoreConflict bool
}

type aiReply struct {
	pending *PendingResolve
	reply   types.Reply
}

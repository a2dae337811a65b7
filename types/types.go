package types

// TurnDirection identifies which side a tracked range originated from
type TurnDirection int

const (
	TurnCurrent TurnDirection = iota
	TurnIncoming
	TurnBoth // only produced by block combination
)

func (d TurnDirection) String() string {
	switch d {
	case TurnCurrent:
		return "current"
	case TurnIncoming:
		return "incoming"
	case TurnBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Opposite returns the other side. TurnBoth has no opposite and maps to itself.
func (d TurnDirection) Opposite() TurnDirection {
	switch d {
	case TurnCurrent:
		return TurnIncoming
	case TurnIncoming:
		return TurnCurrent
	default:
		return d
	}
}

// ParseTurnDirection maps the names used on the RPC surface to a direction.
// "result" is accepted as an alias for both.
func ParseTurnDirection(s string) (TurnDirection, bool) {
	switch s {
	case "current", "ours":
		return TurnCurrent, true
	case "incoming", "theirs":
		return TurnIncoming, true
	case "both", "result":
		return TurnBoth, true
	}
	return TurnCurrent, false
}

// RangeType tags a range relative to its counterpart on the other document
type RangeType int

const (
	RangeModify RangeType = iota
	RangeInsert           // empty here, non-empty on the other document
	RangeRemove           // non-empty here, empty on the other document
)

func (t RangeType) String() string {
	switch t {
	case RangeInsert:
		return "insert"
	case RangeRemove:
		return "remove"
	default:
		return "modify"
	}
}

// CompleteReason records how a block was resolved
type CompleteReason string

const (
	ReasonNone                 CompleteReason = ""
	ReasonUserManual           CompleteReason = "user_manual"
	ReasonCombination          CompleteReason = "combination"
	ReasonAIResolved           CompleteReason = "ai_resolved"
	ReasonAutoResolved         CompleteReason = "auto_resolved_non_conflict"
	ReasonAutoResolvedBeforeAI CompleteReason = "auto_resolved_non_conflict_before_ai"
	ReasonIgnored              CompleteReason = "ignored"
)

// ActionType names a conflict action
type ActionType string

const (
	// ActionAcceptCurrent accepts the side the acting range belongs to.
	ActionAcceptCurrent       ActionType = "accept_current"
	ActionAppend              ActionType = "append"
	ActionIgnore              ActionType = "ignore"
	ActionRevoke              ActionType = "revoke"
	ActionAcceptCombination   ActionType = "accept_combination"
	ActionAIResolve           ActionType = "ai_resolve"
	ActionAIResolveRegenerate ActionType = "ai_resolve_regenerate"
)

// LineInterval is a half-open, 1-indexed line span [Start, End)
type LineInterval struct {
	Start int
	End   int
}

func (i LineInterval) Length() int {
	if i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

func (i LineInterval) IsEmpty() bool { return i.End <= i.Start }

// LineRangeMapping is one hunk produced by the line diff. Original spans the
// side document, Modified spans the result document.
type LineRangeMapping struct {
	Original LineInterval
	Modified LineInterval
}

// Edit replaces the lines in Range with Text. A nil Text deletes them.
type Edit struct {
	Range LineInterval
	Text  *string
}

// ContentChange is one change in a document, expressed the way editors report
// it: the replaced span runs from (StartLine, col) to (EndLine, col), both
// 1-indexed and inclusive, and Text is what was written in its place.
type ContentChange struct {
	StartLine int
	EndLine   int
	Text      string
}

// ContentChangeEvent groups the changes of a single editor transaction
type ContentChangeEvent struct {
	Changes []ContentChange
	EOL     string
}

// ResolveRequest carries everything the AI resolver needs for one block
type ResolveRequest struct {
	ID         string
	FilePath   string
	Base       string
	Current    string
	Incoming   string
	Result     string // previous answer, set on regenerate
	Regenerate bool
	Context    *ContextResult
}

// ContextResult holds optional prompt context gathered around a block
type ContextResult struct {
	Before   []string
	After    []string
	Symbols  []string
	Branches *BranchContext
}

// BranchContext describes the two commits being merged
type BranchContext struct {
	Ours   string
	Theirs string
}

// ReplyKind discriminates a Reply
type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyCancel
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyText:
		return "text"
	case ReplyCancel:
		return "cancel"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// Reply is the outcome of an AI resolution: text, cancellation, or error
type Reply struct {
	Kind    ReplyKind
	Text    string
	Code    int
	Message string
}

func TextReply(text string) Reply { return Reply{Kind: ReplyText, Text: text} }

func CancelReply() Reply { return Reply{Kind: ReplyCancel} }

func ErrorReply(code int, message string) Reply {
	return Reply{Kind: ReplyError, Code: code, Message: message}
}

// ProviderType represents the type of resolver transport
type ProviderType string

const (
	ProviderTypeCompletion ProviderType = "completion"
	ProviderTypeChat       ProviderType = "chat"
)

// ProviderConfig holds configuration for resolver providers
type ProviderConfig struct {
	ProviderURL         string  // Base URL of the model server
	APIKey              string  // Resolved API key for authenticated requests
	ProviderModel       string  // Model name
	ProviderTemperature float64 // Sampling temperature
	ProviderMaxTokens   int     // Max tokens to generate (also drives input trimming)
	CompletionPath      string  // API endpoint path for the completion transport
	CompletionTimeout   int     // Timeout for resolve requests in milliseconds
	Streaming           bool    // Stream completion tokens and stop at the line cap
	Compress            bool    // Brotli-compress request bodies
}

package engine

import (
	"context"
	"time"

	"mergetab/types"
)

// Editor is the adapter the engine drives for each of the three documents.
// Line numbers are 1-indexed and intervals half-open.
type Editor interface {
	// GetText returns the lines of r joined by EOL, without a trailing break.
	GetText(r types.LineInterval) string
	// Lines returns a snapshot of the whole document.
	Lines() []string
	// ApplyEdits applies line edits in one transaction. A nil text deletes.
	ApplyEdits(edits []types.Edit) error
	EOL() string
	LineCount() int
}

// Resolver answers an AI resolution request. Implementations must observe
// ctx and report cancellation as a cancel reply rather than an error.
type Resolver interface {
	Resolve(ctx context.Context, req *types.ResolveRequest) types.Reply
}

// ContextGatherer collects optional prompt context for a block
type ContextGatherer interface {
	Gather(ctx context.Context, req *GatherRequest) *types.ContextResult
}

// GatherRequest is the snapshot handed to a ContextGatherer. It is taken on
// the event loop so gathering can run off it.
type GatherRequest struct {
	FilePath string
	RepoPath string
	Result   []string
	Focus    types.LineInterval
	Base     []string
	Current  []string
	Incoming []string
}

// Renderer receives the block decorations after every mutation
type Renderer interface {
	Render(decorations Decorations, summary Summary)
}

// Documents names the three editors of a merge session
type Documents struct {
	Current  Editor
	Result   Editor
	Incoming Editor
	FilePath string
	RepoPath string
}

func (d Documents) editor(turn types.TurnDirection) Editor {
	switch turn {
	case types.TurnCurrent:
		return d.Current
	case types.TurnIncoming:
		return d.Incoming
	default:
		return d.Result
	}
}

// EngineConfig holds configuration for the engine
type EngineConfig struct {
	AutoApplyNonConflict bool          // Accept non-conflicting blocks on first compare
	ContextLines         int           // Result lines gathered around a block for AI context
	ResolveTimeout       time.Duration // Deadline for one AI resolution (0 = none)
	GatherTimeout        time.Duration // Deadline for context gathering
}

// Decoration describes one block for rendering
type Decoration struct {
	ID               string
	Range            types.LineInterval
	Turn             types.TurnDirection
	Type             types.RangeType
	State            BlockState
	Complete         bool
	Conflict         bool
	AllowCombination bool
	Loading          bool
}

// Decorations groups the blocks of each view
type Decorations struct {
	Result   []Decoration
	Current  []Decoration
	Incoming []Decoration
}

// Summary counts blocks for the status line and the session report
type Summary struct {
	Total                 int
	Resolved              int
	ConflictPoints        int
	ResolvedConflicts     int
	AIResolved            int
	AIAnswersKept         int
	PendingCurrent        int
	PendingIncoming       int
	PendingConflictPoints int
}

// CompleteSituation reports whether every block is resolved
func (s Summary) CompleteSituation() bool { return s.Total == s.Resolved }

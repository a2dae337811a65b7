package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"mergetab/text"
	"mergetab/types"
)

// --- Mock implementations ---

// mockEditor implements the Editor interface over an in-memory line slice
type mockEditor struct {
	mu    sync.Mutex
	lines []string
	eol   string

	// Track method calls
	applyCalls int
	failApply  bool
}

func newMockEditor(content string) *mockEditor {
	return &mockEditor{lines: strings.Split(content, "\n"), eol: "\n"}
}

func (m *mockEditor) GetText(r types.LineInterval) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.IsEmpty() {
		return ""
	}
	return strings.Join(m.lines[r.Start-1:r.End-1], m.eol)
}

func (m *mockEditor) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *mockEditor) ApplyEdits(edits []types.Edit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.failApply {
		return errors.New("mock apply failure")
	}

	sorted := make([]types.Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Range.Start > sorted[j].Range.Start
	})
	for _, e := range sorted {
		replacement := text.LinesOf(e.Text, m.eol)
		next := make([]string, 0, len(m.lines)+len(replacement))
		next = append(next, m.lines[:e.Range.Start-1]...)
		next = append(next, replacement...)
		next = append(next, m.lines[e.Range.End-1:]...)
		m.lines = next
	}
	if len(m.lines) == 0 {
		m.lines = []string{""}
	}
	return nil
}

func (m *mockEditor) EOL() string { return m.eol }

func (m *mockEditor) LineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

func (m *mockEditor) text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.lines, m.eol)
}

// mockResolver implements Resolver for testing
type mockResolver struct {
	mu       sync.Mutex
	replies  []types.Reply
	requests []types.ResolveRequest

	// block, when set, makes Resolve wait for a value or cancellation
	block chan types.Reply
}

func newMockResolver(replies ...types.Reply) *mockResolver {
	return &mockResolver{replies: replies}
}

func (r *mockResolver) Resolve(ctx context.Context, req *types.ResolveRequest) types.Reply {
	r.mu.Lock()
	r.requests = append(r.requests, *req)
	block := r.block
	var reply types.Reply
	if len(r.replies) > 0 {
		reply = r.replies[0]
		r.replies = r.replies[1:]
	} else {
		reply = types.ErrorReply(1, "no reply queued")
	}
	r.mu.Unlock()

	if block != nil {
		select {
		case reply = <-block:
		case <-ctx.Done():
			return types.CancelReply()
		}
	}
	if ctx.Err() != nil {
		return types.CancelReply()
	}
	return reply
}

func (r *mockResolver) lastRequest() types.ResolveRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func (r *mockResolver) requestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// mockRenderer records every render
type mockRenderer struct {
	summaries chan Summary
	last      Decorations
	mu        sync.Mutex
}

func newMockRenderer() *mockRenderer {
	return &mockRenderer{summaries: make(chan Summary, 100)}
}

func (r *mockRenderer) Render(d Decorations, s Summary) {
	r.mu.Lock()
	r.last = d
	r.mu.Unlock()
	select {
	case r.summaries <- s:
	default:
	}
}

// mockGatherer returns a fixed context
type mockGatherer struct {
	result *types.ContextResult
	seen   *GatherRequest
}

func (g *mockGatherer) Gather(_ context.Context, req *GatherRequest) *types.ContextResult {
	g.seen = req
	return g.result
}

// --- Fixtures ---

type fixture struct {
	engine   *Engine
	current  *mockEditor
	result   *mockEditor
	incoming *mockEditor
	resolver *mockResolver
}

func newFixture(current, result, incoming string, config EngineConfig, replies ...types.Reply) *fixture {
	f := &fixture{
		current:  newMockEditor(current),
		result:   newMockEditor(result),
		incoming: newMockEditor(incoming),
		resolver: newMockResolver(replies...),
	}
	f.engine = NewEngine(f.resolver, config)
	f.engine.Open(Documents{
		Current:  f.current,
		Result:   f.result,
		Incoming: f.incoming,
		FilePath: "main.go",
	})
	return f
}

// blocks returns the result block ids in document order
func (f *fixture) blocks() []string {
	var ids []string
	for _, r := range f.engine.Mappings().ResultRanges() {
		ids = append(ids, r.ID())
	}
	return ids
}

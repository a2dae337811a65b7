package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetab/types"
)

const (
	conflictCurrent  = "x\nc1\ny"
	conflictBase     = "x\nb\ny"
	conflictIncoming = "x\ni1\ny"
)

func TestAIResolve_SplicesAnswer(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	id := f.blocks()[0]

	out := f.engine.Dispatch(context.Background(), types.ActionAIResolve, id, types.TurnBoth)
	require.True(t, out.Applied)
	assert.Equal(t, BlockAIResolved, out.State)
	require.NotNil(t, out.Reply)
	assert.Equal(t, types.ReplyText, out.Reply.Kind)
	assert.Equal(t, "x\nmerged\ny", f.result.text())

	req := f.resolver.lastRequest()
	assert.Equal(t, "b", req.Base)
	assert.Equal(t, "c1", req.Current)
	assert.Equal(t, "i1", req.Incoming)
	assert.Equal(t, "main.go", req.FilePath)
	assert.False(t, req.Regenerate)
	assert.Empty(t, req.Result)

	cur, inc := f.engine.Mappings().Lookup(id)
	assert.Equal(t, types.ReasonAIResolved, cur.Side.CompleteReason())
	assert.Equal(t, types.ReasonAIResolved, inc.Side.CompleteReason())
	assert.False(t, f.engine.Actions().IsLoading(id))

	s := f.engine.Summary()
	assert.Equal(t, 1, s.AIResolved)
	assert.Equal(t, 1, s.AIAnswersKept)
	assert.True(t, s.CompleteSituation())
}

func TestAIResolve_MultiLineAnswerReshapes(t *testing.T) {
	f := compared(t,
		"x\nc1\ny\nm\nz",
		"x\nb\ny\nm\nz",
		"x\ni1\ny\nM\nz",
		EngineConfig{}, types.TextReply("l1\nl2\nl3"))
	ids := f.blocks()
	require.Len(t, ids, 2)

	require.True(t, f.engine.Dispatch(context.Background(), types.ActionAIResolve, ids[0], types.TurnBoth).Applied)
	assert.Equal(t, "x\nl1\nl2\nl3\ny\nm\nz", f.result.text())

	r, _ := f.engine.Mappings().FindResult(ids[0])
	assert.Equal(t, types.LineInterval{Start: 2, End: 5}, r.Interval())
	next, _ := f.engine.Mappings().FindResult(ids[1])
	assert.Equal(t, types.LineInterval{Start: 6, End: 7}, next.Interval())
}

func TestAIResolve_ErrorLeavesDocument(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.ErrorReply(2, "conflict markers left"))
	id := f.blocks()[0]

	out := f.engine.Dispatch(context.Background(), types.ActionAIResolve, id, types.TurnBoth)
	assert.False(t, out.Applied)
	require.NotNil(t, out.Reply)
	assert.Equal(t, types.ReplyError, out.Reply.Kind)
	assert.Equal(t, 2, out.Reply.Code)
	assert.Equal(t, BlockPending, out.State)
	assert.Equal(t, conflictBase, f.result.text())
	assert.False(t, f.engine.Actions().IsLoading(id))
}

func TestAIResolve_CancelledContext(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	id := f.blocks()[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.engine.Dispatch(ctx, types.ActionAIResolve, id, types.TurnBoth)
	assert.False(t, out.Applied)
	require.NotNil(t, out.Reply)
	assert.Equal(t, types.ReplyCancel, out.Reply.Kind)
	assert.Equal(t, conflictBase, f.result.text())
}

func TestAIResolve_NoResolver(t *testing.T) {
	f := &fixture{
		current:  newMockEditor(conflictCurrent),
		result:   newMockEditor(conflictBase),
		incoming: newMockEditor(conflictIncoming),
	}
	f.engine = NewEngine(nil, EngineConfig{})
	f.engine.Open(Documents{Current: f.current, Result: f.result, Incoming: f.incoming})
	require.NoError(t, f.engine.Compare(context.Background()))

	out := f.engine.Dispatch(context.Background(), types.ActionAIResolve, f.blocks()[0], types.TurnBoth)
	assert.False(t, out.Applied)
	require.NotNil(t, out.Reply)
	assert.Equal(t, types.ReplyError, out.Reply.Kind)
}

func TestAIResolve_NewRequestSupersedesPrevious(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{})
	id := f.blocks()[0]
	am := f.engine.Actions()
	r, _ := f.engine.Mappings().FindResult(id)

	first := am.Handle(Action{Type: types.ActionAIResolve, Range: r})
	require.NotNil(t, first.Pending)
	assert.True(t, am.IsLoading(id))

	second := am.Handle(Action{Type: types.ActionAIResolve, Range: r})
	require.NotNil(t, second.Pending)
	assert.Greater(t, second.Pending.Generation, first.Pending.Generation)
	assert.Error(t, first.Pending.ctx.Err(), "superseded request is cancelled")

	stale := am.FinishAIResolve(first.Pending, types.TextReply("old"))
	assert.False(t, stale.Applied)
	assert.Equal(t, conflictBase, f.result.text())
	assert.True(t, am.IsLoading(id), "latest request still running")

	latest := am.FinishAIResolve(second.Pending, types.TextReply("new"))
	require.True(t, latest.Applied)
	assert.Equal(t, "x\nnew\ny", f.result.text())
	assert.False(t, am.IsLoading(id))
}

func TestAIResolve_RegenerateSendsPreviousAnswer(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{},
		types.TextReply("first"), types.TextReply("second\nline"))
	id := f.blocks()[0]
	ctx := context.Background()

	require.True(t, f.engine.Dispatch(ctx, types.ActionAIResolve, id, types.TurnBoth).Applied)
	assert.False(t, f.engine.Dispatch(ctx, types.ActionAIResolve, id, types.TurnBoth).Applied, "plain resolve needs a pending block")

	out := f.engine.Dispatch(ctx, types.ActionAIResolveRegenerate, id, types.TurnBoth)
	require.True(t, out.Applied)
	assert.Equal(t, BlockAIResolved, out.State)
	assert.Equal(t, "x\nsecond\nline\ny", f.result.text())

	req := f.resolver.lastRequest()
	assert.True(t, req.Regenerate)
	assert.Equal(t, "first", req.Result)
	assert.Equal(t, "b", req.Base, "base still comes from the snapshot")

	answer, ok := f.engine.Actions().Answer(id)
	require.True(t, ok)
	assert.Equal(t, "second\nline", answer)
}

func TestAIResolve_RevokeRestoresBase(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	id := f.blocks()[0]
	ctx := context.Background()

	require.True(t, f.engine.Dispatch(ctx, types.ActionAIResolve, id, types.TurnBoth).Applied)
	require.True(t, f.engine.Dispatch(ctx, types.ActionRevoke, id, types.TurnBoth).Applied)

	assert.Equal(t, conflictBase, f.result.text())
	_, ok := f.engine.Actions().Answer(id)
	assert.False(t, ok, "ai state cleared")
	assert.Equal(t, BlockPending, f.engine.Actions().State(id))
}

func TestAIResolve_AnswerEditedIsNotKept(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	id := f.blocks()[0]
	require.True(t, f.engine.Dispatch(context.Background(), types.ActionAIResolve, id, types.TurnBoth).Applied)

	// the user rewrites the answer line in place
	f.result.lines[1] = "tweaked"

	s := f.engine.Summary()
	assert.Equal(t, 1, s.AIResolved)
	assert.Equal(t, 0, s.AIAnswersKept)
}

func TestAIResolve_GathersContext(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	g := &mockGatherer{result: &types.ContextResult{Symbols: []string{"func a()"}}}
	f.engine.SetGatherer(g)

	require.True(t, f.engine.Dispatch(context.Background(), types.ActionAIResolve, f.blocks()[0], types.TurnBoth).Applied)

	require.NotNil(t, g.seen)
	assert.Equal(t, types.LineInterval{Start: 2, End: 3}, g.seen.Focus)
	assert.Equal(t, []string{"c1"}, g.seen.Current)
	assert.Equal(t, []string{"i1"}, g.seen.Incoming)
	assert.Equal(t, []string{"b"}, g.seen.Base)

	req := f.resolver.lastRequest()
	require.NotNil(t, req.Context)
	assert.Equal(t, []string{"func a()"}, req.Context.Symbols)
}

func TestResolveAllWithAI(t *testing.T) {
	f := compared(t,
		"x\nc1\ny\nM\nk\nn\nz",
		"x\nb\ny\nm\nk\nn\nz",
		"x\ni1\ny\nm\nk\nN\nz",
		EngineConfig{}, types.TextReply("merged"))

	n := f.engine.ResolveAllWithAI(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, "x\nmerged\ny\nM\nk\nN\nz", f.result.text())
	assert.Equal(t, 1, f.resolver.requestCount(), "only conflict points reach the resolver")

	s := f.engine.Summary()
	assert.True(t, s.CompleteSituation())
	for _, r := range f.engine.Mappings().ResultRanges() {
		if !r.IsConflictPoint() {
			assert.Equal(t, types.ReasonAutoResolvedBeforeAI, r.CompleteReason())
		}
	}
}

func TestResolveAllWithAI_StopsWhenCancelled(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, 0, f.engine.ResolveAllWithAI(ctx))
	assert.Equal(t, 0, f.resolver.requestCount())
	assert.Equal(t, conflictBase, f.result.text())
}

func TestEventLoop_AIResolveRunsInBackground(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{})
	f.resolver.block = make(chan types.Reply)
	renderer := newMockRenderer()
	f.engine.SetRenderer(renderer)
	id := f.blocks()[0]

	f.engine.Start(context.Background())
	defer f.engine.Stop()

	require.True(t, f.engine.Post(Event{Type: EventAction, Data: ActionRequest{Type: types.ActionAIResolve, ID: id, View: types.TurnBoth}}))

	// the loop is free while the resolver works
	waitFor(t, func() bool { return f.resolver.requestCount() == 1 })
	f.resolver.block <- types.TextReply("merged")

	waitForSummary(t, renderer, func(s Summary) bool { return s.AIResolved == 1 })
	assert.Equal(t, "x\nmerged\ny", f.result.text())
}

func TestCancelAll_CancelsInFlightRequests(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{}, types.TextReply("merged"))
	id := f.blocks()[0]
	am := f.engine.Actions()
	r, _ := f.engine.Mappings().FindResult(id)

	out := am.Handle(Action{Type: types.ActionAIResolve, Range: r})
	require.NotNil(t, out.Pending)
	assert.Equal(t, 1, am.CancelAll())

	reply := am.execute(out.Pending)
	assert.Equal(t, types.ReplyCancel, reply.Kind)

	done := am.FinishAIResolve(out.Pending, reply)
	assert.False(t, done.Applied)
	assert.False(t, am.IsLoading(id))
	assert.Equal(t, BlockPending, am.State(id))
	assert.Equal(t, conflictBase, f.result.text())
}

func TestResolveTimeout(t *testing.T) {
	f := compared(t, conflictCurrent, conflictBase, conflictIncoming, EngineConfig{ResolveTimeout: 10 * time.Millisecond})
	f.resolver.block = make(chan types.Reply)

	out := f.engine.Dispatch(context.Background(), types.ActionAIResolve, f.blocks()[0], types.TurnBoth)
	assert.False(t, out.Applied)
	require.NotNil(t, out.Reply)
	assert.Equal(t, types.ReplyError, out.Reply.Kind)
	assert.Equal(t, conflictBase, f.result.text())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func waitForSummary(t *testing.T, r *mockRenderer, cond func(Summary) bool) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.summaries:
			if cond(s) {
				return
			}
		case <-timeout:
			t.Fatal("summary not rendered in time")
		}
	}
}

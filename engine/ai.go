package engine

import (
	"context"
	"errors"
	"time"

	"mergetab/linerange"
	"mergetab/logger"
	"mergetab/mapping"
	"mergetab/text"
	"mergetab/types"
)

const (
	defaultContextLines  = 20
	defaultGatherTimeout = 200 * time.Millisecond
)

// ErrorCodeUnavailable is the reply code used when no answer could be obtained
const ErrorCodeUnavailable = 1

// doAIResolve registers a request for the block and prepares its payload. The
// request itself runs later, off the event loop.
func (am *ActionsManager) doAIResolve(a Action) Outcome {
	id := a.Range.ID()
	result, ok := am.mappings.FindResult(id)
	if !ok {
		return am.stale(a)
	}
	cur, inc := am.mappings.Lookup(id)
	regenerate := a.Type == types.ActionAIResolveRegenerate
	anyPending := (cur != nil && !cur.IsComplete()) || (inc != nil && !inc.IsComplete())
	if !anyPending && !regenerate {
		return am.stale(a)
	}
	if am.resolver == nil {
		reply := types.ErrorReply(ErrorCodeUnavailable, "no resolver configured")
		out := am.stale(a)
		out.Reply = &reply
		return out
	}

	req := &types.ResolveRequest{
		ID:         id,
		FilePath:   am.docs.FilePath,
		Regenerate: regenerate,
	}
	gather := &GatherRequest{
		FilePath: am.docs.FilePath,
		RepoPath: am.docs.RepoPath,
		Result:   am.docs.Result.Lines(),
		Focus:    result.Interval(),
	}
	if snap, ok := am.timeMachine.Get(id); ok && snap.Text != nil {
		req.Base = *snap.Text
		gather.Base = text.SplitLines(*snap.Text, am.docs.Result.EOL())
	}
	if cur != nil {
		gather.Current = am.sideLines(types.TurnCurrent, cur.Side.Interval())
		req.Current = text.JoinLines(gather.Current, text.EOLLF)
	}
	if inc != nil {
		gather.Incoming = am.sideLines(types.TurnIncoming, inc.Side.Interval())
		req.Incoming = text.JoinLines(gather.Incoming, text.EOLLF)
	}
	if regenerate && !result.IsEmpty() {
		req.Result = am.docs.Result.GetText(result.Interval())
	}

	p := am.register(a, req, gather)

	st := am.aiState(id)
	st.loading = true
	logger.Info("actions: ai request %s gen %d (regenerate=%v)", id, p.Generation, regenerate)

	return Outcome{Action: a.Type, ID: id, Applied: true, State: am.State(id), Pending: p}
}

func (am *ActionsManager) aiState(id string) *aiState {
	st, ok := am.ai[id]
	if !ok {
		st = &aiState{}
		am.ai[id] = st
	}
	return st
}

// register cancels any in-flight request for the id and records a new one
func (am *ActionsManager) register(a Action, req *types.ResolveRequest, gather *GatherRequest) *PendingResolve {
	parent := a.Ctx
	if parent == nil {
		parent = context.Background()
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if am.config.ResolveTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, am.config.ResolveTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	am.inflightMu.Lock()
	defer am.inflightMu.Unlock()

	if prev, ok := am.inflight[req.ID]; ok {
		logger.Debug("actions: superseding ai request %s gen %d", req.ID, prev.Generation)
		prev.cancel()
	}
	am.generation++
	p := &PendingResolve{
		ID:         req.ID,
		Generation: am.generation,
		Action:     a.Type,
		Request:    req,
		gather:     gather,
		ctx:        ctx,
		cancel:     cancel,
	}
	am.inflight[req.ID] = p
	return p
}

// execute gathers context and calls the resolver. It only reads state owned
// by p, so it is safe to run off the event loop.
func (am *ActionsManager) execute(p *PendingResolve) types.Reply {
	defer logger.Trace("actions: ai resolve " + p.ID)()

	if am.gatherer != nil && p.gather != nil {
		gctx, cancel := context.WithTimeout(p.ctx, am.config.GatherTimeout)
		p.Request.Context = am.gatherer.Gather(gctx, p.gather)
		cancel()
	}

	reply := am.resolver.Resolve(p.ctx, p.Request)
	if err := p.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ErrorReply(ErrorCodeUnavailable, "resolve timed out")
		}
		return types.CancelReply()
	}
	return reply
}

// FinishAIResolve applies a reply on the event loop. Replies of a superseded
// generation are dropped. A text reply is spliced into the result like an
// accept and completes both sides; cancel and error replies only clear the
// loading flag.
func (am *ActionsManager) FinishAIResolve(p *PendingResolve, reply types.Reply) Outcome {
	out := Outcome{Action: p.Action, ID: p.ID, Reply: &reply}

	am.inflightMu.Lock()
	latest, ok := am.inflight[p.ID]
	if !ok || latest.Generation != p.Generation {
		am.inflightMu.Unlock()
		logger.Debug("actions: dropping stale ai reply %s gen %d", p.ID, p.Generation)
		out.State = am.State(p.ID)
		return out
	}
	delete(am.inflight, p.ID)
	am.inflightMu.Unlock()
	p.cancel()

	am.aiState(p.ID).loading = false

	switch reply.Kind {
	case types.ReplyText:
		return am.spliceAnswer(p, reply)
	case types.ReplyCancel:
		logger.Info("actions: ai request %s cancelled", p.ID)
	default:
		logger.Warn("actions: ai request %s failed (%d): %s", p.ID, reply.Code, reply.Message)
	}
	out.State = am.State(p.ID)
	return out
}

func (am *ActionsManager) spliceAnswer(p *PendingResolve, reply types.Reply) Outcome {
	a := Action{Type: p.Action, Range: linerange.New(0, 0).WithID(p.ID)}
	result, ok := am.mappings.FindResult(p.ID)
	if !ok {
		return am.stale(a)
	}
	cur, inc := am.mappings.Lookup(p.ID)
	anyPending := (cur != nil && !cur.IsComplete()) || (inc != nil && !inc.IsComplete())
	if !anyPending && am.State(p.ID) != BlockAIResolved {
		logger.Debug("actions: block %s resolved while ai was running", p.ID)
		return am.stale(a)
	}

	lines := text.SplitLines(reply.Text, "")
	answer := am.resultText(lines)
	if !am.applyResult(types.Edit{Range: result.Interval(), Text: answer}) {
		return am.stale(a)
	}
	am.mappings.Reshape(result, result.Resize(len(lines)))
	for _, pair := range []*mapping.Pair{cur, inc} {
		if pair != nil && !pair.IsComplete() {
			am.mappings.MarkComplete(pair.Side, true, types.ReasonAIResolved)
		}
	}
	am.aiState(p.ID).answer = answer

	out := am.settle(a, BlockAIResolved)
	out.Reply = &reply
	return out
}

// ResolveAI runs an AI action to completion on the calling goroutine
func (am *ActionsManager) ResolveAI(ctx context.Context, r linerange.LineRange, regenerate bool) Outcome {
	actionType := types.ActionAIResolve
	if regenerate {
		actionType = types.ActionAIResolveRegenerate
	}
	out := am.Handle(Action{Type: actionType, Range: r, Ctx: ctx})
	if out.Pending == nil {
		return out
	}
	return am.FinishAIResolve(out.Pending, am.execute(out.Pending))
}

// CancelAI cancels the in-flight request for id. The reply still arrives and
// clears the loading state.
func (am *ActionsManager) CancelAI(id string) bool {
	am.inflightMu.Lock()
	defer am.inflightMu.Unlock()
	p, ok := am.inflight[id]
	if ok {
		p.cancel()
	}
	return ok
}

// CancelAll cancels every in-flight request. Safe from any goroutine.
func (am *ActionsManager) CancelAll() int {
	am.inflightMu.Lock()
	defer am.inflightMu.Unlock()
	for _, p := range am.inflight {
		p.cancel()
	}
	return len(am.inflight)
}

// clearAI forgets the request and answer of id. A late reply is dropped.
func (am *ActionsManager) clearAI(id string) {
	am.inflightMu.Lock()
	if p, ok := am.inflight[id]; ok {
		p.cancel()
		delete(am.inflight, id)
	}
	am.inflightMu.Unlock()
	delete(am.ai, id)
}

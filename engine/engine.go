package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"mergetab/linerange"
	"mergetab/logger"
	"mergetab/mapping"
	"mergetab/text"
	"mergetab/types"
)

// ErrNotOpen is returned when the engine has no documents
var ErrNotOpen = errors.New("engine: no documents open")

type Engine struct {
	config   EngineConfig
	resolver Resolver
	gatherer ContextGatherer
	renderer Renderer

	docs        Documents
	mappings    *mapping.Manager
	timeMachine *TimeMachine
	actions     *ActionsManager
	compared    bool

	mu        sync.Mutex
	eventChan chan Event

	// Main context and cancel for the engine lifecycle
	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once
}

func NewEngine(resolver Resolver, config EngineConfig) *Engine {
	e := &Engine{
		config:    config,
		resolver:  resolver,
		eventChan: make(chan Event, 100),
	}
	e.reset(Documents{})
	return e
}

func (e *Engine) SetGatherer(g ContextGatherer) {
	e.gatherer = g
	e.actions.SetGatherer(g)
}

func (e *Engine) SetRenderer(r Renderer) { e.renderer = r }

func (e *Engine) Mappings() *mapping.Manager { return e.mappings }
func (e *Engine) Actions() *ActionsManager { return e.actions }
func (e *Engine) TimeMachine() *TimeMachine { return e.timeMachine }
func (e *Engine) Documents() Documents { return e.docs }

// reset drops all merge state and binds the engine to docs
func (e *Engine) reset(docs Documents) {
	if e.actions != nil {
		e.actions.CancelAll()
	}
	e.docs = docs
	e.mappings = mapping.NewManager(
		mapping.NewDocumentMapping(types.TurnCurrent),
		mapping.NewDocumentMapping(types.TurnIncoming),
	)
	e.timeMachine = NewTimeMachine()
	e.actions = NewActionsManager(docs, e.mappings, e.timeMachine, e.resolver)
	e.actions.SetConfig(e.config)
	e.actions.SetGatherer(e.gatherer)
	e.compared = false
}

// Open starts a new merge session over docs
func (e *Engine) Open(docs Documents) {
	e.reset(docs)
	logger.Info("engine: opened %s", docs.FilePath)
}

func (e *Engine) isOpen() bool {
	return e.docs.Current != nil && e.docs.Result != nil && e.docs.Incoming != nil
}

// Compare diffs both sides against the result and ingests the hunks. The first
// compare of a session also combines touching blocks, snapshots every block
// for revoke and, when configured, accepts the non-conflicting ones.
func (e *Engine) Compare(ctx context.Context) error {
	if !e.isOpen() {
		return ErrNotOpen
	}
	defer logger.Trace("engine: compare")()

	result := e.docs.Result.Lines()
	current := e.docs.Current.Lines()
	incoming := e.docs.Incoming.Lines()

	var currentChanges, incomingChanges []types.LineRangeMapping
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		currentChanges = text.ComputeLineMappings(current, result)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		incomingChanges = text.ComputeLineMappings(incoming, result)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("compare %s: %w", e.docs.FilePath, err)
	}

	e.mappings.IngestCurrent(currentChanges)
	e.mappings.IngestIncoming(incomingChanges)

	if !e.compared {
		e.compared = true
		combined := combineTouching(e.mappings)
		e.recordSnapshots()
		logger.Info("engine: %d current, %d incoming hunks, %d combined",
			len(currentChanges), len(incomingChanges), combined)

		if e.config.AutoApplyNonConflict {
			n := e.actions.AcceptAll(types.TurnCurrent, true, types.ReasonAutoResolved)
			n += e.actions.AcceptAll(types.TurnIncoming, true, types.ReasonAutoResolved)
			logger.Info("engine: auto-applied %d non-conflicting blocks", n)
		}
	} else {
		e.recordSnapshots()
	}

	e.render()
	return nil
}

func (e *Engine) recordSnapshots() {
	for _, r := range e.mappings.ResultRanges() {
		var snapshot *string
		if !r.IsEmpty() {
			s := e.docs.Result.GetText(r.Interval())
			snapshot = &s
		}
		e.timeMachine.Record(r, snapshot)
	}
}

// rangeFor resolves the acting range of a block as seen from view
func (e *Engine) rangeFor(id string, view types.TurnDirection) (linerange.LineRange, bool) {
	if m := e.mappings.Mapping(view); m != nil {
		p, ok := m.Lookup(id)
		if !ok {
			return linerange.LineRange{}, false
		}
		return p.Side, true
	}
	return e.mappings.FindResult(id)
}

// Dispatch runs an action synchronously. AI actions block until the resolver
// answers or ctx is cancelled.
func (e *Engine) Dispatch(ctx context.Context, actionType types.ActionType, id string, view types.TurnDirection) Outcome {
	r, ok := e.rangeFor(id, view)
	if !ok {
		logger.Debug("engine: unknown block %s for %s", id, actionType)
		return Outcome{Action: actionType, ID: id}
	}

	var out Outcome
	switch actionType {
	case types.ActionAIResolve, types.ActionAIResolveRegenerate:
		out = e.actions.ResolveAI(ctx, r, actionType == types.ActionAIResolveRegenerate)
	default:
		out = e.actions.Handle(Action{Type: actionType, Range: r})
	}
	e.render()
	return out
}

// AcceptAll resolves every pending block of one side
func (e *Engine) AcceptAll(view types.TurnDirection, ignoreConflict bool) int {
	n := e.actions.AcceptAll(view, ignoreConflict, types.ReasonUserManual)
	e.render()
	return n
}

// ResolveAllWithAI accepts the non-conflicting blocks of both sides, then asks
// the resolver for each conflict point in order. It stops early when ctx is
// cancelled and returns the number of AI answers applied.
func (e *Engine) ResolveAllWithAI(ctx context.Context) int {
	e.actions.AcceptAll(types.TurnCurrent, true, types.ReasonAutoResolvedBeforeAI)
	e.actions.AcceptAll(types.TurnIncoming, true, types.ReasonAutoResolvedBeforeAI)

	resolved := 0
	for _, r := range e.pendingConflicts() {
		if ctx.Err() != nil {
			logger.Info("engine: resolve-all stopped")
			break
		}
		if e.actions.ResolveAI(ctx, r, false).Applied {
			resolved++
		}
		e.render()
	}
	e.render()
	return resolved
}

func (e *Engine) pendingConflicts() []linerange.LineRange {
	var out []linerange.LineRange
	for _, r := range e.mappings.ResultRanges() {
		if !r.IsComplete() && r.IsConflictPoint() {
			out = append(out, r)
		}
	}
	return out
}

// HandleResultChange keeps the mappings aligned with a user edit of the
// result document
func (e *Engine) HandleResultChange(ev types.ContentChangeEvent) {
	propagateResultChange(e.mappings, ev)
	e.render()
}

// Summary counts the blocks of the session
func (e *Engine) Summary() Summary {
	var s Summary
	for _, r := range e.mappings.ResultRanges() {
		s.Total++
		if r.IsComplete() {
			s.Resolved++
		}
		switch {
		case r.IsConflictPoint():
			s.ConflictPoints++
			if r.IsComplete() {
				s.ResolvedConflicts++
			} else {
				s.PendingConflictPoints++
			}
		case !r.IsComplete() && r.TurnDirection() == types.TurnCurrent:
			s.PendingCurrent++
		case !r.IsComplete() && r.TurnDirection() == types.TurnIncoming:
			s.PendingIncoming++
		}
		if e.actions.State(r.ID()) == BlockAIResolved {
			s.AIResolved++
			if answer, ok := e.actions.Answer(r.ID()); ok && e.textOf(r) == answer {
				s.AIAnswersKept++
			}
		}
	}
	return s
}

func (e *Engine) textOf(r linerange.LineRange) string {
	if r.IsEmpty() {
		return ""
	}
	return e.docs.Result.GetText(r.Interval())
}

// Navigate returns the start line of the next (or previous) pending block
// relative to line
func (e *Engine) Navigate(line int, forward bool) (int, bool) {
	var starts []int
	for _, r := range e.mappings.ResultRanges() {
		if !r.IsComplete() {
			starts = append(starts, r.Start())
		}
	}
	if forward {
		for _, s := range starts {
			if s > line {
				return s, true
			}
		}
		return 0, false
	}
	for i := len(starts) - 1; i >= 0; i-- {
		if starts[i] < line {
			return starts[i], true
		}
	}
	return 0, false
}

// Decorations describes every tracked block per view
func (e *Engine) Decorations() Decorations {
	var d Decorations
	for _, r := range e.mappings.ResultRanges() {
		d.Result = append(d.Result, e.decorate(r, r.IsComplete()))
	}
	for _, p := range e.mappings.Current().Entries() {
		d.Current = append(d.Current, e.decorate(p.Side, p.IsComplete()))
	}
	for _, p := range e.mappings.Incoming().Entries() {
		d.Incoming = append(d.Incoming, e.decorate(p.Side, p.IsComplete()))
	}
	return d
}

func (e *Engine) decorate(r linerange.LineRange, complete bool) Decoration {
	result, ok := e.mappings.FindResult(r.ID())
	if !ok {
		result = r
	}
	return Decoration{
		ID:               r.ID(),
		Range:            r.Interval(),
		Turn:             r.TurnDirection(),
		Type:             r.Type(),
		State:            e.actions.State(r.ID()),
		Complete:         complete,
		Conflict:         result.IsConflictPoint(),
		AllowCombination: result.IsAllowCombination(),
		Loading:          e.actions.IsLoading(r.ID()),
	}
}

func (e *Engine) render() {
	if e.renderer == nil || !e.isOpen() {
		return
	}
	e.renderer.Render(e.Decorations(), e.Summary())
}

func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.mainCtx, e.mainCancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go e.eventLoop(e.mainCtx)
	logger.Info("engine started")
}

// Stop cancels every AI request and ends the event loop
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		logger.Info("stopping engine...")
		e.stopped = true
		if n := e.actions.CancelAll(); n > 0 {
			logger.Info("cancelled %d ai requests", n)
		}
		if e.mainCancel != nil {
			e.mainCancel()
		}
		logger.Info("engine stopped")
	})
}

// Post queues an event for the loop. It returns false once the engine stopped.
func (e *Engine) Post(event Event) bool {
	e.mu.Lock()
	ctx := e.mainCtx
	stopped := e.stopped
	e.mu.Unlock()
	if stopped || ctx == nil {
		return false
	}

	select {
	case e.eventChan <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panic recovered: %v", r)
			e.eventLoop(e.mainCtx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-e.eventChan:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	logger.Debug("handle event: %s", event.Type)

	switch event.Type {
	case EventOpen:
		if docs, ok := event.Data.(Documents); ok {
			e.Open(docs)
			if err := e.Compare(e.mainCtx); err != nil {
				logger.Error("engine: %v", err)
			}
		}
	case EventCompare:
		if err := e.Compare(e.mainCtx); err != nil {
			logger.Error("engine: %v", err)
		}
	case EventAction:
		if req, ok := event.Data.(ActionRequest); ok {
			e.handleAction(req)
		}
	case EventResultChanged:
		if ev, ok := event.Data.(types.ContentChangeEvent); ok {
			e.HandleResultChange(ev)
		}
	case EventAIReply:
		if r, ok := event.Data.(aiReply); ok {
			e.actions.FinishAIResolve(r.pending, r.reply)
			e.render()
		}
	case EventAcceptAll:
		if req, ok := event.Data.(AcceptAllRequest); ok {
			e.AcceptAll(req.View, req.IgnoreConflict)
		}
	case EventResolveAllAI:
		e.resolveAllAsync()
	case EventStopAI:
		e.actions.CancelAll()
	case EventStop:
		go e.Stop()
	}
}

// handleAction runs an action on the loop. AI requests are started in the
// background and finish through EventAIReply.
func (e *Engine) handleAction(req ActionRequest) {
	r, ok := e.rangeFor(req.ID, req.View)
	if !ok {
		logger.Debug("engine: unknown block %s for %s", req.ID, req.Type)
		return
	}
	out := e.actions.Handle(Action{Type: req.Type, Range: r, Ctx: e.mainCtx})
	if out.Pending != nil {
		e.launchAI(out.Pending)
	}
	e.render()
}

func (e *Engine) resolveAllAsync() {
	e.actions.AcceptAll(types.TurnCurrent, true, types.ReasonAutoResolvedBeforeAI)
	e.actions.AcceptAll(types.TurnIncoming, true, types.ReasonAutoResolvedBeforeAI)
	for _, r := range e.pendingConflicts() {
		out := e.actions.Handle(Action{Type: types.ActionAIResolve, Range: r, Ctx: e.mainCtx})
		if out.Pending != nil {
			e.launchAI(out.Pending)
		}
	}
	e.render()
}

func (e *Engine) launchAI(p *PendingResolve) {
	am := e.actions
	go func() {
		reply := am.execute(p)
		select {
		case e.eventChan <- Event{Type: EventAIReply, Data: aiReply{pending: p, reply: reply}}:
		case <-e.mainCtx.Done():
		}
	}()
}

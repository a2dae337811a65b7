package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/neovim/go-client/nvim"

	"mergetab/buffer"
	"mergetab/ctx"
	"mergetab/engine"
	"mergetab/gitconflict"
	"mergetab/logger"
	"mergetab/metrics"
	"mergetab/types"
)

// Session binds one Neovim connection to a merge engine. A new mergetab_open
// replaces the previous merge.
type Session struct {
	client   *nvim.Nvim
	config   Config
	resolver engine.Resolver
	tracker  *metrics.Tracker

	mu       sync.Mutex
	engine   *engine.Engine
	renderer engine.Renderer
	buffers  map[nvim.Buffer]*buffer.NvimBuffer
	result   nvim.Buffer
	report   *metrics.Session

	summaryMu sync.Mutex
	summary   engine.Summary
}

func NewSession(client *nvim.Nvim, config Config, res engine.Resolver, tracker *metrics.Tracker) *Session {
	return &Session{
		client:   client,
		config:   config,
		resolver: res,
		tracker:  tracker,
		buffers:  make(map[nvim.Buffer]*buffer.NvimBuffer),
	}
}

// Register installs the RPC handlers the plugin notifies
func (s *Session) Register() error {
	handlers := map[string]any{
		"mergetab_open": func(_ *nvim.Nvim, current, result, incoming int, path string) {
			// buffer reads go back over this connection, so they must not run
			// on the notification goroutine
			go func() {
				if err := s.Open(nvim.Buffer(current), nvim.Buffer(result), nvim.Buffer(incoming), path); err != nil {
					logger.Error("session: open %s: %v", path, err)
				}
			}()
		},
		"mergetab_action": func(_ *nvim.Nvim, action, id, view string) {
			s.Action(types.ActionType(action), id, view)
		},
		"mergetab_lines": func(_ *nvim.Nvim, buf, tick, first, last int, lines []string) {
			s.Lines(nvim.Buffer(buf), tick, first, last, lines)
		},
		"mergetab_accept_all": func(_ *nvim.Nvim, view string, ignoreConflict bool) {
			s.AcceptAll(view, ignoreConflict)
		},
		"mergetab_ai_all": func(_ *nvim.Nvim) {
			s.ResolveAllWithAI()
		},
		"mergetab_stop_ai": func(_ *nvim.Nvim) {
			s.post(engine.Event{Type: engine.EventStopAI})
		},
		"mergetab_stop": func(_ *nvim.Nvim) {
			s.Close()
		},
	}
	for name, fn := range handlers {
		if err := s.client.RegisterHandler(name, fn); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// Open starts a merge over the three buffers. path names the merged file and
// locates its repository for branch context.
func (s *Session) Open(current, result, incoming nvim.Buffer, path string) error {
	s.Close()

	bufs := make(map[nvim.Buffer]*buffer.NvimBuffer, 3)
	for _, id := range []nvim.Buffer{current, result, incoming} {
		b := buffer.NewNvimBuffer(s.client, id)
		if err := b.Sync(); err != nil {
			return fmt.Errorf("sync buffer %d: %w", id, err)
		}
		bufs[id] = b
	}
	if err := bufs[result].Attach(); err != nil {
		return fmt.Errorf("attach result buffer: %w", err)
	}

	var renderer engine.Renderer
	if s.client != nil {
		renderer = buffer.NewRenderer(s.client, s.config.NsID, current, result, incoming)
	}
	docs := engine.Documents{
		Current:  bufs[current],
		Result:   bufs[result],
		Incoming: bufs[incoming],
		FilePath: path,
		RepoPath: repoRoot(path),
	}
	s.start(docs, bufs, result, renderer)
	return nil
}

// start wires a fresh engine to docs and queues the first compare
func (s *Session) start(docs engine.Documents, bufs map[nvim.Buffer]*buffer.NvimBuffer, result nvim.Buffer, renderer engine.Renderer) {
	eng := engine.NewEngine(s.resolver, s.config.engineConfig())
	eng.SetGatherer(ctx.NewGatherer(s.config.gathererConfig()))
	eng.SetRenderer(s)
	eng.Start(context.Background())

	s.mu.Lock()
	s.engine = eng
	s.renderer = renderer
	s.buffers = bufs
	s.result = result
	s.report = s.tracker.Start(docs.FilePath)
	s.mu.Unlock()

	s.summaryMu.Lock()
	s.summary = engine.Summary{}
	s.summaryMu.Unlock()

	eng.Post(engine.Event{Type: engine.EventOpen, Data: docs})
	logger.Info("session: opened %s", docs.FilePath)
}

// Render records the latest summary for the session report and forwards the
// decorations to the editor
func (s *Session) Render(decorations engine.Decorations, summary engine.Summary) {
	s.summaryMu.Lock()
	s.summary = summary
	s.summaryMu.Unlock()

	s.mu.Lock()
	r := s.renderer
	s.mu.Unlock()
	if r != nil {
		r.Render(decorations, summary)
	}
}

// Summary returns the counts of the last render
func (s *Session) Summary() engine.Summary {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	return s.summary
}

func (s *Session) Action(action types.ActionType, id, view string) {
	turn, ok := types.ParseTurnDirection(view)
	if !ok {
		logger.Warn("session: unknown view %q", view)
		return
	}
	s.post(engine.Event{Type: engine.EventAction, Data: engine.ActionRequest{Type: action, ID: id, View: turn}})
}

// Lines updates the buffer cache from an on_lines notification. Only user
// edits of the result reach the engine.
func (s *Session) Lines(id nvim.Buffer, tick, first, last int, lines []string) {
	s.mu.Lock()
	b := s.buffers[id]
	isResult := id == s.result
	s.mu.Unlock()
	if b == nil {
		return
	}

	ev, ok := b.OnLines(tick, first, last, lines)
	if !ok || !isResult {
		return
	}
	s.post(engine.Event{Type: engine.EventResultChanged, Data: ev})
}

func (s *Session) AcceptAll(view string, ignoreConflict bool) {
	turn, ok := types.ParseTurnDirection(view)
	if !ok || turn == types.TurnBoth {
		logger.Warn("session: accept all needs a side, got %q", view)
		return
	}
	s.post(engine.Event{Type: engine.EventAcceptAll, Data: engine.AcceptAllRequest{View: turn, IgnoreConflict: ignoreConflict}})
}

func (s *Session) ResolveAllWithAI() {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()
	if report != nil {
		report.IncrementClickAll()
	}
	s.post(engine.Event{Type: engine.EventResolveAllAI})
}

// Close reports the running merge and stops its engine. It is safe to call
// with no merge open.
func (s *Session) Close() {
	s.mu.Lock()
	eng, report := s.engine, s.report
	s.engine, s.report, s.renderer = nil, nil, nil
	s.buffers = make(map[nvim.Buffer]*buffer.NvimBuffer)
	s.mu.Unlock()

	if eng == nil {
		return
	}
	eng.Stop()
	if report != nil {
		report.Finish(s.Summary())
	}
}

func (s *Session) post(ev engine.Event) {
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()
	if eng == nil {
		logger.Debug("session: no merge open for %s", ev.Type)
		return
	}
	if !eng.Post(ev) {
		logger.Debug("session: engine stopped, dropped %s", ev.Type)
	}
}

// repoRoot returns the worktree containing path, or "" outside a repository
func repoRoot(path string) string {
	if path == "" {
		return ""
	}
	_, root, err := gitconflict.Open(filepath.Dir(path))
	if err != nil {
		return ""
	}
	return root
}

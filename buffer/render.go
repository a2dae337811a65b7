package buffer

import (
	"github.com/neovim/go-client/nvim"

	"mergetab/engine"
	"mergetab/logger"
)

// Renderer paints block decorations through the Lua side of the plugin
type Renderer struct {
	client *nvim.Nvim
	nsID   int
	bufs   map[string]nvim.Buffer // view name -> buffer
}

func NewRenderer(client *nvim.Nvim, nsID int, current, result, incoming nvim.Buffer) *Renderer {
	return &Renderer{
		client: client,
		nsID:   nsID,
		bufs: map[string]nvim.Buffer{
			"current":  current,
			"result":   result,
			"incoming": incoming,
		},
	}
}

// Render implements engine.Renderer
func (r *Renderer) Render(decorations engine.Decorations, summary engine.Summary) {
	if r.client == nil {
		return
	}
	views := map[string]any{
		"result":   decorationsToLua(decorations.Result),
		"current":  decorationsToLua(decorations.Current),
		"incoming": decorationsToLua(decorations.Incoming),
	}
	bufs := make(map[string]int, len(r.bufs))
	for name, id := range r.bufs {
		bufs[name] = int(id)
	}

	batch := r.client.NewBatch()
	batch.ExecLua(`require('mergetab').on_render(...)`, nil, r.nsID, bufs, views)
	batch.ExecLua(`require('mergetab').on_summary(...)`, nil, SummaryToLua(summary))
	if err := batch.Execute(); err != nil {
		logger.Error("error rendering decorations: %v", err)
	}
}

func decorationsToLua(decorations []engine.Decoration) []map[string]any {
	out := make([]map[string]any, 0, len(decorations))
	for _, d := range decorations {
		out = append(out, map[string]any{
			"id":                d.ID,
			"start_line":        d.Range.Start,
			"end_line":          d.Range.End,
			"turn":              d.Turn.String(),
			"type":              d.Type.String(),
			"state":             d.State.String(),
			"complete":          d.Complete,
			"conflict":          d.Conflict,
			"allow_combination": d.AllowCombination,
			"loading":           d.Loading,
		})
	}
	return out
}

// SummaryToLua flattens a summary for the status line
func SummaryToLua(s engine.Summary) map[string]any {
	return map[string]any{
		"total":                   s.Total,
		"resolved":                s.Resolved,
		"conflict_points":         s.ConflictPoints,
		"resolved_conflicts":      s.ResolvedConflicts,
		"ai_resolved":             s.AIResolved,
		"pending_current":         s.PendingCurrent,
		"pending_incoming":        s.PendingIncoming,
		"pending_conflict_points": s.PendingConflictPoints,
		"complete":                s.CompleteSituation(),
	}
}

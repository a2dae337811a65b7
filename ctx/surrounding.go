package ctx

import (
	"context"

	"mergetab/engine"
	"mergetab/types"
	"mergetab/utils"
)

// surrounding takes the result lines around the block being resolved.
type surrounding struct {
	lines     int
	maxTokens int
}

func (s *surrounding) Gather(_ context.Context, req *engine.GatherRequest) *types.ContextResult {
	if s.lines <= 0 || len(req.Result) == 0 {
		return nil
	}
	before, after := utils.TrimLinesAround(req.Result, req.Focus.Start-1, req.Focus.End-1, s.lines, s.maxTokens)
	if len(before) == 0 && len(after) == 0 {
		return nil
	}
	return &types.ContextResult{Before: before, After: after}
}

package ctx

import (
	"context"

	"mergetab/engine"
	"mergetab/gitconflict"
	"mergetab/logger"
	"mergetab/types"
)

// heads names the two commits being merged, when a repository is known.
type heads struct{}

func (h *heads) Gather(ctx context.Context, req *engine.GatherRequest) *types.ContextResult {
	if req.RepoPath == "" || ctx.Err() != nil {
		return nil
	}
	hs, err := gitconflict.LoadHeads(req.RepoPath)
	if err != nil {
		logger.Debug("heads: %v", err)
		return nil
	}
	return &types.ContextResult{
		Branches: &types.BranchContext{Ours: hs.Ours, Theirs: hs.Theirs},
	}
}

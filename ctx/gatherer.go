package ctx

import (
	"context"
	"time"

	"mergetab/engine"
	"mergetab/types"
)

// GatherTimeout is the maximum time allowed for all context sources to complete.
const GatherTimeout = 200 * time.Millisecond

// Config sizes the gathered context
type Config struct {
	ContextLines int // Result lines taken on each side of a block
	MaxTokens    int // Token budget for the surrounding lines (0 = no trim)
	MaxSymbols   int // Cap on changed declarations
}

// NewGatherer creates a Gatherer with all built-in context sources.
func NewGatherer(config Config) *Gatherer {
	if config.MaxSymbols <= 0 {
		config.MaxSymbols = defaultMaxSymbols
	}
	return &Gatherer{
		sources: []source{
			&surrounding{lines: config.ContextLines, maxTokens: config.MaxTokens},
			&symbols{max: config.MaxSymbols},
			&heads{},
		},
	}
}

// source gathers one kind of context for a resolve request.
type source interface {
	Gather(ctx context.Context, req *engine.GatherRequest) *types.ContextResult
}

// Gatherer runs context sources in parallel and merges their results.
type Gatherer struct {
	sources []source
}

// Gather runs all sources in parallel with a shared timeout and merges
// whatever finished in time into a single ContextResult.
func (g *Gatherer) Gather(ctx context.Context, req *engine.GatherRequest) *types.ContextResult {
	if len(g.sources) == 0 || req == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, GatherTimeout)
	defer cancel()

	// Buffered so late sources never block after the deadline
	results := make(chan *types.ContextResult, len(g.sources))
	for _, s := range g.sources {
		go func() {
			results <- s.Gather(ctx, req)
		}()
	}

	var merged *types.ContextResult
	for range g.sources {
		select {
		case r := <-results:
			merged = merge(merged, r)
		case <-ctx.Done():
			return merged
		}
	}
	return merged
}

func merge(into, r *types.ContextResult) *types.ContextResult {
	if r == nil {
		return into
	}
	if into == nil {
		into = &types.ContextResult{}
	}
	if r.Before != nil || r.After != nil {
		into.Before = r.Before
		into.After = r.After
	}
	if r.Symbols != nil {
		into.Symbols = r.Symbols
	}
	if r.Branches != nil {
		into.Branches = r.Branches
	}
	return into
}

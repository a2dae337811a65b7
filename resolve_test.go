package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetab/types"
)

// one conflict on line 2, a current-only change on line 4 and an
// incoming-only change on line 6
func conflictInput() mergeInput {
	return mergeInput{
		FilePath: "app.txt",
		Base:     "x\nb\ny\nm\nk\nn\nz",
		Current:  "x\nc1\ny\nM\nk\nn\nz",
		Incoming: "x\ni1\ny\nm\nk\nN\nz",
	}
}

type fixedResolver struct {
	text     string
	requests []*types.ResolveRequest
}

func (r *fixedResolver) Resolve(_ context.Context, req *types.ResolveRequest) types.Reply {
	r.requests = append(r.requests, req)
	return types.TextReply(r.text)
}

func TestMerge_Strategies(t *testing.T) {
	tests := []struct {
		strategy strategy
		want     string
	}{
		{strategyCurrent, "x\nc1\ny\nM\nk\nN\nz"},
		{strategyIncoming, "x\ni1\ny\nM\nk\nN\nz"},
		{strategyCombination, "x\nb\ny\nM\nk\nN\nz"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got, summary, err := merge(context.Background(), conflictInput(), tt.strategy, defaultConfig(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, summary.ConflictPoints)
		})
	}
}

func TestMerge_NonConflictingCombination(t *testing.T) {
	in := mergeInput{
		Base:     "a\nb\nc\n",
		Current:  "a\nB\nc\n",
		Incoming: "a\nb\nc\nd\n",
	}
	got, summary, err := merge(context.Background(), in, strategyCombination, defaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc\nd\n", got)
	assert.True(t, summary.CompleteSituation())
}

func TestMerge_AI(t *testing.T) {
	res := &fixedResolver{text: "merged"}
	got, summary, err := merge(context.Background(), conflictInput(), strategyAI, defaultConfig(), res)
	require.NoError(t, err)
	assert.Equal(t, "x\nmerged\ny\nM\nk\nN\nz", got)
	assert.Equal(t, 1, summary.AIResolved)

	require.Len(t, res.requests, 1)
	assert.Equal(t, "c1", res.requests[0].Current)
	assert.Equal(t, "i1", res.requests[0].Incoming)
}

func TestMerge_UnknownStrategy(t *testing.T) {
	_, _, err := merge(context.Background(), conflictInput(), "bogus", defaultConfig(), nil)
	assert.Error(t, err)
}

package ctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergetab/engine"
	"mergetab/types"
)

type slowSource struct{ delay time.Duration }

func (s *slowSource) Gather(ctx context.Context, _ *engine.GatherRequest) *types.ContextResult {
	select {
	case <-time.After(s.delay):
		return &types.ContextResult{Symbols: []string{"late"}}
	case <-ctx.Done():
		return nil
	}
}

type fixedSource struct{ result *types.ContextResult }

func (s *fixedSource) Gather(context.Context, *engine.GatherRequest) *types.ContextResult {
	return s.result
}

func request() *engine.GatherRequest {
	return &engine.GatherRequest{
		Result:   []string{"package main", "", "import \"fmt\"", "BLOCK", "func main() {}", "// end"},
		Focus:    types.LineInterval{Start: 4, End: 5},
		Base:     []string{"func old() {", "x := 1", "}"},
		Current:  []string{"func renamed() {", "x := 1", "}"},
		Incoming: []string{"func old() {", "x := 2", "}"},
	}
}

func TestGather_MergesSources(t *testing.T) {
	g := NewGatherer(Config{ContextLines: 2})

	got := g.Gather(context.Background(), request())
	require.NotNil(t, got)
	assert.Equal(t, []string{"", "import \"fmt\""}, got.Before)
	assert.Equal(t, []string{"func main() {}", "// end"}, got.After)
	assert.Equal(t, []string{"current -func old() {", "current +func renamed() {"}, got.Symbols)
	assert.Nil(t, got.Branches, "no repository known")
}

func TestGather_NothingToReport(t *testing.T) {
	g := NewGatherer(Config{})
	got := g.Gather(context.Background(), &engine.GatherRequest{Base: []string{"a"}, Current: []string{"a"}, Incoming: []string{"a"}})
	assert.Nil(t, got)
}

func TestGather_DropsLateSources(t *testing.T) {
	g := &Gatherer{sources: []source{
		&fixedSource{result: &types.ContextResult{Before: []string{"b"}}},
		&slowSource{delay: 5 * time.Second},
	}}

	start := time.Now()
	got := g.Gather(context.Background(), request())
	assert.Less(t, time.Since(start), 2*time.Second, "bounded by the gather timeout")
	require.NotNil(t, got)
	assert.Equal(t, []string{"b"}, got.Before)
	assert.Nil(t, got.Symbols)
}

func TestGather_NilRequest(t *testing.T) {
	assert.Nil(t, NewGatherer(Config{ContextLines: 3}).Gather(context.Background(), nil))
}

func TestSurrounding_DisabledWithoutLines(t *testing.T) {
	s := &surrounding{}
	assert.Nil(t, s.Gather(context.Background(), request()))
}

func TestSymbols_Cap(t *testing.T) {
	req := &engine.GatherRequest{
		Current:  []string{"func a() {", "func b() {", "func c() {"},
		Incoming: []string{"def d():"},
	}
	got := (&symbols{max: 2}).Gather(context.Background(), req)
	require.NotNil(t, got)
	assert.Equal(t, []string{"current +func a() {", "current +func b() {"}, got.Symbols)
}

func TestAppendSymbols_Deduplicates(t *testing.T) {
	seen := map[string]struct{}{}
	out := appendSymbols(nil, seen, "incoming", nil, []string{"fn run() {", "  fn run() {", "let x = 1;"}, 50)
	assert.Equal(t, []string{"incoming +fn run() {"}, out)
}

func TestIsDeclarationLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"func main() {", true},
		{"func(x int) int {", true},
		{"def process(data):", true},
		{"class MyClass:", true},
		{"type Config struct {", true},
		{"pub fn handle(&self) -> Result<()> {", true},
		{"impl Server {", true},
		{"local function setup()", true},
		{"export default function App() {", true},
		{"private int count;", true},
		// Non-declarations
		{"const port = 8080", false},
		{"    return nil", false},
		{"x := 42", false},
		{"// func commented() {", false},
		{"", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, isDeclarationLine(tc.line), "isDeclarationLine(%q)", tc.line)
	}
}

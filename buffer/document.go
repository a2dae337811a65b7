package buffer

import (
	"sort"
	"sync"

	"mergetab/text"
	"mergetab/types"
)

// Document is an in-memory editor. The headless resolve command drives the
// engine against three of these.
type Document struct {
	mu    sync.Mutex
	lines []string
	eol   string
}

// NewDocument splits content with its detected EOL
func NewDocument(content string) *Document {
	eol := text.DetectEOL(content)
	return &Document{lines: text.SplitLines(content, eol), eol: eol}
}

func (d *Document) GetText(r types.LineInterval) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	start, end := clampInterval(r, len(d.lines))
	if end <= start {
		return ""
	}
	return text.JoinLines(d.lines[start-1:end-1], d.eol)
}

func (d *Document) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func (d *Document) EOL() string { return d.eol }

func (d *Document) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

// String returns the whole document
func (d *Document) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return text.JoinLines(d.lines, d.eol)
}

// ApplyEdits applies edits bottom-up so earlier ranges stay valid
func (d *Document) ApplyEdits(edits []types.Edit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range sortedEdits(edits) {
		d.lines = spliceLines(d.lines, e.Range, text.LinesOf(e.Text, d.eol))
	}
	return nil
}

// ReplaceLines swaps the 1-indexed lines [start, end) for lines and reports
// the change the way an editor would.
func (d *Document) ReplaceLines(start, end int, lines []string) types.ContentChangeEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	iv := types.LineInterval{Start: start, End: end}
	s, e := clampInterval(iv, len(d.lines))
	d.lines = spliceLines(d.lines, iv, lines)
	return types.ContentChangeEvent{
		Changes: []types.ContentChange{lineChange(s-1, e-1, lines, d.eol)},
		EOL:     d.eol,
	}
}

func sortedEdits(edits []types.Edit) []types.Edit {
	sorted := append([]types.Edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Range.Start > sorted[j].Range.Start
	})
	return sorted
}

// clampInterval bounds r to a document of n lines. An interval may end one
// past the last line so edits can append.
func clampInterval(r types.LineInterval, n int) (start, end int) {
	start, end = r.Start, r.End
	if start < 1 {
		start = 1
	}
	if start > n+1 {
		start = n + 1
	}
	if end > n+1 {
		end = n + 1
	}
	if end < start {
		end = start
	}
	return start, end
}

func spliceLines(lines []string, r types.LineInterval, replacement []string) []string {
	start, end := clampInterval(r, len(lines))
	next := make([]string, 0, len(lines)-(end-start)+len(replacement))
	next = append(next, lines[:start-1]...)
	next = append(next, replacement...)
	next = append(next, lines[end-1:]...)
	if len(next) == 0 {
		next = []string{""}
	}
	return next
}

// lineChange converts a whole-line replacement of the 0-indexed lines
// [first, last) into an editor content change.
func lineChange(first, last int, lines []string, eol string) types.ContentChange {
	switch {
	case len(lines) == 0:
		return types.ContentChange{StartLine: first + 1, EndLine: last + 1}
	case first == last:
		return types.ContentChange{StartLine: first + 1, EndLine: first + 1, Text: text.JoinLines(lines, eol) + eol}
	default:
		return types.ContentChange{StartLine: first + 1, EndLine: last, Text: text.JoinLines(lines, eol)}
	}
}

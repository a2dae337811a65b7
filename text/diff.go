package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"mergetab/types"
)

// lineDiffs runs a line-mode diff. Every line is terminated with "\n" before
// diffing so a final line without EOL still compares equal to itself.
func lineDiffs(original, modified []string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(terminate(original), terminate(modified))
	diffs := dmp.DiffMain(chars1, chars2, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

func terminate(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ComputeLineMappings returns the hunks that differ between original and
// modified, in document order. Adjacent delete/insert runs collapse into one
// hunk; a hunk with an empty side is a pure insertion or deletion point.
func ComputeLineMappings(original, modified []string) []types.LineRangeMapping {
	var mappings []types.LineRangeMapping
	var pending *types.LineRangeMapping

	flush := func() {
		if pending != nil {
			mappings = append(mappings, *pending)
			pending = nil
		}
	}

	origLine, modLine := 1, 1
	for _, d := range lineDiffs(original, modified) {
		n := strings.Count(d.Text, "\n")
		if n == 0 {
			continue
		}

		if d.Type == diffmatchpatch.DiffEqual {
			flush()
			origLine += n
			modLine += n
			continue
		}

		if pending == nil {
			pending = &types.LineRangeMapping{
				Original: types.LineInterval{Start: origLine, End: origLine},
				Modified: types.LineInterval{Start: modLine, End: modLine},
			}
		}

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			pending.Original.End += n
			origLine += n
		case diffmatchpatch.DiffInsert:
			pending.Modified.End += n
			modLine += n
		}
	}
	flush()

	return mappings
}

// ChangedLines returns the lines removed from original and the lines added in
// modified, each in document order.
func ChangedLines(original, modified []string) (removed, added []string) {
	for _, d := range lineDiffs(original, modified) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			removed = append(removed, splitTerminated(d.Text)...)
		case diffmatchpatch.DiffInsert:
			added = append(added, splitTerminated(d.Text)...)
		}
	}
	return removed, added
}

func splitTerminated(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

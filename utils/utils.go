package utils

// Token estimation constants
const (
	AvgCharsPerToken = 2 // Conservative estimate for mixed content (code + markers)
)

// EstimateCharsFromTokens estimates the number of characters for a given token count
func EstimateCharsFromTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// TrimLinesAround returns the context lines before and after the 0-indexed
// block [start, end) of lines. At most maxLines are taken on each side, and
// the pair is shrunk to fit maxTokens with the lines nearest the block kept.
// The budget is split evenly; whatever one side leaves unused goes to the
// other.
func TrimLinesAround(lines []string, start, end, maxLines, maxTokens int) (before, after []string) {
	if len(lines) == 0 {
		return nil, nil
	}
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}

	lo := 0
	if maxLines >= 0 && start-maxLines > 0 {
		lo = start - maxLines
	}
	hi := len(lines)
	if maxLines >= 0 && end+maxLines < len(lines) {
		hi = end + maxLines
	}

	if maxTokens <= 0 {
		return copyLines(lines[lo:start]), copyLines(lines[end:hi])
	}

	maxChars := EstimateCharsFromTokens(maxTokens)
	halfBudget := maxChars / 2

	// Expand BEFORE the block (up to half budget)
	first := start
	charsBefore := 0
	for first > lo {
		newChars := len(lines[first-1]) + 1
		if charsBefore+newChars > halfBudget {
			break
		}
		first--
		charsBefore += newChars
	}

	// Expand AFTER the block (half budget + whatever before left over)
	budgetAfter := maxChars - charsBefore
	last := end
	charsAfter := 0
	for last < hi {
		newChars := len(lines[last]) + 1
		if charsAfter+newChars > budgetAfter {
			break
		}
		last++
		charsAfter += newChars
	}

	// Unused budget after goes back up
	budgetBefore := maxChars - charsAfter
	for first > lo {
		newChars := len(lines[first-1]) + 1
		if charsBefore+newChars > budgetBefore {
			break
		}
		first--
		charsBefore += newChars
	}

	return copyLines(lines[first:start]), copyLines(lines[end:last])
}

// TrimList keeps the leading items of list that fit within maxTokens. The
// first item is always kept.
func TrimList(list []string, maxTokens int) []string {
	if len(list) == 0 || maxTokens <= 0 {
		return list
	}

	maxChars := EstimateCharsFromTokens(maxTokens)
	totalChars := 0
	for i, item := range list {
		totalChars += len(item) + 1
		if totalChars > maxChars && i > 0 {
			return list[:i]
		}
	}
	return list
}

func copyLines(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

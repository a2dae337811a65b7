package text

import "strings"

const (
	EOLLF   = "\n"
	EOLCRLF = "\r\n"
)

// DetectEOL returns the end-of-line sequence used by text. Documents without
// any line break default to LF.
func DetectEOL(text string) string {
	if i := strings.IndexByte(text, '\n'); i > 0 && text[i-1] == '\r' {
		return EOLCRLF
	}
	return EOLLF
}

// SplitLines splits text into lines the way an editor model counts them:
// "" is one empty line and a trailing EOL yields a trailing empty line.
func SplitLines(text, eol string) []string {
	if eol == "" {
		eol = DetectEOL(text)
	}
	return strings.Split(text, eol)
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string, eol string) string {
	if eol == "" {
		eol = EOLLF
	}
	return strings.Join(lines, eol)
}

// CountEOL counts line breaks in text. CRLF counts once.
func CountEOL(text string) int {
	return strings.Count(text, "\n")
}

// LinesOf converts edit text into the lines it occupies. A nil text occupies
// no lines at all.
func LinesOf(text *string, eol string) []string {
	if text == nil {
		return nil
	}
	return SplitLines(*text, eol)
}

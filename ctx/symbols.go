package ctx

import (
	"context"
	"strings"

	"mergetab/engine"
	"mergetab/text"
	"mergetab/types"
)

const defaultMaxSymbols = 50

// symbols lists the declarations each side added or removed relative to base.
type symbols struct {
	max int
}

func (s *symbols) Gather(ctx context.Context, req *engine.GatherRequest) *types.ContextResult {
	var out []string
	seen := make(map[string]struct{})

	for _, side := range []struct {
		label string
		lines []string
	}{
		{"current", req.Current},
		{"incoming", req.Incoming},
	} {
		if ctx.Err() != nil {
			return nil
		}
		removed, added := text.ChangedLines(req.Base, side.lines)
		out = appendSymbols(out, seen, side.label, removed, added, s.max)
	}

	if len(out) == 0 {
		return nil
	}
	return &types.ContextResult{Symbols: out}
}

// appendSymbols adds "<label> -decl" and "<label> +decl" entries for the
// declaration lines among removed and added, up to max entries in total.
func appendSymbols(out []string, seen map[string]struct{}, label string, removed, added []string, max int) []string {
	add := func(sign string, lines []string) {
		for _, line := range lines {
			content := strings.TrimSpace(line)
			if !isDeclarationLine(content) {
				continue
			}
			sym := label + " " + sign + content
			if _, ok := seen[sym]; ok || len(out) >= max {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	add("-", removed)
	add("+", added)
	return out
}

// isDeclarationLine checks if a line looks like a function/type/class declaration
// across common languages (Go, Python, Rust, JS/TS, C/C++, Java).
func isDeclarationLine(line string) bool {
	prefixes := []string{
		"func ", "func(", // Go
		"def ",                     // Python
		"class ",                   // Python, JS/TS, Java, C++
		"type ",                    // Go, TS
		"struct ",                  // Go, Rust, C/C++
		"fn ",                      // Rust
		"pub fn ",                  // Rust
		"impl ",                    // Rust
		"trait ",                   // Rust
		"enum ",                    // Rust, Java, TS
		"interface ",               // Go, TS, Java
		"function ",                // JS/TS, Lua
		"local function ",          // Lua
		"export function ",         // JS/TS
		"export default function ", // JS/TS
		"export const ",            // JS/TS
		"export class ",            // JS/TS
		"async function ",          // JS/TS
		"export async function ",   // JS/TS
		"public ",                  // Java, C#
		"private ",                 // Java, C#
		"protected ",               // Java, C#
		"static ",                  // Java, C/C++
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}

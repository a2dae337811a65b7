package resolver

import (
	"strings"

	"mergetab/logger"
	"mergetab/types"
	"mergetab/utils"
)

// Preprocessor prepares the context before prompt building.
// A returned error fails the request.
type Preprocessor func(p *Provider, ctx *Context) error

// PromptBuilder builds the prompt text from the context
type PromptBuilder func(p *Provider, ctx *Context) string

// Postprocessor checks or rewrites the answer in ctx.Result.
// Returns (reply, done) - if done is true, the reply is returned immediately.
type Postprocessor func(p *Provider, ctx *Context) (types.Reply, bool)

// Conflict marker prefixes, as written by git with merge.conflictStyle=diff3
const (
	markerCurrent  = "<<<<<<<"
	markerBase     = "|||||||"
	markerSplit    = "======="
	markerIncoming = ">>>>>>>"
)

// --- Preprocessors ---

// TrimContext returns a preprocessor that fits the changed declarations into
// a share of the token budget
func TrimContext() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		if ctx.Request.Context == nil {
			return nil
		}
		budget := p.Config.ProviderMaxTokens / 8
		ctx.Symbols = utils.TrimList(ctx.Request.Context.Symbols, budget)
		if len(ctx.Symbols) < len(ctx.Request.Context.Symbols) {
			logger.Debug("%s: trimmed symbols %d -> %d", p.Name, len(ctx.Request.Context.Symbols), len(ctx.Symbols))
		}
		return nil
	}
}

// LineCap returns a preprocessor that caps streamed answers at the combined
// size of both sides plus slack lines
func LineCap(slack int) Preprocessor {
	return func(p *Provider, ctx *Context) error {
		if !p.Config.Streaming {
			return nil
		}
		ctx.MaxLines = countLines(ctx.Request.Current) + countLines(ctx.Request.Incoming) + slack
		return nil
	}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// --- Prompt builders ---

const instructions = "You resolve git merge conflicts. Combine the intent of both sides into " +
	"one correct version of the conflicting lines. Keep the surrounding code unchanged " +
	"and do not repeat it. Never output conflict markers."

// CompletionPrompt renders the conflict for a raw completion model. The prompt
// ends inside an open code fence so the answer is the code itself.
func CompletionPrompt() PromptBuilder {
	return func(p *Provider, ctx *Context) string {
		var b strings.Builder
		b.WriteString(instructions)
		b.WriteString("\n\n")
		writeConflict(&b, ctx)
		b.WriteString("Resolved lines:\n```\n")
		return b.String()
	}
}

// ChatPrompt renders the conflict as the user message of a chat request
func ChatPrompt() PromptBuilder {
	return func(p *Provider, ctx *Context) string {
		var b strings.Builder
		writeConflict(&b, ctx)
		b.WriteString("Reply with the resolved lines only, in a single fenced code block.\n")
		return b.String()
	}
}

func writeConflict(b *strings.Builder, ctx *Context) {
	req := ctx.Request
	if req.FilePath != "" {
		b.WriteString("File: " + req.FilePath + "\n")
	}

	if c := req.Context; c != nil {
		if c.Branches != nil {
			b.WriteString("Current branch head: " + c.Branches.Ours + "\n")
			b.WriteString("Incoming branch head: " + c.Branches.Theirs + "\n")
		}
		if len(ctx.Symbols) > 0 {
			b.WriteString("Declarations changed by each side:\n")
			for _, s := range ctx.Symbols {
				b.WriteString("  " + s + "\n")
			}
		}
		if len(c.Before) > 0 {
			writeFenced(b, "Code before the conflict:", strings.Join(c.Before, "\n"))
		}
	}

	b.WriteString("Conflict:\n```\n")
	b.WriteString(markerCurrent + " current\n")
	writeSide(b, req.Current)
	b.WriteString(markerBase + " base\n")
	writeSide(b, req.Base)
	b.WriteString(markerSplit + "\n")
	writeSide(b, req.Incoming)
	b.WriteString(markerIncoming + " incoming\n```\n")

	if c := req.Context; c != nil && len(c.After) > 0 {
		writeFenced(b, "Code after the conflict:", strings.Join(c.After, "\n"))
	}

	if req.Regenerate && req.Result != "" {
		writeFenced(b, "A previous resolution was rejected. Produce a different one. Previous resolution:", req.Result)
	}
}

func writeSide(b *strings.Builder, side string) {
	if side == "" {
		return
	}
	b.WriteString(side)
	b.WriteString("\n")
}

func writeFenced(b *strings.Builder, title, body string) {
	b.WriteString(title)
	b.WriteString("\n```\n")
	b.WriteString(body)
	b.WriteString("\n```\n")
}

// --- Postprocessors ---

// RejectTruncated returns a postprocessor that rejects answers cut off by the
// token limit or the streaming line cap
func RejectTruncated() Postprocessor {
	return func(p *Provider, ctx *Context) (types.Reply, bool) {
		if ctx.Result.FinishReason == "length" || ctx.Result.StoppedEarly {
			logger.Info("%s: rejected, truncated (finish_reason=%s)", p.Name, ctx.Result.FinishReason)
			return types.ErrorReply(ErrorCodeTruncated, "answer truncated"), true
		}
		return types.Reply{}, false
	}
}

// StripFences returns a postprocessor that unwraps a markdown code fence
func StripFences() Postprocessor {
	return func(p *Provider, ctx *Context) (types.Reply, bool) {
		ctx.Result.Text = stripFences(ctx.Result.Text)
		return types.Reply{}, false
	}
}

// TrimTrailingNewline returns a postprocessor that drops trailing line breaks
// so the answer does not grow the block by an empty line
func TrimTrailingNewline() Postprocessor {
	return func(p *Provider, ctx *Context) (types.Reply, bool) {
		ctx.Result.Text = strings.TrimRight(ctx.Result.Text, "\r\n")
		return types.Reply{}, false
	}
}

// RejectEmpty returns a postprocessor that rejects empty answers
func RejectEmpty() Postprocessor {
	return func(p *Provider, ctx *Context) (types.Reply, bool) {
		if strings.TrimSpace(ctx.Result.Text) == "" {
			logger.Debug("%s: rejected, empty or whitespace-only", p.Name)
			return types.ErrorReply(ErrorCodeEmpty, "empty answer"), true
		}
		return types.Reply{}, false
	}
}

// RejectMarkers returns a postprocessor that rejects answers still holding
// conflict markers
func RejectMarkers() Postprocessor {
	return func(p *Provider, ctx *Context) (types.Reply, bool) {
		if HasConflictMarkers(ctx.Result.Text) {
			logger.Info("%s: rejected, answer contains conflict markers", p.Name)
			return types.ErrorReply(ErrorCodeMarkers, "answer contains conflict markers"), true
		}
		return types.Reply{}, false
	}
}

// --- Helper functions ---

// HasConflictMarkers reports whether any line of s is a conflict marker
func HasConflictMarkers(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == markerSplit ||
			strings.HasPrefix(line, markerCurrent) ||
			strings.HasPrefix(line, markerBase) ||
			strings.HasPrefix(line, markerIncoming) {
			return true
		}
	}
	return false
}

// stripFences returns the body of the first fenced block in s. A lone bare
// fence closes a block whose opening fence was part of the prompt.
func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	open := -1
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			open = i
			break
		}
	}
	if open == -1 {
		return s
	}

	for i := open + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "```" {
			return strings.Join(lines[open+1:i], "\n")
		}
	}

	if strings.TrimSpace(lines[open]) == "```" && open > 0 {
		return strings.Join(lines[:open], "\n")
	}
	return strings.Join(lines[open+1:], "\n")
}

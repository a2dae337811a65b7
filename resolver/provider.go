package resolver

import (
	"context"
	"errors"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"

	"mergetab/client/openai"
	"mergetab/engine"
	"mergetab/logger"
	"mergetab/types"
)

// Compile-time check that Provider implements engine.Resolver
var _ engine.Resolver = (*Provider)(nil)

// Reply codes for answers rejected after the transport succeeded
const (
	ErrorCodeMarkers   = 2 // answer still contains conflict markers
	ErrorCodeEmpty     = 3
	ErrorCodeTruncated = 4
)

// Context carries data through the resolve pipeline
type Context struct {
	Request  *types.ResolveRequest
	Symbols  []string // trimmed copy of Request.Context.Symbols
	Prompt   string
	MaxLines int // streaming line cap (0 = no limit)
	Result   *openai.StreamResult
}

// Transport sends the built prompt to a model
type Transport func(ctx context.Context, p *Provider, pctx *Context) (*openai.StreamResult, error)

// Provider implements engine.Resolver with a configurable pipeline
type Provider struct {
	Name           string
	Config         *types.ProviderConfig
	Preprocessors  []Preprocessor
	PromptBuilder  PromptBuilder
	Transport      Transport
	Postprocessors []Postprocessor
}

// Resolve implements engine.Resolver. It never returns an error: failures are
// reported as error replies and a cancelled ctx as a cancel reply.
func (p *Provider) Resolve(ctx context.Context, req *types.ResolveRequest) types.Reply {
	defer logger.Trace(p.Name + ".Resolve")()
	pctx := &Context{Request: req}

	for _, pre := range p.Preprocessors {
		if err := pre(p, pctx); err != nil {
			return types.ErrorReply(engine.ErrorCodeUnavailable, fmt.Sprintf("%s: %v", p.Name, err))
		}
	}

	pctx.Prompt = p.PromptBuilder(p, pctx)
	p.logRequest(pctx)

	result, err := p.Transport(ctx, p, pctx)
	if ctx.Err() != nil {
		return types.CancelReply()
	}
	if err != nil {
		logger.Warn("%s: transport failed: %v", p.Name, err)
		return errorReply(p.Name, err)
	}
	pctx.Result = result
	p.logResponse(result)

	for _, post := range p.Postprocessors {
		if reply, done := post(p, pctx); done {
			return reply
		}
	}
	return types.TextReply(pctx.Result.Text)
}

// errorReply uses the HTTP status as the reply code when there is one
func errorReply(name string, err error) types.Reply {
	msg := fmt.Sprintf("%s: %v", name, err)

	var statusErr *openai.StatusError
	if errors.As(err, &statusErr) {
		return types.ErrorReply(statusErr.StatusCode, msg)
	}
	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return types.ErrorReply(apiErr.HTTPStatusCode, msg)
	}
	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return types.ErrorReply(reqErr.HTTPStatusCode, msg)
	}
	return types.ErrorReply(engine.ErrorCodeUnavailable, msg)
}

func (p *Provider) logRequest(pctx *Context) {
	logger.Debug("%s provider request:\n  URL: %s\n  Model: %s\n  Temperature: %.2f\n  MaxTokens: %d\n  MaxLines: %d\n  Regenerate: %v\n  Prompt length: %d chars\n  Prompt:\n%s",
		p.Name,
		p.Config.ProviderURL,
		p.Config.ProviderModel,
		p.Config.ProviderTemperature,
		p.Config.ProviderMaxTokens,
		pctx.MaxLines,
		pctx.Request.Regenerate,
		len(pctx.Prompt),
		pctx.Prompt)
}

func (p *Provider) logResponse(result *openai.StreamResult) {
	logger.Debug("%s provider response:\n  Text length: %d chars\n  FinishReason: %s\n  StoppedEarly: %v\n  Text: %q",
		p.Name,
		len(result.Text),
		result.FinishReason,
		result.StoppedEarly,
		result.Text)
}

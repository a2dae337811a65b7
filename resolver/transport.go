package resolver

import (
	"context"
	"fmt"

	gopenai "github.com/sashabaranov/go-openai"

	"mergetab/client/openai"
)

// Client interface for completion API calls (enables mocking in tests)
type Client interface {
	DoCompletion(ctx context.Context, req *openai.CompletionRequest) (*openai.CompletionResponse, error)
	DoStreamingCompletion(ctx context.Context, req *openai.CompletionRequest, maxLines int) (*openai.StreamResult, error)
}

// ChatClient is the part of the go-openai client used by the chat transport
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req gopenai.ChatCompletionRequest) (gopenai.ChatCompletionResponse, error)
}

// CompletionTransport sends the prompt to a raw completion endpoint. The
// answer stops at the closing code fence.
func CompletionTransport(client Client) Transport {
	return func(ctx context.Context, p *Provider, pctx *Context) (*openai.StreamResult, error) {
		req := &openai.CompletionRequest{
			Model:       p.Config.ProviderModel,
			Prompt:      pctx.Prompt,
			Temperature: p.Config.ProviderTemperature,
			MaxTokens:   p.Config.ProviderMaxTokens,
			Stop:        []string{"```"},
			N:           1,
		}

		if p.Config.Streaming {
			return client.DoStreamingCompletion(ctx, req, pctx.MaxLines)
		}

		resp, err := client.DoCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		result := &openai.StreamResult{}
		if len(resp.Choices) > 0 {
			result.Text = resp.Choices[0].Text
			result.FinishReason = resp.Choices[0].FinishReason
		}
		return result, nil
	}
}

// ChatTransport sends the prompt as a chat conversation
func ChatTransport(client ChatClient) Transport {
	return func(ctx context.Context, p *Provider, pctx *Context) (*openai.StreamResult, error) {
		resp, err := client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
			Model: p.Config.ProviderModel,
			Messages: []gopenai.ChatCompletionMessage{
				{Role: gopenai.ChatMessageRoleSystem, Content: instructions},
				{Role: gopenai.ChatMessageRoleUser, Content: pctx.Prompt},
			},
			Temperature: float32(p.Config.ProviderTemperature),
			MaxTokens:   p.Config.ProviderMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}
		return &openai.StreamResult{
			Text:         resp.Choices[0].Message.Content,
			FinishReason: string(resp.Choices[0].FinishReason),
		}, nil
	}
}

package resolver

import (
	"context"

	gopenai "github.com/sashabaranov/go-openai"

	"mergetab/client/openai"
	"mergetab/types"
)

// mockClient implements Client with a canned answer
type mockClient struct {
	text         string
	finishReason string
	err          error

	// Track method calls
	lastRequest  *openai.CompletionRequest
	lastMaxLines int
	streamCalls  int
}

func (m *mockClient) DoCompletion(ctx context.Context, req *openai.CompletionRequest) (*openai.CompletionResponse, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return &openai.CompletionResponse{
		Choices: []openai.Choice{{Text: m.text, FinishReason: m.finishReason}},
	}, nil
}

func (m *mockClient) DoStreamingCompletion(ctx context.Context, req *openai.CompletionRequest, maxLines int) (*openai.StreamResult, error) {
	m.lastRequest = req
	m.lastMaxLines = maxLines
	m.streamCalls++
	if m.err != nil {
		return nil, m.err
	}
	return &openai.StreamResult{Text: m.text, FinishReason: m.finishReason}, nil
}

// mockChat implements ChatClient
type mockChat struct {
	content string
	err     error
	last    gopenai.ChatCompletionRequest
}

func (m *mockChat) CreateChatCompletion(ctx context.Context, req gopenai.ChatCompletionRequest) (gopenai.ChatCompletionResponse, error) {
	m.last = req
	if m.err != nil {
		return gopenai.ChatCompletionResponse{}, m.err
	}
	return gopenai.ChatCompletionResponse{
		Choices: []gopenai.ChatCompletionChoice{{
			Message:      gopenai.ChatCompletionMessage{Role: gopenai.ChatMessageRoleAssistant, Content: m.content},
			FinishReason: gopenai.FinishReasonStop,
		}},
	}, nil
}

func testConfig() *types.ProviderConfig {
	return &types.ProviderConfig{
		ProviderModel:       "test-model",
		ProviderTemperature: 0.1,
		ProviderMaxTokens:   512,
	}
}

func conflictRequest() *types.ResolveRequest {
	return &types.ResolveRequest{
		ID:       "block-1",
		FilePath: "app.go",
		Base:     "x := 1",
		Current:  "x := 2",
		Incoming: "x := 1\ny := 3",
	}
}

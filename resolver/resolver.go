// Package resolver answers AI conflict resolution requests through a
// pre/post-processing pipeline around a model transport.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"mergetab/client/openai"
	"mergetab/types"
)

var ErrUnknownProvider = errors.New("unknown provider type")

// lineCapSlack leaves room for a few lines beyond both sides combined
const lineCapSlack = 4

// New creates the provider for providerType
func New(providerType types.ProviderType, config *types.ProviderConfig) (*Provider, error) {
	switch providerType {
	case types.ProviderTypeCompletion:
		client := openai.NewClient(config.ProviderURL, config.CompletionPath)
		client.APIKey = config.APIKey
		client.Compress = config.Compress
		return NewCompletionProvider(config, client), nil
	case types.ProviderTypeChat:
		cfg := gopenai.DefaultConfig(config.APIKey)
		if config.ProviderURL != "" {
			cfg.BaseURL = strings.TrimRight(config.ProviderURL, "/")
		}
		return NewChatProvider(config, gopenai.NewClientWithConfig(cfg)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerType)
	}
}

// NewCompletionProvider resolves through a raw completion endpoint
func NewCompletionProvider(config *types.ProviderConfig, client Client) *Provider {
	return &Provider{
		Name:   "completion",
		Config: config,
		Preprocessors: []Preprocessor{
			TrimContext(),
			LineCap(lineCapSlack),
		},
		PromptBuilder:  CompletionPrompt(),
		Transport:      CompletionTransport(client),
		Postprocessors: defaultPostprocessors(),
	}
}

// NewChatProvider resolves through a chat completion endpoint
func NewChatProvider(config *types.ProviderConfig, client ChatClient) *Provider {
	return &Provider{
		Name:   "chat",
		Config: config,
		Preprocessors: []Preprocessor{
			TrimContext(),
		},
		PromptBuilder:  ChatPrompt(),
		Transport:      ChatTransport(client),
		Postprocessors: defaultPostprocessors(),
	}
}

func defaultPostprocessors() []Postprocessor {
	return []Postprocessor{
		RejectTruncated(),
		StripFences(),
		TrimTrailingNewline(),
		RejectEmpty(),
		RejectMarkers(),
	}
}

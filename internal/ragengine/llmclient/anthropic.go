package llmclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient completes requests through the Anthropic Messages API.
type AnthropicClient struct {
	sdk   anthropicsdk.Client
	model string
}

// NewAnthropicClient builds an AnthropicClient for the given API key and
// default model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if model = strings.TrimSpace(model); model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicClient{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropicsdk.Float(req.Temperature),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.User)),
		},
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(ctx, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

func classifyAnthropicError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Err: ctx.Err()}
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return &Error{Kind: KindRateLimited, Err: err}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &Error{Kind: KindTimeout, Err: err}
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusInternalServerError:
			return &Error{Kind: KindUpstreamError, Err: err}
		default:
			return &Error{Kind: KindPermanentError, Err: err}
		}
	}
	return &Error{Kind: KindUpstreamError, Err: err}
}

package llmclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient completes requests through the OpenAI Chat Completions API.
type OpenAIClient struct {
	sdk   openaisdk.Client
	model string
}

// NewOpenAIClient builds an OpenAIClient for the given API key and default
// model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if model = strings.TrimSpace(model); model == "" {
		model = openaisdk.ChatModelGPT4oMini
	}
	return &OpenAIClient{sdk: openaisdk.NewClient(opts...), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []openaisdk.ChatCompletionMessageParamUnion{}
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openaisdk.SystemMessage(req.System))
	}
	messages = append(messages, openaisdk.UserMessage(req.User))

	params := openaisdk.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openaisdk.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(req.MaxTokens))
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindPermanentError, Err: errors.New("openai: empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Err: ctx.Err()}
	}
	var apiErr *openaisdk.Error
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

package clients

import (
	"context"
	"encoding/json"
	"net/http"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"
	"orchestrator-api/internal/shared"

	"go.uber.org/zap"
)

const ChatCompletionsPath = "/v1/chat/completions"

// OpenAiClient talks to an OpenAI compatible chat completions server.
type OpenAiClient struct {
	name         string
	client       *HTTPClient
	healthClient *HTTPClient
	log          *zap.SugaredLogger
}

func NewOpenAiClient(name string, cfg config.ServiceConfig, log *zap.SugaredLogger) (*OpenAiClient, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	client, err := NewHTTPClient(name, shared.DefaultChatPort, cfg, log)
	if err != nil {
		return nil, err
	}
	var healthClient *HTTPClient
	if cfg.HealthService != nil {
		healthClient, err = NewHTTPClient(name+"_health", shared.DefaultChatPort, *cfg.HealthService, log)
		if err != nil {
			return nil, err
		}
	}
	return &OpenAiClient{
		name:         name,
		client:       client,
		healthClient: healthClient,
		log:          log.With("client", name, "client_kind", KindChat),
	}, nil
}

func (c *OpenAiClient) Name() string {
	return c.name
}

func (c *OpenAiClient) Health(ctx context.Context) health.HealthCheckResult {
	if c.healthClient != nil {
		return c.healthClient.Health(ctx)
	}
	return c.client.Health(ctx)
}

// ChatCompletions always asks for a single, non streamed completion.
func (c *OpenAiClient) ChatCompletions(ctx context.Context, request *shared.ChatCompletionsRequest, headers http.Header) (*shared.ChatCompletionsResponse, error) {
	req := *request
	req.Stream = false
	c.log.Debugw("sending request to chat completions service", "path", ChatCompletionsPath, "model", req.Model)
	res, err := c.client.Post(ctx, ChatCompletionsPath, &req, headers)
	if err != nil {
		return nil, err
	}
	return decodeResponse[shared.ChatCompletionsResponse](res, openAIErrorMessage)
}

func (c *OpenAiClient) ChatCompletionsStream(ctx context.Context, request *shared.ChatCompletionsRequest, headers http.Header) (*Stream[*shared.ChatCompletionChunk], error) {
	req := *request
	req.Stream = true
	c.log.Debugw("sending streaming request to chat completions service", "path", ChatCompletionsPath, "model", req.Model)
	res, err := c.client.PostStream(ctx, ChatCompletionsPath, &req, headers)
	if err != nil {
		return nil, err
	}
	return decodeStreamResponse[shared.ChatCompletionChunk](res, openAIErrorMessage)
}

func (c *OpenAiClient) Invoke(ctx context.Context, op Operation, request any, headers http.Header) (any, error) {
	if op != OpChatCompletions {
		return nil, unsupported(c.name, op)
	}
	req, ok := request.(*shared.ChatCompletionsRequest)
	if !ok || req == nil {
		return nil, unexpectedRequest(op, "*shared.ChatCompletionsRequest", request)
	}
	return unaryResult(c.ChatCompletions(ctx, req, headers))
}

func (c *OpenAiClient) InvokeStream(ctx context.Context, op Operation, request any, headers http.Header) (*Stream[any], error) {
	if op != OpChatCompletions {
		return nil, unsupported(c.name, op)
	}
	req, ok := request.(*shared.ChatCompletionsRequest)
	if !ok || req == nil {
		return nil, unexpectedRequest(op, "*shared.ChatCompletionsRequest", request)
	}
	stream, err := c.ChatCompletionsStream(ctx, req, headers)
	if err != nil {
		return nil, err
	}
	return AnyStream(stream), nil
}

// openAIErrorMessage accepts both {"message": ...} (vLLM style) and
// {"error": {"message": ...}} (OpenAI style) bodies.
func openAIErrorMessage(body []byte) string {
	if m := messageEnvelope(body); m != "" {
		return m
	}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var nested shared.OpenAIError
	if err := json.Unmarshal(env.Error, &nested); err == nil {
		return nested.Message
	}
	var flat string
	if err := json.Unmarshal(env.Error, &flat); err == nil {
		return flat
	}
	return ""
}

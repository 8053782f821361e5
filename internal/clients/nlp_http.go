package clients

import (
	"context"
	"net/http"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"
	"orchestrator-api/internal/shared"

	"go.uber.org/zap"
)

const (
	TokenizationPath            = "/api/v1/task/tokenization"
	TokenClassificationPath     = "/api/v1/task/token-classification"
	TextGenerationPath          = "/api/v1/task/text-generation"
	StreamingTextGenerationPath = "/api/v1/task/streaming-text-generation"
)

// NlpClientHTTP talks to a caikit NLP runtime over its HTTP API.
type NlpClientHTTP struct {
	name         string
	client       *HTTPClient
	healthClient *HTTPClient
	log          *zap.SugaredLogger
}

func NewNlpClientHTTP(name string, cfg config.ServiceConfig, log *zap.SugaredLogger) (*NlpClientHTTP, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	client, err := NewHTTPClient(name, shared.DefaultNlpPort, cfg, log)
	if err != nil {
		return nil, err
	}
	var healthClient *HTTPClient
	if cfg.HealthService != nil {
		healthClient, err = NewHTTPClient(name+"_health", shared.DefaultNlpPort, *cfg.HealthService, log)
		if err != nil {
			return nil, err
		}
	}
	return &NlpClientHTTP{
		name:         name,
		client:       client,
		healthClient: healthClient,
		log:          log.With("client", name, "client_kind", KindNlp),
	}, nil
}

func (c *NlpClientHTTP) Name() string {
	return c.name
}

func (c *NlpClientHTTP) Health(ctx context.Context) health.HealthCheckResult {
	if c.healthClient != nil {
		return c.healthClient.Health(ctx)
	}
	return c.client.Health(ctx)
}

func (c *NlpClientHTTP) TokenizationTaskPredict(ctx context.Context, request *shared.TokenizationTaskRequest, headers http.Header) (*shared.TokenizationResults, error) {
	c.log.Debugw("sending request to NLP http service", "path", TokenizationPath)
	res, err := c.client.Post(ctx, TokenizationPath, request, headers)
	if err != nil {
		return nil, err
	}
	return decodeResponse[shared.TokenizationResults](res, messageEnvelope)
}

func (c *NlpClientHTTP) TokenClassificationTaskPredict(ctx context.Context, request *shared.TokenClassificationTaskRequest, headers http.Header) (*shared.TokenClassificationResults, error) {
	c.log.Debugw("sending request to NLP http service", "path", TokenClassificationPath)
	res, err := c.client.Post(ctx, TokenClassificationPath, request, headers)
	if err != nil {
		return nil, err
	}
	return decodeResponse[shared.TokenClassificationResults](res, messageEnvelope)
}

func (c *NlpClientHTTP) TextGenerationTaskPredict(ctx context.Context, request *shared.TextGenerationTaskRequest, headers http.Header) (*shared.GeneratedTextResult, error) {
	c.log.Debugw("sending request to NLP http service", "path", TextGenerationPath)
	res, err := c.client.Post(ctx, TextGenerationPath, request, headers)
	if err != nil {
		return nil, err
	}
	return decodeResponse[shared.GeneratedTextResult](res, messageEnvelope)
}

func (c *NlpClientHTTP) ServerStreamingTextGenerationTaskPredict(ctx context.Context, request *shared.TextGenerationTaskRequest, headers http.Header) (*Stream[*shared.GeneratedTextStreamResult], error) {
	c.log.Debugw("sending request to NLP http service", "path", StreamingTextGenerationPath)
	res, err := c.client.PostStream(ctx, StreamingTextGenerationPath, request, headers)
	if err != nil {
		return nil, err
	}
	return decodeStreamResponse[shared.GeneratedTextStreamResult](res, messageEnvelope)
}

func (c *NlpClientHTTP) Invoke(ctx context.Context, op Operation, request any, headers http.Header) (any, error) {
	switch op {
	case OpTokenization:
		req, ok := request.(*shared.TokenizationTaskRequest)
		if !ok || req == nil {
			return nil, unexpectedRequest(op, "*shared.TokenizationTaskRequest", request)
		}
		return unaryResult(c.TokenizationTaskPredict(ctx, req, headers))
	case OpTokenClassification:
		req, ok := request.(*shared.TokenClassificationTaskRequest)
		if !ok || req == nil {
			return nil, unexpectedRequest(op, "*shared.TokenClassificationTaskRequest", request)
		}
		return unaryResult(c.TokenClassificationTaskPredict(ctx, req, headers))
	case OpTextGeneration:
		req, ok := request.(*shared.TextGenerationTaskRequest)
		if !ok || req == nil {
			return nil, unexpectedRequest(op, "*shared.TextGenerationTaskRequest", request)
		}
		return unaryResult(c.TextGenerationTaskPredict(ctx, req, headers))
	default:
		return nil, unsupported(c.name, op)
	}
}

func (c *NlpClientHTTP) InvokeStream(ctx context.Context, op Operation, request any, headers http.Header) (*Stream[any], error) {
	if op != OpStreamingTextGeneration {
		return nil, unsupported(c.name, op)
	}
	req, ok := request.(*shared.TextGenerationTaskRequest)
	if !ok || req == nil {
		return nil, unexpectedRequest(op, "*shared.TextGenerationTaskRequest", request)
	}
	stream, err := c.ServerStreamingTextGenerationTaskPredict(ctx, req, headers)
	if err != nil {
		return nil, err
	}
	return AnyStream(stream), nil
}

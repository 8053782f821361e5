// Package clients holds the backend client contract, its HTTP adapters and
// the registry the orchestrator resolves clients from.
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"

	"go.uber.org/zap"
)

// Kind tags the protocol / backend family of a client.
type Kind string

const (
	KindNlp  Kind = "nlp"
	KindChat Kind = "chat"
)

// Operation names one backend call a client can make.
type Operation string

const (
	OpTokenization            Operation = "tokenization"
	OpTokenClassification     Operation = "token-classification"
	OpTextGeneration          Operation = "text-generation"
	OpStreamingTextGeneration Operation = "streaming-text-generation"
	OpChatCompletions         Operation = "chat-completions"
)

var (
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrUnexpectedRequest    = errors.New("unexpected request type")
	ErrUnknownKind          = errors.New("unknown client kind")
)

// Client is the contract every backend adapter satisfies. Implementations are
// safe for concurrent use.
type Client interface {
	// Name identifies the client in logs and metrics. It is not used for routing.
	Name() string
	// Health probes the dedicated health connection when one is configured,
	// the primary connection otherwise.
	Health(ctx context.Context) health.HealthCheckResult
	Invoke(ctx context.Context, op Operation, request any, headers http.Header) (any, error)
	InvokeStream(ctx context.Context, op Operation, request any, headers http.Header) (*Stream[any], error)
}

func unsupported(name string, op Operation) error {
	return fmt.Errorf("%s: %w: %s", name, ErrUnsupportedOperation, op)
}

func unexpectedRequest(op Operation, want string, got any) error {
	return fmt.Errorf("%s: %w: want %s, got %T", op, ErrUnexpectedRequest, want, got)
}

// unaryResult keeps a failed call from returning a typed nil inside a
// non-nil interface.
func unaryResult[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// New builds the adapter for kind.
func New(kind Kind, name string, cfg config.ServiceConfig, log *zap.SugaredLogger) (Client, error) {
	switch kind {
	case KindNlp:
		return NewNlpClientHTTP(name, cfg, log)
	case KindChat:
		return NewOpenAiClient(name, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

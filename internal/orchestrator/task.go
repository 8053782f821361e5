package orchestrator

import (
	"net/http"

	"orchestrator-api/internal/clients"
	"orchestrator-api/internal/config"
	"orchestrator-api/internal/shared"

	"go.opentelemetry.io/otel/trace"
)

// TaskMeta is carried by every task. ClientName selects the logical backend;
// empty means the configured default for the task's role.
type TaskMeta struct {
	TraceID    trace.TraceID
	Headers    http.Header
	ClientName string
}

func (m TaskMeta) meta() TaskMeta { return m }

// Task is one unit of inbound work. It is consumed by a single dispatch.
type Task interface {
	meta() TaskMeta
	kind() clients.Kind
	operation() clients.Operation
	payload() any
}

type TokenizationTask struct {
	TaskMeta
	Request *shared.TokenizationTaskRequest
}

func (*TokenizationTask) kind() clients.Kind           { return clients.KindNlp }
func (*TokenizationTask) operation() clients.Operation { return clients.OpTokenization }
func (t *TokenizationTask) payload() any               { return t.Request }

type TokenClassificationTask struct {
	TaskMeta
	Request *shared.TokenClassificationTaskRequest
}

func (*TokenClassificationTask) kind() clients.Kind           { return clients.KindNlp }
func (*TokenClassificationTask) operation() clients.Operation { return clients.OpTokenClassification }
func (t *TokenClassificationTask) payload() any               { return t.Request }

type TextGenerationTask struct {
	TaskMeta
	Request *shared.TextGenerationTaskRequest
}

func (*TextGenerationTask) kind() clients.Kind           { return clients.KindNlp }
func (*TextGenerationTask) operation() clients.Operation { return clients.OpTextGeneration }
func (t *TextGenerationTask) payload() any               { return t.Request }

type StreamingTextGenerationTask struct {
	TaskMeta
	Request *shared.TextGenerationTaskRequest
}

func (*StreamingTextGenerationTask) kind() clients.Kind { return clients.KindNlp }
func (*StreamingTextGenerationTask) operation() clients.Operation {
	return clients.OpStreamingTextGeneration
}
func (t *StreamingTextGenerationTask) payload() any { return t.Request }

// ChatCompletionsDetectionTask goes to the chat generation backend. Detector
// configuration rides along in the request and is not interpreted here.
type ChatCompletionsDetectionTask struct {
	TaskMeta
	Request *shared.ChatCompletionsRequest
}

func (*ChatCompletionsDetectionTask) kind() clients.Kind           { return clients.KindChat }
func (*ChatCompletionsDetectionTask) operation() clients.Operation { return clients.OpChatCompletions }
func (t *ChatCompletionsDetectionTask) payload() any               { return t.Request }

// isNil reports whether t is nil or a nil task pointer.
func isNil(t Task) bool {
	switch v := t.(type) {
	case nil:
		return true
	case *TokenizationTask:
		return v == nil
	case *TokenClassificationTask:
		return v == nil
	case *TextGenerationTask:
		return v == nil
	case *StreamingTextGenerationTask:
		return v == nil
	case *ChatCompletionsDetectionTask:
		return v == nil
	}
	return false
}

// clientName picks the logical name the task is routed to.
func clientName(cfg *config.Config, t Task) string {
	if name := t.meta().ClientName; name != "" {
		return name
	}
	if t.kind() == clients.KindChat {
		return cfg.ChatGenerationName
	}
	return cfg.DefaultNlpClient
}

// State is where a task is in its dispatch.
type State string

const (
	StateReceived   State = "received"
	StateResolved   State = "resolved"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Package orchestrator turns tasks into backend calls. It resolves the client
// for a task, forwards the request under the task's trace and hands results,
// errors and streams back unchanged.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"orchestrator-api/internal/clients"
	"orchestrator-api/internal/config"
	"orchestrator-api/internal/metrics"
	"orchestrator-api/internal/shared"
	"orchestrator-api/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrNotStreaming = errors.New("task does not produce a stream")
	ErrNilTask      = errors.New("nil task")
)

// Resolver finds the client registered for a kind and logical name.
type Resolver interface {
	Lookup(kind clients.Kind, name string) (clients.Client, error)
}

// DispatchRecord summarizes one finished dispatch.
type DispatchRecord struct {
	TraceID    trace.TraceID
	Kind       clients.Kind
	ClientName string
	Task       clients.Operation
	State      State
	StatusCode int
	Frames     int
	Duration   time.Duration
	Err        error
}

// Recorder is told about every dispatch once it is over. Record must not block.
type Recorder interface {
	Record(DispatchRecord)
}

type Orchestrator struct {
	clients  Resolver
	cfg      *config.Config
	log      *zap.SugaredLogger
	recorder Recorder
}

// New builds an orchestrator. cfg supplies default client names; recorder may
// be nil.
func New(resolver Resolver, cfg *config.Config, log *zap.SugaredLogger, recorder Recorder) *Orchestrator {
	if cfg == nil {
		cfg = config.New()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{clients: resolver, cfg: cfg, log: log, recorder: recorder}
}

func (o *Orchestrator) HandleTokenization(ctx context.Context, task *TokenizationTask) (*shared.TokenizationResults, error) {
	return invoke[shared.TokenizationResults](ctx, o, task)
}

func (o *Orchestrator) HandleTokenClassification(ctx context.Context, task *TokenClassificationTask) (*shared.TokenClassificationResults, error) {
	return invoke[shared.TokenClassificationResults](ctx, o, task)
}

func (o *Orchestrator) HandleTextGeneration(ctx context.Context, task *TextGenerationTask) (*shared.GeneratedTextResult, error) {
	return invoke[shared.GeneratedTextResult](ctx, o, task)
}

// HandleChatCompletionsDetection always produces a single completion, whatever
// the request's stream flag says.
func (o *Orchestrator) HandleChatCompletionsDetection(ctx context.Context, task *ChatCompletionsDetectionTask) (*shared.ChatCompletionsResponse, error) {
	return invoke[shared.ChatCompletionsResponse](ctx, o, task)
}

func (o *Orchestrator) HandleStreamingTextGeneration(ctx context.Context, task *StreamingTextGenerationTask) (*clients.Stream[*shared.GeneratedTextStreamResult], error) {
	return invokeStream[shared.GeneratedTextStreamResult](ctx, o, task)
}

func (o *Orchestrator) HandleChatCompletionsDetectionStream(ctx context.Context, task *ChatCompletionsDetectionTask) (*clients.Stream[*shared.ChatCompletionChunk], error) {
	return invokeStream[shared.ChatCompletionChunk](ctx, o, task)
}

// Handle dispatches any unary task.
func (o *Orchestrator) Handle(ctx context.Context, task Task) (any, error) {
	switch t := task.(type) {
	case *TokenizationTask:
		return result(o.HandleTokenization(ctx, t))
	case *TokenClassificationTask:
		return result(o.HandleTokenClassification(ctx, t))
	case *TextGenerationTask:
		return result(o.HandleTextGeneration(ctx, t))
	case *ChatCompletionsDetectionTask:
		return result(o.HandleChatCompletionsDetection(ctx, t))
	case *StreamingTextGenerationTask:
		if t == nil {
			return nil, ErrNilTask
		}
		return nil, fmt.Errorf("%s: use HandleStreaming", t.operation())
	case nil:
		return nil, ErrNilTask
	default:
		return nil, fmt.Errorf("unknown task %T", task)
	}
}

// HandleStreaming dispatches any streaming task.
func (o *Orchestrator) HandleStreaming(ctx context.Context, task Task) (*clients.Stream[any], error) {
	switch t := task.(type) {
	case *StreamingTextGenerationTask:
		s, err := o.HandleStreamingTextGeneration(ctx, t)
		if err != nil {
			return nil, err
		}
		return clients.AnyStream(s), nil
	case *ChatCompletionsDetectionTask:
		s, err := o.HandleChatCompletionsDetectionStream(ctx, t)
		if err != nil {
			return nil, err
		}
		return clients.AnyStream(s), nil
	case nil:
		return nil, ErrNilTask
	default:
		if isNil(task) {
			return nil, ErrNilTask
		}
		return nil, fmt.Errorf("%w: %s", ErrNotStreaming, task.operation())
	}
}

func result[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func invoke[T any](ctx context.Context, o *Orchestrator, task Task) (*T, error) {
	if isNil(task) {
		return nil, ErrNilTask
	}
	ctx, d := o.begin(ctx, task)
	client, err := d.resolve(o.clients)
	if err != nil {
		d.finish(err, 0)
		return nil, err
	}
	d.state = StateDispatched
	res, err := client.Invoke(ctx, task.operation(), task.payload(), task.meta().Headers)
	if err != nil {
		d.finish(err, 0)
		return nil, err
	}
	out, ok := res.(*T)
	if !ok || out == nil {
		err = &shared.DecodeError{Message: fmt.Sprintf("%s: unexpected result %T", task.operation(), res)}
		d.finish(err, 0)
		return nil, err
	}
	d.finish(nil, 0)
	return out, nil
}

func invokeStream[T any](ctx context.Context, o *Orchestrator, task Task) (*clients.Stream[*T], error) {
	if isNil(task) {
		return nil, ErrNilTask
	}
	ctx, d := o.begin(ctx, task)
	client, err := d.resolve(o.clients)
	if err != nil {
		d.finish(err, 0)
		return nil, err
	}
	d.state = StateDispatched
	stream, err := client.InvokeStream(ctx, task.operation(), task.payload(), task.meta().Headers)
	if err != nil {
		d.finish(err, 0)
		return nil, err
	}
	if stream == nil {
		err = &shared.DecodeError{Message: fmt.Sprintf("%s: backend returned no stream", task.operation())}
		d.finish(err, 0)
		return nil, err
	}
	typed := clients.MapStream(stream, func(v any) (*T, error) {
		out, ok := v.(*T)
		if !ok || out == nil {
			return nil, &shared.DecodeError{Message: fmt.Sprintf("%s: unexpected frame %T", task.operation(), v)}
		}
		return out, nil
	})
	return observe(typed, d), nil
}

// observe passes frames through untouched and closes the dispatch when the
// stream ends, fails or is closed by the consumer. Close may race a Recv on
// another goroutine, so the frame count is atomic and finish runs once.
func observe[T any](s *clients.Stream[T], d *dispatch) *clients.Stream[T] {
	metrics.InflightStreams.WithLabelValues(string(d.kind), d.name).Inc()
	var (
		frames atomic.Int64
		once   sync.Once
	)
	done := func(err error) {
		once.Do(func() {
			metrics.InflightStreams.WithLabelValues(string(d.kind), d.name).Dec()
			d.finish(err, int(frames.Load()))
		})
	}
	return clients.NewStream(func() (T, error) {
		v, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				done(nil)
			} else {
				done(err)
			}
			return v, err
		}
		if frames.Add(1) == 1 {
			metrics.TimeToFirstFrame.WithLabelValues(string(d.kind), d.name, string(d.op)).Observe(time.Since(d.start).Seconds())
		}
		metrics.StreamFrames.WithLabelValues(string(d.kind), d.name, string(d.op)).Inc()
		return v, nil
	}, func() error {
		err := s.Close()
		done(nil)
		return err
	})
}

// dispatch tracks one task from resolution to completion.
type dispatch struct {
	log      *zap.SugaredLogger
	recorder Recorder
	span     trace.Span
	traceID  trace.TraceID
	kind     clients.Kind
	name     string
	op       clients.Operation
	state    State
	start    time.Time
}

func (o *Orchestrator) begin(ctx context.Context, task Task) (context.Context, *dispatch) {
	meta := task.meta()
	traceID := meta.TraceID
	if !traceID.IsValid() {
		if id, ok := tracing.TraceIDFromContext(ctx); ok {
			traceID = id
		} else {
			traceID = tracing.NewTraceID()
		}
	}
	ctx = tracing.ContextWithTraceID(ctx, traceID)

	d := &dispatch{
		recorder: o.recorder,
		traceID:  traceID,
		kind:     task.kind(),
		name:     clientName(o.cfg, task),
		op:       task.operation(),
		state:    StateReceived,
		start:    time.Now(),
	}
	ctx, d.span = tracing.Tracer().Start(ctx, "orchestrator."+string(d.op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("trace_id", traceID.String()),
			attribute.String("client_kind", string(d.kind)),
			attribute.String("client_name", d.name),
			attribute.String("task", string(d.op)),
		),
	)
	d.log = o.log.With(
		"trace_id", traceID.String(),
		"client_kind", d.kind,
		"client_name", d.name,
		"task", d.op,
	)
	d.log.Infow("handling task")
	return ctx, d
}

func (d *dispatch) resolve(r Resolver) (clients.Client, error) {
	client, err := r.Lookup(d.kind, d.name)
	if err != nil {
		return nil, err
	}
	d.state = StateResolved
	return client, nil
}

func (d *dispatch) finish(err error, frames int) {
	duration := time.Since(d.start)
	status := shared.StatusCode(err)
	labels := []string{string(d.kind), d.name, string(d.op)}

	metrics.DispatchDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	if err != nil {
		d.state = StateFailed
		metrics.DispatchCount.WithLabelValues(append(labels, "error")...).Inc()
		metrics.ErrorCount.WithLabelValues(append(labels, shared.ErrorKind(err))...).Inc()
		d.span.RecordError(err)
		d.span.SetStatus(codes.Error, err.Error())
		var nf *shared.NotFoundError
		if errors.As(err, &nf) {
			d.log.Errorw("client not registered", "error", err)
		} else {
			d.log.Warnw("task failed", "status_code", status, "error_kind", shared.ErrorKind(err), "error", err, "duration", duration)
		}
	} else {
		d.state = StateCompleted
		metrics.DispatchCount.WithLabelValues(append(labels, "success")...).Inc()
		d.log.Infow("task completed", "duration", duration, "frames", frames)
	}
	d.span.SetAttributes(attribute.Int("http.status_code", status), attribute.Int("frames", frames))
	d.span.End()

	if d.recorder != nil {
		d.recorder.Record(DispatchRecord{
			TraceID:    d.traceID,
			Kind:       d.kind,
			ClientName: d.name,
			Task:       d.op,
			State:      d.state,
			StatusCode: status,
			Frames:     frames,
			Duration:   duration,
			Err:        err,
		})
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"orchestrator-api/internal/clients"
	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"
	"orchestrator-api/internal/shared"
	"orchestrator-api/internal/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	records []DispatchRecord
}

func (m *memRecorder) Record(r DispatchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *memRecorder) all() []DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DispatchRecord(nil), m.records...)
}

type fakeClient struct {
	res    any
	stream *clients.Stream[any]
	err    error
}

func (f *fakeClient) Name() string { return "fake" }
func (f *fakeClient) Health(context.Context) health.HealthCheckResult {
	return health.HealthCheckResult{Status: health.StatusHealthy}
}
func (f *fakeClient) Invoke(context.Context, clients.Operation, any, http.Header) (any, error) {
	return f.res, f.err
}
func (f *fakeClient) InvokeStream(context.Context, clients.Operation, any, http.Header) (*clients.Stream[any], error) {
	return f.stream, f.err
}

func backendConfig(t *testing.T, srv *httptest.Server) config.ServiceConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return config.ServiceConfig{Hostname: u.Hostname(), Port: uint16(port)}
}

func registryWith(t *testing.T, kind clients.Kind, name string, c clients.Client) *clients.Registry {
	t.Helper()
	r := clients.NewRegistry()
	if c != nil {
		require.NoError(t, r.Register(kind, name, c))
	}
	r.Seal()
	return r
}

func TestTokenizationEndToEnd(t *testing.T) {
	traceID := tracing.NewTraceID()
	var traceparent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, clients.TokenizationPath, r.URL.Path)
		traceparent.Store(r.Header.Get("Traceparent"))
		_, _ = io.WriteString(w, `{"tokens":["a","b"]}`)
	}))
	defer srv.Close()

	nlp, err := clients.NewNlpClientHTTP("nlp", backendConfig(t, srv), nil)
	require.NoError(t, err)
	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindNlp, "nlp", nlp), config.New(), nil, rec)

	res, err := o.HandleTokenization(context.Background(), &TokenizationTask{
		TaskMeta: TaskMeta{
			TraceID: traceID,
			Headers: http.Header{"Traceparent": {"00-11111111111111111111111111111111-2222222222222222-01"}},
		},
		Request: &shared.TokenizationTaskRequest{Inputs: "a b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res.Tokens)

	tp, _ := traceparent.Load().(string)
	assert.True(t, strings.HasPrefix(tp, "00-"+traceID.String()+"-"), tp)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StateCompleted, records[0].State)
	assert.Equal(t, traceID, records[0].TraceID)
	assert.Equal(t, "nlp", records[0].ClientName)
	assert.Equal(t, http.StatusOK, records[0].StatusCode)
}

func TestChatCompletionsDetectionNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	nlp, err := clients.NewNlpClientHTTP("nlp", backendConfig(t, srv), nil)
	require.NoError(t, err)
	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindNlp, "nlp", nlp), config.New(), nil, rec)

	res, err := o.HandleChatCompletionsDetection(context.Background(), &ChatCompletionsDetectionTask{
		TaskMeta: TaskMeta{TraceID: tracing.NewTraceID()},
		Request:  &shared.ChatCompletionsRequest{Model: "m"},
	})
	assert.Nil(t, res)
	var nf *shared.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "chat", nf.Kind)
	assert.Equal(t, "chat_generation", nf.Name)
	assert.Equal(t, int32(0), calls.Load())

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StateFailed, records[0].State)
	assert.Equal(t, http.StatusNotFound, records[0].StatusCode)
}

func TestClientNameOverrideAndConfigDefaults(t *testing.T) {
	want := &shared.TokenizationResults{TokenCount: 7}
	r := clients.NewRegistry()
	require.NoError(t, r.Register(clients.KindNlp, "pii", &fakeClient{res: want}))
	r.Seal()

	cfg := config.New()
	cfg.DefaultNlpClient = "pii"
	o := New(r, cfg, nil, nil)

	got, err := o.HandleTokenization(context.Background(), &TokenizationTask{Request: &shared.TokenizationTaskRequest{}})
	require.NoError(t, err)
	assert.Same(t, want, got)

	_, err = o.HandleTokenization(context.Background(), &TokenizationTask{
		TaskMeta: TaskMeta{ClientName: "other"},
		Request:  &shared.TokenizationTaskRequest{},
	})
	var nf *shared.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "other", nf.Name)
}

func TestWrongResultTypeIsDecodeError(t *testing.T) {
	o := New(registryWith(t, clients.KindNlp, "nlp", &fakeClient{res: &shared.GeneratedTextResult{}}), nil, nil, nil)
	_, err := o.HandleTokenization(context.Background(), &TokenizationTask{Request: &shared.TokenizationTaskRequest{}})
	var de *shared.DecodeError
	assert.True(t, errors.As(err, &de))
}

func TestErrorsPassThroughUnchanged(t *testing.T) {
	upstream := &shared.UpstreamError{StatusCode: http.StatusUnprocessableEntity, Message: "blocked"}
	o := New(registryWith(t, clients.KindNlp, "nlp", &fakeClient{err: upstream}), nil, nil, nil)
	res, err := o.Handle(context.Background(), &TextGenerationTask{Request: &shared.TextGenerationTaskRequest{}})
	assert.True(t, res == nil)
	assert.Same(t, upstream, err)
}

func TestHandleRoutesByVariant(t *testing.T) {
	want := &shared.TokenClassificationResults{}
	o := New(registryWith(t, clients.KindNlp, "nlp", &fakeClient{res: want}), nil, nil, nil)

	got, err := o.Handle(context.Background(), &TokenClassificationTask{Request: &shared.TokenClassificationTaskRequest{}})
	require.NoError(t, err)
	assert.Same(t, want, got)

	_, err = o.Handle(context.Background(), &StreamingTextGenerationTask{})
	assert.Error(t, err)

	_, err = o.HandleStreaming(context.Background(), &TokenizationTask{})
	assert.ErrorIs(t, err, ErrNotStreaming)
}

func TestStreamingTextGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, clients.StreamingTextGenerationPath, r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for i := range 3 {
			fmt.Fprintf(w, "data: {\"generated_text\":\"t%d\"}\n\n", i)
		}
	}))
	defer srv.Close()

	nlp, err := clients.NewNlpClientHTTP("nlp", backendConfig(t, srv), nil)
	require.NoError(t, err)
	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindNlp, "nlp", nlp), nil, nil, rec)

	stream, err := o.HandleStreamingTextGeneration(context.Background(), &StreamingTextGenerationTask{
		Request: &shared.TextGenerationTaskRequest{Inputs: "x"},
	})
	require.NoError(t, err)

	var texts []string
	for frame, err := range stream.All() {
		require.NoError(t, err)
		texts = append(texts, frame.GeneratedText)
	}
	assert.Equal(t, []string{"t0", "t1", "t2"}, texts)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StateCompleted, records[0].State)
	assert.Equal(t, 3, records[0].Frames)
}

func TestStreamingMalformedFrameRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"generated_text\":\"a\"}\n\ndata: {oops\n\ndata: {\"generated_text\":\"b\"}\n\n")
	}))
	defer srv.Close()

	nlp, err := clients.NewNlpClientHTTP("nlp", backendConfig(t, srv), nil)
	require.NoError(t, err)
	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindNlp, "nlp", nlp), nil, nil, rec)

	stream, err := o.HandleStreaming(context.Background(), &StreamingTextGenerationTask{
		Request: &shared.TextGenerationTaskRequest{Inputs: "x"},
	})
	require.NoError(t, err)

	var good, bad int
	for _, err := range stream.All() {
		if err != nil {
			var de *shared.DecodeError
			assert.True(t, errors.As(err, &de))
			bad++
			continue
		}
		good++
	}
	assert.Equal(t, 1, good)
	assert.Equal(t, 1, bad)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StateFailed, records[0].State)
	assert.Equal(t, 1, records[0].Frames)
}

func TestStreamingEarlyClose(t *testing.T) {
	frames := []any{&shared.ChatCompletionChunk{ID: "1"}, &shared.ChatCompletionChunk{ID: "2"}}
	var released atomic.Bool
	i := 0
	backend := clients.NewStream(func() (any, error) {
		if i == len(frames) {
			return nil, io.EOF
		}
		i++
		return frames[i-1], nil
	}, func() error {
		released.Store(true)
		return nil
	})

	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindChat, "chat_generation", &fakeClient{stream: backend}), nil, nil, rec)
	stream, err := o.HandleChatCompletionsDetectionStream(context.Background(), &ChatCompletionsDetectionTask{
		Request: &shared.ChatCompletionsRequest{Stream: true},
	})
	require.NoError(t, err)

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "1", chunk.ID)
	require.NoError(t, stream.Close())

	assert.True(t, released.Load())
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, 1, rec.all()[0].Frames)
}

func TestStreamingCloseFromAnotherGoroutine(t *testing.T) {
	hangup := make(chan struct{})
	backend := clients.NewStream(func() (any, error) {
		select {
		case <-hangup:
			return nil, errors.New("use of closed connection")
		case <-time.After(time.Millisecond):
			return &shared.ChatCompletionChunk{ID: "x"}, nil
		}
	}, func() error {
		close(hangup)
		return nil
	})

	rec := &memRecorder{}
	o := New(registryWith(t, clients.KindChat, "chat_generation", &fakeClient{stream: backend}), nil, nil, rec)
	stream, err := o.HandleChatCompletionsDetectionStream(context.Background(), &ChatCompletionsDetectionTask{
		Request: &shared.ChatCompletionsRequest{Stream: true},
	})
	require.NoError(t, err)

	first := make(chan struct{})
	finished := make(chan struct{})
	received := 0
	go func() {
		defer close(finished)
		for {
			if _, err := stream.Recv(); err != nil {
				return
			}
			received++
			if received == 1 {
				close(first)
			}
		}
	}()

	<-first
	require.NoError(t, stream.Close())
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not released after Close")
	}

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, StateCompleted, records[0].State)
	assert.GreaterOrEqual(t, records[0].Frames, 1)
	assert.LessOrEqual(t, records[0].Frames, received)
}

func TestNilTasksAreRejected(t *testing.T) {
	o := New(registryWith(t, clients.KindNlp, "nlp", &fakeClient{}), nil, nil, nil)
	ctx := context.Background()

	_, err := o.HandleTokenization(ctx, nil)
	assert.ErrorIs(t, err, ErrNilTask)
	_, err = o.HandleStreamingTextGeneration(ctx, nil)
	assert.ErrorIs(t, err, ErrNilTask)

	for _, task := range []Task{nil, (*TextGenerationTask)(nil), (*StreamingTextGenerationTask)(nil), (*ChatCompletionsDetectionTask)(nil)} {
		_, err = o.Handle(ctx, task)
		assert.ErrorIs(t, err, ErrNilTask, "%T", task)
		_, err = o.HandleStreaming(ctx, task)
		assert.ErrorIs(t, err, ErrNilTask, "%T", task)
	}
	_, err = o.HandleStreaming(ctx, (*TokenizationTask)(nil))
	assert.ErrorIs(t, err, ErrNilTask)
}

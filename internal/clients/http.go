package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"orchestrator-api/internal/config"
	"orchestrator-api/internal/health"
	"orchestrator-api/internal/metrics"
	"orchestrator-api/internal/shared"
	"orchestrator-api/internal/tracing"

	"go.uber.org/zap"
)

const (
	healthPath   = "/health"
	maxErrorBody = 64 << 10
)

// HTTPClient is one connection pool to one backend base URL.
type HTTPClient struct {
	name    string
	baseURL *url.URL
	// client bounds the whole exchange by the request timeout. streamClient
	// only bounds the wait for response headers so long streams survive.
	client       *http.Client
	streamClient *http.Client
	log          *zap.SugaredLogger
}

func NewHTTPClient(name string, defaultPort uint16, cfg config.ServiceConfig, log *zap.SugaredLogger) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client %s: %w", name, err)
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", name, err)
	}
	baseURL, err := baseURLFor(cfg, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", name, err)
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   shared.DefaultTLSTimeout,
		TLSClientConfig:       tlsConfig,
		ResponseHeaderTimeout: cfg.Timeout(),
		MaxIdleConnsPerHost:   shared.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     false,
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Infow("Created new HTTP client for backend", "client", name, "base_url", baseURL.String())

	return &HTTPClient{
		name:         name,
		baseURL:      baseURL,
		client:       &http.Client{Transport: tr, Timeout: cfg.Timeout()},
		streamClient: &http.Client{Transport: tr},
		log:          log,
	}, nil
}

func baseURLFor(cfg config.ServiceConfig, defaultPort uint16) (*url.URL, error) {
	scheme := "http"
	if cfg.TLS != nil {
		scheme = "https"
	}
	host := cfg.Hostname
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid hostname %q: %w", host, err)
		}
		scheme, host = u.Scheme, u.Hostname()
	}
	port := strconv.Itoa(int(cfg.PortOr(defaultPort)))
	return url.Parse(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, port)))
}

func buildTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
	}
	if cfg.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	if cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read ca certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("no certificates found in ca file")
		}
		out.RootCAs = pool
	}
	return out, nil
}

func (c *HTTPClient) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *HTTPClient) Endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

// Post sends body as JSON. The caller owns the response body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any, headers http.Header) (*http.Response, error) {
	return c.post(ctx, c.client, path, body, headers)
}

// PostStream is Post without an overall deadline, for long lived responses.
func (c *HTTPClient) PostStream(ctx context.Context, path string, body any, headers http.Header) (*http.Response, error) {
	return c.post(ctx, c.streamClient, path, body, headers)
}

func (c *HTTPClient) post(ctx context.Context, hc *http.Client, path string, body any, headers http.Header) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &shared.DecodeError{Message: "failed to encode request body", Err: err}
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return nil, &shared.TransportError{StatusCode: http.StatusInternalServerError, Message: "failed building request", Err: err}
	}
	r.Header = tracing.WithTraceparentHeader(ctx, headers)
	r.Header.Set("Content-Type", "application/json")

	res, err := hc.Do(r)
	if err != nil {
		te := transportError(err)
		if te.StatusCode == shared.StatusClientClosedRequest {
			return nil, errors.Join(te, shared.ErrBackendContext)
		}
		return nil, errors.Join(te, shared.ErrFailedBackendReq)
	}
	metrics.BackendResponses.WithLabelValues(c.name, path, strconv.Itoa(res.StatusCode)).Inc()
	return res, nil
}

// Health probes GET /health on this connection.
func (c *HTTPClient) Health(ctx context.Context) health.HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, shared.DefaultHealthTimeout)
	defer cancel()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(healthPath), nil)
	if err != nil {
		return health.HealthCheckResult{Status: health.StatusUnknown, Reason: err.Error()}
	}
	res, err := c.client.Do(r)
	if err != nil {
		te := transportError(err)
		status := health.StatusUnknown
		if te.StatusCode == http.StatusServiceUnavailable {
			status = health.StatusUnhealthy
		}
		c.log.Warnw("Health probe failed", "client", c.name, "url", r.URL.String(), "error", err)
		return health.HealthCheckResult{Status: status, Code: te.StatusCode, Reason: te.Message}
	}
	defer closeBody(res)
	return health.FromStatusCode(res.StatusCode)
}

// transportError classifies a failed round trip.
func transportError(err error) *shared.TransportError {
	var (
		netErr net.Error
		opErr  *net.OpError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return &shared.TransportError{StatusCode: shared.StatusClientClosedRequest, Message: "request canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &shared.TransportError{StatusCode: shared.StatusTimeout, Message: "request timed out", Err: err}
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return &shared.TransportError{StatusCode: http.StatusServiceUnavailable, Message: "backend unavailable", Err: err}
	default:
		return &shared.TransportError{StatusCode: http.StatusInternalServerError, Message: "request failed", Err: err}
	}
}

// errorMessageFunc extracts a message from a non-200 body, returning "" when
// the envelope is absent.
type errorMessageFunc func(body []byte) string

func errorFromResponse(res *http.Response, extract errorMessageFunc) error {
	message := shared.UnknownErrorMessage
	body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err == nil {
		if m := extract(body); m != "" {
			message = m
		}
	}
	return errors.Join(&shared.TransportError{StatusCode: res.StatusCode, Message: message}, shared.ErrFailedBackendReqFromCode)
}

// decodeResponse reads a unary response into T.
func decodeResponse[T any](res *http.Response, extract errorMessageFunc) (*T, error) {
	defer closeBody(res)
	if res.StatusCode != http.StatusOK {
		return nil, errorFromResponse(res, extract)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Join(transportError(err), shared.ErrFailedReadingResponse)
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &shared.DecodeError{Message: fmt.Sprintf("failed to decode %T", out), Err: err}
	}
	return &out, nil
}

// decodeStreamResponse turns a streaming response into a frame stream of T.
// A non-200 response is returned as an error and no stream is created.
func decodeStreamResponse[T any](res *http.Response, extract errorMessageFunc) (*Stream[*T], error) {
	if res.StatusCode != http.StatusOK {
		defer closeBody(res)
		return nil, errorFromResponse(res, extract)
	}
	frames := newFrameReader(res.Body)
	return NewStream(func() (*T, error) {
		payload, err := frames.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, errors.Join(transportError(err), shared.ErrFailedReadingResponse)
		}
		var out T
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, &shared.DecodeError{Message: fmt.Sprintf("malformed %T frame", out), Err: errors.Join(shared.ErrMalformedFrame, err)}
		}
		return &out, nil
	}, res.Body.Close), nil
}

func closeBody(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	_ = res.Body.Close()
}

// messageEnvelope is the {"message": "..."} error body.
func messageEnvelope(body []byte) string {
	var env shared.NlpHTTPError
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError carries a status and a message meant for the caller. Routers
// render Err verbatim, so wrap it only with text the caller may see. Extra
// detail for logs belongs in a separate error joined alongside it.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

// TransportError is a failed exchange with a backend, either a non-200
// response or a round trip that never completed. StatusCode is what the
// backend answered, or the code chosen for the failure (499 canceled, 408
// timed out, 503 unreachable). Message is the backend's own error message
// when its body had one, and UnknownErrorMessage otherwise.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (t *TransportError) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("transport error: status %d: %s: %v", t.StatusCode, t.Message, t.Err)
	}
	return fmt.Sprintf("transport error: status %d: %s", t.StatusCode, t.Message)
}

func (t *TransportError) Unwrap() error {
	return t.Err
}

// Timeout reports whether the transport gave up waiting on the backend.
func (t *TransportError) Timeout() bool {
	return t.StatusCode == StatusTimeout
}

// NotFoundError is returned when no client is registered under Kind and Name.
// It is a configuration problem rather than a transient one, so callers should
// surface it instead of retrying.
type NotFoundError struct {
	Kind string
	Name string
}

func (n *NotFoundError) Error() string {
	return fmt.Sprintf("client not found: kind=%s name=%s", n.Kind, n.Name)
}

// DecodeError is returned when a request could not be encoded or a backend
// payload did not match the expected shape. Inside a stream it ends the
// sequence after the frames that decoded cleanly.
type DecodeError struct {
	Message string
	Err     error
}

func (d *DecodeError) Error() string {
	if d.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", d.Message, d.Err)
	}
	return "decode error: " + d.Message
}

func (d *DecodeError) Unwrap() error {
	return d.Err
}

// UpstreamError is raised by layers above dispatch, such as detectors. The
// orchestrator passes it through untouched; StatusCode defaults to 500 when
// unset.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (u *UpstreamError) Error() string {
	return "upstream error: " + u.Message
}

func (u *UpstreamError) Unwrap() error {
	return u.Err
}

const (
	// UnknownErrorMessage is used when a backend error body has no readable
	// message envelope.
	UnknownErrorMessage = "unknown error occurred"

	StatusTimeout             = http.StatusRequestTimeout
	StatusClientClosedRequest = 499
)

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrInvalidRequest = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrBadRequest          = &RequestError{Err: errors.New("bad request"), StatusCode: 400}

	ErrFailedBackendReq         = &MetricsError{Msg: "failed to send http request to backend", Code: "backend_http_err"}
	ErrFailedBackendReqFromCode = &MetricsError{Msg: "backend responded with non-200", Code: "backend_http_status_err"}
	ErrFailedReadingResponse    = &MetricsError{Msg: "failed to read backend response", Code: "backend_response_err"}
	ErrMalformedFrame           = &MetricsError{Msg: "malformed stream frame", Code: "malformed_frame"}
	ErrBackendContext           = &MetricsError{Msg: "backend context canceled", Code: "backend_context_err"}
)

// MetricsError tags an error chain with a stable code for metric labels. It is
// joined next to the error that carries the detail.
type MetricsError struct {
	Msg  string
	Code string
}

func (m *MetricsError) Error() string {
	return m.String()
}

func (m *MetricsError) String() string {
	return m.Msg
}

// ErrorKind names the taxonomy bucket of err, for metric labels and logs.
func ErrorKind(err error) string {
	var (
		te *TransportError
		ne *NotFoundError
		de *DecodeError
		ue *UpstreamError
		re *RequestError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &ue):
		return "upstream"
	case errors.As(err, &re):
		return "request"
	default:
		return "internal"
	}
}

// StatusCode maps any error produced by the dispatch core to the status a
// caller-facing HTTP layer should answer with.
func StatusCode(err error) int {
	var (
		te *TransportError
		ne *NotFoundError
		de *DecodeError
		ue *UpstreamError
		re *RequestError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &de):
		return http.StatusInternalServerError
	case errors.As(err, &te):
		if te.StatusCode == 0 {
			return http.StatusInternalServerError
		}
		return te.StatusCode
	case errors.As(err, &ue):
		if ue.StatusCode == 0 {
			return http.StatusInternalServerError
		}
		return ue.StatusCode
	case errors.As(err, &re):
		return re.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

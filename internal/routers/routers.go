package routers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"orchestrator-api/internal/clients"
	"orchestrator-api/internal/ctx"
	"orchestrator-api/internal/shared"
)

// headers forwarded from the caller to the backend
var passthroughHeaders = []string{
	shared.ModelIDHeader,
	"Authorization",
}

func forwardedHeaders(c *ctx.Context) http.Header {
	out := http.Header{}
	for _, k := range passthroughHeaders {
		if v := c.Request().Header.Values(k); len(v) > 0 {
			out[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
	out.Set(shared.RequestIDHeader, c.Reqid)
	return out
}

func bindJSON(c *ctx.Context, into any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return errors.Join(shared.ErrInvalidRequest, err)
	}
	if err := json.Unmarshal(body, into); err != nil {
		return errors.Join(shared.ErrInvalidRequest, err)
	}
	return nil
}

func errorDetails(err error) string {
	var (
		te *shared.TransportError
		ue *shared.UpstreamError
		re *shared.RequestError
		de *shared.DecodeError
	)
	switch {
	case errors.As(err, &te):
		return te.Message
	case errors.As(err, &ue):
		return ue.Message
	case errors.As(err, &re):
		return re.Err.Error()
	case errors.As(err, &de):
		return "invalid response from backend"
	default:
		var nf *shared.NotFoundError
		if errors.As(err, &nf) {
			return nf.Error()
		}
		return "internal server error"
	}
}

func errorResponse(err error) shared.ErrorResponse {
	return shared.ErrorResponse{Code: shared.StatusCode(err), Details: errorDetails(err)}
}

// writeError renders err before anything has been written to the caller.
func writeError(c *ctx.Context, err error) error {
	c.LogValues.AddError(err)
	res := errorResponse(err)
	return c.JSON(res.Code, res)
}

func setupSSEHeaders(c *ctx.Context) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

func writeEvent(c *ctx.Context, event string, data []byte) error {
	if err := c.Request().Context().Err(); err != nil {
		return err
	}
	var err error
	if event != "" {
		_, err = fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data)
	} else {
		_, err = fmt.Fprintf(c.Response(), "data: %s\n\n", data)
	}
	if err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// streamSSE relays stream frames as server sent events. Headers are only sent
// once the first frame (or the first error) arrives so that a failure to
// start still gets a proper status code. A failure after that is reported as
// an "error" event.
func streamSSE(c *ctx.Context, stream *clients.Stream[any], done bool) error {
	defer stream.Close()
	c.LogValues.Stream = true

	started := false
	for frame, err := range stream.All() {
		if err != nil {
			c.LogValues.AddError(err)
			c.LogValues.LogLevel = "ERROR"
			if !started {
				return writeError(c, err)
			}
			b, _ := json.Marshal(errorResponse(err))
			_ = writeEvent(c, "error", b)
			return nil
		}
		if !started {
			setupSSEHeaders(c)
			started = true
		}
		b, err := json.Marshal(frame)
		if err != nil {
			c.LogValues.AddError(err)
			return nil
		}
		if err := writeEvent(c, "", b); err != nil {
			c.LogValues.AddError(errors.Join(errors.New("caller went away mid stream"), err))
			return nil
		}
		c.LogValues.Frames++
	}
	if !started {
		setupSSEHeaders(c)
	}
	if done {
		_ = writeEvent(c, "", []byte(shared.DoneFrame))
	}
	return nil
}

package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"transport", &TransportError{StatusCode: 422, Message: "bad"}, 422},
		{"transport without status", &TransportError{Message: "bad"}, 500},
		{"timeout", &TransportError{StatusCode: StatusTimeout}, http.StatusRequestTimeout},
		{"not found", &NotFoundError{Kind: "chat", Name: "chat_generation"}, http.StatusNotFound},
		{"decode", &DecodeError{Message: "bad frame"}, http.StatusInternalServerError},
		{"upstream", &UpstreamError{StatusCode: 409, Message: "conflict"}, 409},
		{"request", ErrBadRequest, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("dispatch: %w", &NotFoundError{Kind: "nlp", Name: "x"}), http.StatusNotFound},
		{"joined", errors.Join(&TransportError{StatusCode: 503}, ErrFailedBackendReq), 503},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "transport", ErrorKind(&TransportError{StatusCode: 500}))
	assert.Equal(t, "not_found", ErrorKind(&NotFoundError{}))
	assert.Equal(t, "decode", ErrorKind(&DecodeError{}))
	assert.Equal(t, "upstream", ErrorKind(&UpstreamError{}))
	assert.Equal(t, "internal", ErrorKind(errors.New("x")))
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{StatusCode: StatusClientClosedRequest, Message: "canceled", Err: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, err.Timeout())
	assert.True(t, (&TransportError{StatusCode: StatusTimeout}).Timeout())
	assert.Contains(t, err.Error(), "status 499")
}

func TestExtractAPIKey(t *testing.T) {
	h := http.Header{}
	_, err := ExtractAPIKey(h)
	assert.ErrorIs(t, err, ErrMissingAuth)

	h.Set("Authorization", "Token abc")
	_, err = ExtractAPIKey(h)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	h.Set("Authorization", "Bearer short")
	_, err = ExtractAPIKey(h)
	assert.ErrorIs(t, err, ErrInvalidKeyLen)

	key := "0123456789abcdef0123456789abcdef"
	h.Set("Authorization", "Bearer "+key)
	got, err := ExtractAPIKey(h)
	assert.NoError(t, err)
	assert.Equal(t, key, got)
}

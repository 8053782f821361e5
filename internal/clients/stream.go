package clients

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"orchestrator-api/internal/shared"
)

// Stream is a finite, forward-only, pull driven sequence of frames.
//
// Recv returns the next frame, or io.EOF once the backend signalled the end
// of the stream. The first error ends the sequence: it is returned once and
// every later Recv returns io.EOF. Recv must not be called concurrently;
// Close may be called from any goroutine and releases the connection.
type Stream[T any] struct {
	next    func() (T, error)
	release func() error

	ended     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewStream[T any](next func() (T, error), release func() error) *Stream[T] {
	if release == nil {
		release = func() error { return nil }
	}
	return &Stream[T]{next: next, release: release}
}

func (s *Stream[T]) Recv() (T, error) {
	var zero T
	if s.ended.Load() {
		return zero, io.EOF
	}
	v, err := s.next()
	if err == nil {
		return v, nil
	}
	// a read that failed because the consumer closed us is just the end
	if s.closed.Load() {
		s.ended.Store(true)
		return zero, io.EOF
	}
	s.ended.Store(true)
	_ = s.Close()
	return zero, err
}

func (s *Stream[T]) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.ended.Store(true)
		s.closeErr = s.release()
	})
	return s.closeErr
}

// All ranges over the remaining frames. The error, if any, is yielded as the
// last pair. Breaking out of the loop closes the stream.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for {
			v, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// MapStream converts each frame with fn. An error from fn ends the stream.
func MapStream[T, U any](s *Stream[T], fn func(T) (U, error)) *Stream[U] {
	return NewStream(func() (U, error) {
		v, err := s.Recv()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	}, s.Close)
}

// AnyStream erases the frame type.
func AnyStream[T any](s *Stream[T]) *Stream[any] {
	return MapStream(s, func(v T) (any, error) { return v, nil })
}

// frameReader splits a response body into JSON payloads. It accepts server
// sent events as well as bare newline delimited JSON. An event's "data:"
// lines are joined with newlines until the blank line that ends it; other
// event fields and comment lines are skipped. "[DONE]" ends the stream.
type frameReader struct {
	scanner *bufio.Scanner
	data    []byte
	inEvent bool
}

func newFrameReader(r io.Reader) *frameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), shared.MaxFrameSize)
	return &frameReader{scanner: scanner}
}

var (
	dataField  = []byte("data:")
	skipFields = [][]byte{[]byte("event:"), []byte("id:"), []byte("retry:")}
)

func (f *frameReader) Next() ([]byte, error) {
	for f.scanner.Scan() {
		line := bytes.TrimSpace(f.scanner.Bytes())
		if len(line) == 0 {
			if payload, ok := f.flush(); ok {
				return frame(payload)
			}
			continue
		}
		if line[0] == ':' || hasAnyPrefix(line, skipFields) {
			continue
		}
		if payload, ok := bytes.CutPrefix(line, dataField); ok {
			payload = bytes.TrimSpace(payload)
			if f.inEvent {
				f.data = append(f.data, '\n')
			}
			f.data = append(f.data, payload...)
			f.inEvent = true
			if len(f.data) > shared.MaxFrameSize {
				return nil, bufio.ErrTooLong
			}
			continue
		}
		if f.inEvent {
			// unknown field inside an event
			continue
		}
		return frame(line)
	}
	if err := f.scanner.Err(); err != nil {
		return nil, err
	}
	if payload, ok := f.flush(); ok {
		return frame(payload)
	}
	return nil, io.EOF
}

// flush hands back the buffered event data. Events with no data are dropped.
func (f *frameReader) flush() ([]byte, bool) {
	payload := bytes.TrimSpace(f.data)
	f.data = f.data[:0]
	f.inEvent = false
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

func frame(payload []byte) ([]byte, error) {
	if string(payload) == shared.DoneFrame {
		return nil, io.EOF
	}
	return bytes.Clone(payload), nil
}

func hasAnyPrefix(line []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

package dispatch

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mitchins/SmolRouter/pkg/providers"
)

// Request is one inbound request as received by the HTTP layer.
type Request struct {
	Shape      providers.Shape
	Body       []byte
	SourceHost string
	Headers    http.Header
	RequestID  string
}

// RequestContext accumulates what happened to a request. It is filled in
// as the request moves through the engine and read by the request log.
type RequestContext struct {
	RequestID  string
	SourceHost string
	Shape      providers.Shape
	Stream     bool

	// OriginalModel is the model the client asked for.
	OriginalModel string

	// ResolvedModel is the instance model after alias or route resolution.
	ResolvedModel string

	// UpstreamModel is the model sent upstream after the model map.
	UpstreamModel string

	// Route is the alias name, "route[N]" or "default".
	Route string

	Provider       string
	KeyFingerprint string
	Attempts       int
	Start          time.Time
}

// Response is the engine's answer. A non-streaming response carries its
// whole Body. A streaming response must be written with Stream or
// released with Close.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Context    *RequestContext

	stream  func(w *flushWriter) error
	cleanup func(written int64, err error)
	once    sync.Once
}

// IsStream reports whether the body is produced incrementally.
func (r *Response) IsStream() bool {
	return r.stream != nil
}

// Stream writes the body to w. Streaming bodies are flushed after every
// chunk when w implements http.Flusher. The upstream connection is
// released when Stream returns.
func (r *Response) Stream(w io.Writer) error {
	if r.stream == nil {
		_, err := w.Write(r.Body)
		return err
	}
	fw := newFlushWriter(w)
	err := r.stream(fw)
	r.finish(fw.n, err)
	return err
}

// Close releases a streaming response that will not be written.
func (r *Response) Close() {
	r.finish(0, errStreamAbandoned)
}

func (r *Response) finish(written int64, err error) {
	r.once.Do(func() {
		if r.cleanup != nil {
			r.cleanup(written, err)
		}
	})
}

// flushWriter counts bytes and flushes after each write.
type flushWriter struct {
	w io.Writer
	f http.Flusher
	n int64
}

func newFlushWriter(w io.Writer) *flushWriter {
	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw *flushWriter) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := fw.w.Write(b)
	fw.n += int64(n)
	if err != nil {
		return err
	}
	if fw.f != nil {
		fw.f.Flush()
	}
	return nil
}

// Package upstreamtest provides a fake upstream LLM server for tests. It
// answers OpenAI, Ollama and Gemini shaped requests with canned responses
// and records every request it receives.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// StreamFormat selects how StreamChunks are framed.
type StreamFormat int

const (
	// SSE frames each chunk as a "data:" event and ends with [DONE].
	SSE StreamFormat = iota

	// SSENoDone frames chunks as SSE without a terminator, as Gemini does.
	SSENoDone

	// NDJSON writes one chunk per line.
	NDJSON
)

// Response defines a canned response.
type Response struct {
	StatusCode   int
	Body         any
	Delay        time.Duration
	Headers      map[string]string
	StreamChunks []string
	StreamFormat StreamFormat

	// ChunkDelay is slept between stream chunks.
	ChunkDelay time.Duration
}

// Request is a recorded inbound request.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Server is a fake upstream.
type Server struct {
	server    *httptest.Server
	responses map[string][]Response
	requests  []Request
	mu        sync.Mutex
}

// New starts a fake upstream.
func New() *Server {
	s := &Server{responses: make(map[string][]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.Close()
}

// SetResponse answers every request to path with r.
func (s *Server) SetResponse(path string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = []Response{r}
}

// QueueResponses answers successive requests to path with rs in order.
// The last response repeats once the queue is drained.
func (s *Server) QueueResponses(path string, rs ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = append([]Response(nil), rs...)
}

// RequestCount returns the number of requests received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
	})
	queue, ok := s.responses[r.URL.Path]
	var response Response
	if ok && len(queue) > 0 {
		response = queue[0]
		if len(queue) > 1 {
			s.responses[r.URL.Path] = queue[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamChunks) > 0 {
		s.handleStream(w, r, response)
		return
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, response Response) {
	if response.StreamFormat == NDJSON {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	for _, chunk := range response.StreamChunks {
		if response.StreamFormat == NDJSON {
			fmt.Fprintf(w, "%s\n", chunk)
		} else {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		flusher.Flush()
		if response.ChunkDelay > 0 {
			select {
			case <-time.After(response.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}

	if response.StreamFormat == SSE {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

package providers

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mitchins/SmolRouter/internal/upstreamtest"
)

func newTestClient() *Client {
	return NewClient(DefaultClientConfig())
}

func TestClient_Do(t *testing.T) {
	mock := upstreamtest.New()
	defer mock.Close()

	mock.SetResponse("/v1/chat/completions", upstreamtest.Response{
		Body: upstreamtest.OpenAIResponse("Hello, world!", "gpt-4"),
	})

	p := NewProvider("openai", TypeOpenAI, mock.URL()+"/v1")
	req, _ := Normalize(ShapeOpenAIChat, []byte(`{"model":"gpt-4","messages":[{"role":"user","content":"Hello"}]}`))
	ur, err := BuildUpstream(p, req, "gpt-4", "sk-test", nil)
	if err != nil {
		t.Fatalf("BuildUpstream() error = %v", err)
	}

	resp, err := newTestClient().Do(context.Background(), p, ur)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}

	c, err := DecodeResponse(p, resp.Body)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if c.Content != "Hello, world!" {
		t.Errorf("Content = %q, want %q", c.Content, "Hello, world!")
	}

	got, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if got.Header.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Header.Get("Content-Type"))
	}
}

func TestClient_Timeout(t *testing.T) {
	mock := upstreamtest.New()
	defer mock.Close()
	mock.SetResponse("/v1/chat/completions", upstreamtest.Slow(2*time.Second))

	p := NewProvider("slow", TypeOpenAI, mock.URL())
	p.Timeout = 50 * time.Millisecond

	ur := &UpstreamRequest{Method: http.MethodPost, URL: mock.URL() + "/v1/chat/completions", Body: []byte(`{}`)}
	_, err := newTestClient().Do(context.Background(), p, ur)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Do() error = %v, want ErrTimeout", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != 50*time.Millisecond {
		t.Errorf("error = %#v, want TimeoutError with 50ms", err)
	}
}

func TestClient_CallerCancel(t *testing.T) {
	mock := upstreamtest.New()
	defer mock.Close()
	mock.SetResponse("/v1/chat/completions", upstreamtest.Slow(2*time.Second))

	p := NewProvider("slow", TypeOpenAI, mock.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ur := &UpstreamRequest{Method: http.MethodPost, URL: mock.URL() + "/v1/chat/completions", Body: []byte(`{}`)}
	_, err := newTestClient().Do(ctx, p, ur)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want caller's context error", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvider("down", TypeOllama, url)
	ur := &UpstreamRequest{Method: http.MethodPost, URL: url + "/api/chat", Body: []byte(`{}`)}
	_, err := newTestClient().Do(context.Background(), p, ur)

	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Do() error = %v, want ErrUnreachable", err)
	}
	var ue *UnreachableError
	if !errors.As(err, &ue) || !ue.Failover() {
		t.Errorf("error = %#v, want failover-worthy UnreachableError", err)
	}
}

func TestClient_DecodesCompressedBodies(t *testing.T) {
	const payload = `{"choices":[{"message":{"content":"compressed"}}]}`

	tests := []struct {
		name     string
		encoding string
		write    func(w io.Writer)
	}{
		{
			name:     "brotli",
			encoding: "br",
			write: func(w io.Writer) {
				bw := brotli.NewWriter(w)
				_, _ = bw.Write([]byte(payload))
				_ = bw.Close()
			},
		},
		{
			name:     "gzip",
			encoding: "gzip",
			write: func(w io.Writer) {
				gw := gzip.NewWriter(w)
				_, _ = gw.Write([]byte(payload))
				_ = gw.Close()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Seen-Accept-Encoding", r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", tt.encoding)
				w.Header().Set("Content-Type", "application/json")
				tt.write(w)
			}))
			defer srv.Close()

			p := NewProvider("c", TypeOpenAI, srv.URL)
			resp, err := newTestClient().Do(context.Background(), p, &UpstreamRequest{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if string(resp.Body) != payload {
				t.Errorf("Body = %q, want %q", resp.Body, payload)
			}
			if got := resp.Header.Get("X-Seen-Accept-Encoding"); got != "gzip, br" {
				t.Errorf("Accept-Encoding = %q, want %q", got, "gzip, br")
			}
			if resp.Header.Get("Content-Encoding") != "" {
				t.Error("Content-Encoding header kept after decoding")
			}
		})
	}
}

func TestClient_OpenStream(t *testing.T) {
	mock := upstreamtest.New()
	defer mock.Close()

	mock.SetResponse("/api/chat", upstreamtest.Response{
		StreamFormat: upstreamtest.NDJSON,
		StreamChunks: []string{
			upstreamtest.OllamaChatChunk("Hel", false),
			upstreamtest.OllamaChatChunk("lo", false),
			upstreamtest.OllamaChatChunk("", true),
		},
		ChunkDelay: 150 * time.Millisecond,
	})

	p := NewProvider("local", TypeOllama, mock.URL())
	// The stream outlives the header timeout.
	p.Timeout = 200 * time.Millisecond

	req, _ := Normalize(ShapeOllamaChat, []byte(`{"model":"llama3","messages":[{"role":"user","content":"hi"}]}`))
	ur, _ := BuildUpstream(p, req, "llama3", "", nil)

	resp, err := newTestClient().Open(context.Background(), p, ur)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer resp.Body.Close()

	parts, finish := collect(t, NewStreamDecoder(p, resp.Body))
	if len(parts) != 2 || parts[0]+parts[1] != "Hello" {
		t.Errorf("parts = %q, want [Hel lo]", parts)
	}
	if finish != FinishReasonStop {
		t.Errorf("finish = %q, want stop", finish)
	}
}

func TestClient_ListModels(t *testing.T) {
	mock := upstreamtest.New()
	defer mock.Close()

	mock.SetResponse("/api/tags", upstreamtest.Response{Body: upstreamtest.OllamaTags("llama3:8b", "phi3")})
	mock.SetResponse("/v1/models", upstreamtest.Response{Body: map[string]any{
		"data": []map[string]any{{"id": "local-model"}},
	}})
	mock.SetResponse("/v1beta/models", upstreamtest.Response{Body: map[string]any{
		"models": []map[string]any{
			{"name": "models/gemini-2.0-flash", "supportedGenerationMethods": []string{"generateContent", "countTokens"}},
			{"name": "models/text-embedding-004", "supportedGenerationMethods": []string{"embedContent"}},
		},
	}})

	client := newTestClient()
	ctx := context.Background()

	t.Run("ollama with dash aliases", func(t *testing.T) {
		models, err := client.ListModels(ctx, NewProvider("local", TypeOllama, mock.URL()))
		if err != nil {
			t.Fatalf("ListModels() error = %v", err)
		}
		if len(models) != 2 {
			t.Fatalf("got %d models, want 2", len(models))
		}
		if models[0].ID != "llama3:8b" || len(models[0].Aliases) != 1 || models[0].Aliases[0] != "llama3-8b" {
			t.Errorf("models[0] = %+v", models[0])
		}
		if len(models[1].Aliases) != 0 {
			t.Errorf("models[1] aliases = %v, want none", models[1].Aliases)
		}
	})

	t.Run("openai without keys is static", func(t *testing.T) {
		models, _ := client.ListModels(ctx, NewProvider("oa", TypeOpenAI, mock.URL()))
		if len(models) != len(staticOpenAIModels) || models[0].ID != "gpt-4o" {
			t.Errorf("models = %+v, want static list", models)
		}
	})

	t.Run("openai with key asks upstream", func(t *testing.T) {
		p := NewProvider("oa", TypeOpenAI, mock.URL()+"/v1")
		p.Keys = []string{"sk-a"}
		models, _ := client.ListModels(ctx, p)
		if len(models) != 1 || models[0].ID != "local-model" {
			t.Errorf("models = %+v, want [local-model]", models)
		}
	})

	t.Run("gemini filters to generateContent", func(t *testing.T) {
		p := NewProvider("g", TypeGoogleGenAI, mock.URL())
		p.Keys = []string{"AIza-a"}
		models, _ := client.ListModels(ctx, p)
		if len(models) != 1 || models[0].ID != "gemini-2.0-flash" {
			t.Errorf("models = %+v, want [gemini-2.0-flash]", models)
		}
	})

	t.Run("ollama failure is returned", func(t *testing.T) {
		_, err := client.ListModels(ctx, NewProvider("local", TypeOllama, mock.URL()+"/missing"))
		if err == nil {
			t.Error("ListModels() error = nil, want error for 404")
		}
	})
}

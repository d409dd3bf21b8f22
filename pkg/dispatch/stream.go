package dispatch

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/transform"
)

// streamResponse wraps an open 2xx upstream stream. Nothing is read until
// Stream is called. The funnel slot and the connection are held until the
// stream ends or the response is closed.
func (e *Engine) streamResponse(snap *Snapshot, p *providers.Provider, req *Request, rc *RequestContext, model, key string, upstream *http.Response, release func()) *Response {
	opts := snap.Transforms
	resp := &Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{providers.ContentType(req.Shape, true)},
			"Cache-Control": []string{"no-cache"},
		},
	}

	if req.Shape.IsOpenAI() && p.Type == providers.TypeOpenAI {
		resp.stream = func(w *flushWriter) error {
			return relaySSE(w, p, req.Shape, rc.OriginalModel, opts, upstream.Body)
		}
	} else {
		resp.stream = func(w *flushWriter) error {
			return relayTranslated(w, p, req.Shape, rc.OriginalModel, opts, upstream.Body)
		}
	}

	resp.cleanup = func(written int64, err error) {
		upstream.Body.Close()
		release()

		if err == nil {
			e.succeeded(p, model, key)
		} else if !errors.Is(err, errStreamAbandoned) {
			var streamErr *providers.StreamError
			if errors.As(err, &streamErr) {
				e.observe(p.Name, OutcomeUnreachable)
				p.RecordResult(false, err)
			}
		}

		e.recordStream(rc, req, written, err)
	}
	return resp
}

// relayTranslated decodes the upstream stream, runs the content through a
// transform pipeline and re-encodes it in the caller's shape.
func relayTranslated(w *flushWriter, p *providers.Provider, shape providers.Shape, model string, opts transform.Options, body io.Reader) error {
	dec := providers.NewStreamDecoder(p, body)
	enc := providers.NewStreamEncoder(shape, model)
	pipe := transform.NewPipeline(opts)

	var (
		finish string
		usage  *providers.Usage
	)
	end := func() error {
		if rest := pipe.Flush(); rest != "" {
			if err := w.write(enc.Chunk(rest)); err != nil {
				return err
			}
		}
		return w.write(enc.Finish(finish, usage))
	}

	for {
		d, err := dec.Next()
		if err == io.EOF {
			return end()
		}
		if err != nil {
			if rest := pipe.Flush(); rest != "" {
				_ = w.write(enc.Chunk(rest))
			}
			_ = w.write(streamErrorEvent(shape, err))
			return asStreamError(p, err)
		}

		if d.Content != "" {
			if out := pipe.Push(d.Content); out != "" {
				if err := w.write(enc.Chunk(out)); err != nil {
					return err
				}
			}
		}
		if d.FinishReason != "" {
			finish = d.FinishReason
		}
		if d.Usage != nil {
			usage = d.Usage
		}
		if d.Done {
			return end()
		}
	}
}

// relaySSE forwards an OpenAI event stream to an OpenAI caller. Each
// event keeps its upstream fields; the model is renamed and content runs
// through one pipeline per choice index. A choice's pipeline is flushed on
// its finish_reason chunk, and anything still held at [DONE] is sent as
// an extra chunk first.
func relaySSE(w *flushWriter, p *providers.Provider, shape providers.Shape, model string, opts transform.Options, body io.Reader) error {
	reader := providers.NewSSEReader(body)
	pipes := make(map[int64]*transform.Pipeline)
	var order []int64
	var last gjson.Result

	contentPaths := []string{"delta.content", "text"}
	if shape == providers.ShapeOpenAICompletion {
		contentPaths = []string{"text", "delta.content"}
	}

	pipe := func(idx int64) *transform.Pipeline {
		if pl, ok := pipes[idx]; ok {
			return pl
		}
		pl := transform.NewPipeline(opts)
		pipes[idx] = pl
		order = append(order, idx)
		return pl
	}

	drain := func() error {
		for _, idx := range order {
			rest := pipes[idx].Flush()
			if rest == "" {
				continue
			}
			chunk, err := remainderChunk(last, shape, model, idx, rest)
			if err != nil {
				return err
			}
			if err := w.write(sseData(chunk)); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		data, err := reader.Next()
		if err == io.EOF {
			return drain()
		}
		if err != nil {
			_ = drain()
			_ = w.write(streamErrorEvent(shape, err))
			return &providers.StreamError{Provider: p.Name, Message: "failed to read stream", Cause: err}
		}

		if data == "[DONE]" {
			if err := drain(); err != nil {
				return err
			}
			return w.write(providers.SSEDone)
		}
		if !gjson.Valid(data) {
			if err := w.write(sseData([]byte(data))); err != nil {
				return err
			}
			continue
		}

		chunk := []byte(data)
		parsed := gjson.ParseBytes(chunk)
		if parsed.Get("choices").IsArray() {
			last = parsed
		}

		if model != "" && parsed.Get("model").Exists() {
			if chunk, err = sjson.SetBytes(chunk, "model", model); err != nil {
				return &providers.StreamError{Provider: p.Name, Message: "failed to rewrite chunk", Cause: err}
			}
		}

		if opts.Enabled() {
			var setErr error
			parsed.Get("choices").ForEach(func(pos, choice gjson.Result) bool {
				idx := choice.Get("index").Int()
				pl := pipe(idx)
				path, ok := contentPath(choice, contentPaths...)

				text := ""
				if ok {
					text = pl.Push(choice.Get(path).String())
				}
				if fr := choice.Get("finish_reason"); fr.Exists() && fr.Type != gjson.Null {
					text += pl.Flush()
					if !ok && text != "" {
						path, ok = contentPaths[0], true
					}
				}
				if ok {
					chunk, setErr = sjson.SetBytes(chunk, "choices."+strconv.Itoa(int(pos.Int()))+"."+path, text)
				}
				return setErr == nil
			})
			if setErr != nil {
				return &providers.StreamError{Provider: p.Name, Message: "failed to rewrite chunk", Cause: setErr}
			}
		}

		if err := w.write(sseData(chunk)); err != nil {
			return err
		}
	}
}

// remainderChunk builds a content-only chunk for choice idx, modelled on
// the last chunk the upstream sent.
func remainderChunk(last gjson.Result, shape providers.Shape, model string, idx int64, content string) ([]byte, error) {
	choice := map[string]any{"index": idx, "finish_reason": nil}
	object := "chat.completion.chunk"
	if shape == providers.ShapeOpenAICompletion {
		choice["text"] = content
		object = "text_completion"
	} else {
		choice["delta"] = map[string]any{"content": content}
	}

	chunk := map[string]any{
		"id":      last.Get("id").String(),
		"object":  object,
		"created": last.Get("created").Int(),
		"model":   model,
		"choices": []any{choice},
	}
	return json.Marshal(chunk)
}

func sseData(b []byte) []byte {
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	return append(out, "\n\n"...)
}

// streamErrorEvent reports a failure inside an already started stream in
// the caller's framing.
func streamErrorEvent(shape providers.Shape, err error) []byte {
	msg := "upstream stream failed"
	var streamErr *providers.StreamError
	if errors.As(err, &streamErr) && streamErr.Message != "" {
		msg = streamErr.Message
	}

	if shape.IsOpenAI() {
		b, _ := json.Marshal(map[string]any{
			"error": map[string]string{"message": msg, "type": "upstream_error", "code": "stream_error"},
		})
		return sseData(b)
	}
	b, _ := json.Marshal(map[string]string{"error": msg})
	return append(b, '\n')
}

func asStreamError(p *providers.Provider, err error) error {
	var streamErr *providers.StreamError
	if errors.As(err, &streamErr) {
		return err
	}
	return &providers.StreamError{Provider: p.Name, Message: "invalid stream", Cause: err}
}

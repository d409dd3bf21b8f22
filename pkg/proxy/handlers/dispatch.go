package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/proxy"
	"github.com/mitchins/SmolRouter/pkg/proxy/types"
	"github.com/mitchins/SmolRouter/pkg/telemetry/logging"
)

// Dispatcher routes one request to an upstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

// DispatchHandler serves one completion endpoint. The body is passed to
// the Dispatcher untouched, tagged with the endpoint's shape.
type DispatchHandler struct {
	dispatcher Dispatcher
	shape      providers.Shape
	maxBody    int64
	logger     *slog.Logger
}

// NewDispatchHandler creates a handler for shape. Bodies larger than
// maxBody bytes are rejected with 413; zero means no limit.
func NewDispatchHandler(d Dispatcher, shape providers.Shape, maxBody int64) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: d,
		shape:      shape,
		maxBody:    maxBody,
		logger:     slog.Default().With("component", "handlers", "shape", shape.String()),
	}
}

// ServeHTTP implements http.Handler.
func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			types.CodeMethodNotAllowed,
		)
		h.writeError(ctx, w, http.StatusMethodNotAllowed, errResp)
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errResp := types.NewInvalidRequestError(
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				"",
				types.CodeRequestTooLarge,
			)
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, errResp)
			return
		}
		h.logger.WarnContext(ctx, "failed to read request body", "error", err)
		h.writeError(ctx, w, http.StatusBadRequest, types.NewInvalidRequestError("failed to read request body", "", types.CodeInvalidJSON))
		return
	}

	req := &dispatch.Request{
		Shape:      h.shape,
		Body:       body,
		SourceHost: logging.GetSourceHost(ctx),
		Headers:    r.Header.Clone(),
		RequestID:  logging.GetRequestID(ctx),
	}

	resp, err := h.dispatcher.Dispatch(ctx, req)
	if err != nil {
		info, werr := proxy.WriteError(w, err)
		if werr != nil {
			h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
		}
		h.logger.DebugContext(ctx, "request failed", "code", info.Code, "error", err)
		return
	}

	if resp.IsStream() {
		h.stream(ctx, w, resp)
		return
	}

	if err := proxy.WriteRawResponse(w, resp.StatusCode, resp.Header, resp.Body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

func (h *DispatchHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	src := io.Reader(r.Body)
	if h.maxBody > 0 {
		src = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	return io.ReadAll(src)
}

// stream writes a streaming response. Once the status line is out, a
// failure can only end the stream; the engine has already written an
// error event in the caller's format.
func (h *DispatchHandler) stream(ctx context.Context, w http.ResponseWriter, resp *dispatch.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	if err := resp.Stream(w); err != nil {
		h.logger.WarnContext(ctx, "stream ended with error", "error", err)
	}
}

func (h *DispatchHandler) writeError(ctx context.Context, w http.ResponseWriter, status int, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, status, errResp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

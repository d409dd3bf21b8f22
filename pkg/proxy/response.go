package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/proxy/types"
)

// WriteJSONResponse writes data as a JSON response.
//
// Example usage:
//
//	if err := WriteJSONResponse(w, http.StatusOK, tags); err != nil {
//	    log.Error("failed to write response", "error", err)
//	}
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteRawResponse writes a body that is already encoded.
func WriteRawResponse(w http.ResponseWriter, statusCode int, header http.Header, body []byte) error {
	for k, vs := range header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an error envelope with the given status.
func WriteErrorResponse(w http.ResponseWriter, statusCode int, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, statusCode, errResp)
}

// WriteError describes err and writes it. Quota errors carry a
// Retry-After header.
func WriteError(w http.ResponseWriter, err error) (dispatch.ErrorInfo, error) {
	info := dispatch.Describe(err)
	if ra := types.RetryAfterSeconds(info.RetryAfter); ra != "" {
		w.Header().Set("Retry-After", ra)
	}
	return info, WriteErrorResponse(w, info.Status, types.FromInfo(info))
}

package upstreamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIResponse builds an OpenAI chat completion body.
func OpenAIResponse(content, model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// OpenAIStreamChunk builds one OpenAI chat.completion.chunk payload.
func OpenAIStreamChunk(delta, finishReason string) string {
	choice := map[string]any{
		"index": 0,
		"delta": map[string]any{"content": delta},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	} else {
		choice["finish_reason"] = nil
	}
	return mustJSON(map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gpt-4",
		"choices": []map[string]any{choice},
	})
}

// OllamaChatResponse builds a non-streaming Ollama chat body.
func OllamaChatResponse(content, model string) map[string]any {
	return map[string]any{
		"model":             model,
		"created_at":        time.Now().UTC().Format(time.RFC3339Nano),
		"message":           map[string]any{"role": "assistant", "content": content},
		"done":              true,
		"done_reason":       "stop",
		"prompt_eval_count": 7,
		"eval_count":        5,
	}
}

// OllamaChatChunk builds one Ollama chat NDJSON record.
func OllamaChatChunk(content string, done bool) string {
	record := map[string]any{
		"model":      "llama3",
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"message":    map[string]any{"role": "assistant", "content": content},
		"done":       done,
	}
	if done {
		record["done_reason"] = "stop"
		record["prompt_eval_count"] = 7
		record["eval_count"] = 5
	}
	return mustJSON(record)
}

// OllamaTags builds an /api/tags body.
func OllamaTags(names ...string) map[string]any {
	models := make([]map[string]any, 0, len(names))
	for _, n := range names {
		models = append(models, map[string]any{"name": n, "model": n})
	}
	return map[string]any{"models": models}
}

// GeminiResponse builds a generateContent body.
func GeminiResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     4,
			"candidatesTokenCount": 6,
			"totalTokenCount":      10,
		},
		"modelVersion": "gemini-2.0-flash",
	}
}

// GeminiChunk builds one streamGenerateContent SSE payload.
func GeminiChunk(text, finishReason string) string {
	candidate := map[string]any{
		"content": map[string]any{
			"role":  "model",
			"parts": []map[string]any{{"text": text}},
		},
	}
	if finishReason != "" {
		candidate["finishReason"] = finishReason
	}
	return mustJSON(map[string]any{"candidates": []map[string]any{candidate}})
}

// ErrorResponse builds an OpenAI-style error response.
func ErrorResponse(statusCode int, message string) Response {
	return Response{
		StatusCode: statusCode,
		Body: map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    "invalid_request_error",
				"code":    statusCode,
			},
		},
	}
}

// RateLimitError builds a 429 response with a Retry-After header.
func RateLimitError(retryAfter int) Response {
	r := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	r.Headers = map[string]string{"Retry-After": fmt.Sprintf("%d", retryAfter)}
	return r
}

// GeminiQuotaError builds Google's RESOURCE_EXHAUSTED answer.
func GeminiQuotaError(retryDelay string) Response {
	return Response{
		StatusCode: http.StatusTooManyRequests,
		Body: map[string]any{
			"error": map[string]any{
				"code":    429,
				"message": "You exceeded your current quota, please check your plan and billing details.",
				"status":  "RESOURCE_EXHAUSTED",
				"details": []map[string]any{
					{
						"@type":      "type.googleapis.com/google.rpc.RetryInfo",
						"retryDelay": retryDelay,
					},
				},
			},
		},
	}
}

// GeminiInvalidKey builds Google's answer to a bad API key.
func GeminiInvalidKey() Response {
	return Response{
		StatusCode: http.StatusBadRequest,
		Body: map[string]any{
			"error": map[string]any{
				"code":    400,
				"message": "API key not valid. Please pass a valid API key.",
				"status":  "INVALID_ARGUMENT",
			},
		},
	}
}

// AuthError builds a 401 response.
func AuthError() Response {
	return ErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// ServerError builds a 500 response.
func ServerError() Response {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// Slow delays a successful OpenAI answer by delay.
func Slow(delay time.Duration) Response {
	return Response{
		StatusCode: http.StatusOK,
		Body:       OpenAIResponse("slow", "gpt-4"),
		Delay:      delay,
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

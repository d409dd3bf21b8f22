// Package types defines the error envelope the router returns to HTTP
// clients.
//
// Successful bodies are produced by the dispatch engine in the caller's
// own shape (OpenAI or Ollama) and never pass through these types. Errors
// always use the OpenAI form, which both OpenAI SDKs and Ollama clients
// surface as a readable message.
package types

// Package proxy is SmolRouter's inbound HTTP layer.
//
// Clients speak either the OpenAI API or the Ollama API. The handlers in
// the handlers subpackage read the body, hand it to the dispatch engine
// unchanged, and write back whatever shape the engine produced. The
// subpackages are:
//
//   - handlers: one handler per endpoint, plus model listings
//   - middleware: panic recovery, request IDs, source host and access logging
//   - types: the OpenAI error envelope
//
// This package holds the response writers the handlers share. Router
// assembly and lifecycle live in the server package.
//
// # Errors
//
// Every router error is written with WriteError, which maps it through
// dispatch.Describe:
//
//	resp, err := engine.Dispatch(ctx, req)
//	if err != nil {
//	    proxy.WriteError(w, err)
//	    return
//	}
//
// A request rejected by an upstream is not an error. The engine returns
// it as a Response carrying the upstream status and body, which the
// client receives as-is.
package proxy

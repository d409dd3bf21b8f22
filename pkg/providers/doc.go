// Package providers holds the upstream side of the router: the provider
// registry, the wire codecs for each provider type, and the HTTP client
// that talks to upstreams.
//
// # Provider types
//
// The set of provider types is closed: openai, ollama and google-genai.
// Every direction of translation is a single exhaustive switch over that
// set (BuildUpstream, DecodeResponse, NewStreamDecoder), and over the four
// caller shapes (Normalize, Denormalize, NewStreamEncoder).
//
// # Request lifecycle
//
//	req, err := providers.Normalize(providers.ShapeOllamaChat, body)
//	if err != nil {
//	    // *MalformedRequestError: answer 400, never fail over
//	}
//
//	ur, err := providers.BuildUpstream(p, req, upstreamModel, key, r.Header)
//	resp, err := client.Do(ctx, p, ur)
//
//	switch providers.Classify(resp.StatusCode, resp.Body) {
//	case providers.OutcomeOK:
//	    c, _ := providers.DecodeResponse(p, resp.Body)
//	    out, _ := providers.Denormalize(req.Shape, req.Model, c)
//	case providers.OutcomeQuota:
//	    delay := providers.ParseRetryDelay(resp.Header, resp.Body)
//	    ...
//	}
//
// # Errors
//
// Transport failures are *UnreachableError, timeouts *TimeoutError, and
// non-2xx answers *StatusError. All three report Failover() so the routing
// executor can decide whether to try the next instance; a StatusError
// classified as a client error does not fail over.
package providers

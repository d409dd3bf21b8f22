// Package dispatch turns one inbound LLM request into upstream calls.
//
// An Engine holds the current routing Snapshot behind an atomic pointer
// together with the state that outlives reloads: the quota ledger, the
// google-genai funnel, the upstream HTTP client and the request log.
//
// Dispatch resolves the requested model to an ordered instance list
// (an alias, or the single upstream chosen by the route table), walks it
// with a routing.Executor and, for each instance, selects a key, sends the
// request and classifies the answer. Quota and credential rejections move
// to the next key of the same provider; transport and server failures move
// to the next instance.
//
// Successful answers are translated back to the caller's protocol shape
// with the transform pipeline applied. Streaming answers are relayed chunk
// by chunk by Response.Stream.
package dispatch

// Package transform rewrites completion text on its way back to the client.
//
// Transforms run identically over a whole response body and over a stream of
// deltas. Each Stage holds back the smallest amount of text needed to decide
// whether a marker is starting, so the concatenated output never depends on
// how the upstream split its chunks.
//
// # Stages
//
//   - ThinkStripper: removes <think>...</think> reasoning blocks
//   - JSONFenceScrubber: unwraps ```json fences and [json] ... [json] fences
//
// # Basic Usage
//
//	p := transform.NewPipeline(transform.Options{StripThink: true, StripJSONFences: true})
//	for delta := range deltas {
//		w.Write([]byte(p.Push(delta)))
//	}
//	w.Write([]byte(p.Flush()))
//
// A Pipeline is stateful and must not be shared between responses.
package transform

package transform

import "strings"

type fence struct {
	open  string
	close string
}

var jsonFences = []fence{
	{open: "```json", close: "```"},
	{open: "[json]", close: "[json]"},
}

// JSONFenceScrubber unwraps JSON that a model wrapped in a markdown fence.
//
// A complete fence is replaced by its inner content, trimmed of surrounding
// whitespace and otherwise verbatim. The unwrapped content is scanned again
// together with what follows it, so a fence nested in another or formed by
// the unwrapping is resolved in the same pass and scrubbing is idempotent.
// Text outside fences passes through untouched. A fence that is still open
// at end of stream is emitted verbatim.
type JSONFenceScrubber struct {
	openers []string

	buf string
	// lead is the end of the text before the open fence that could still
	// begin an opener once the fence is unwrapped.
	lead   string
	active int // index into jsonFences, -1 when outside a fence
}

// NewJSONFenceScrubber creates a JSONFenceScrubber.
func NewJSONFenceScrubber() *JSONFenceScrubber {
	openers := make([]string, len(jsonFences))
	for i, f := range jsonFences {
		openers[i] = f.open
	}
	return &JSONFenceScrubber{openers: openers, active: -1}
}

// Push implements Stage.
func (j *JSONFenceScrubber) Push(s string) string {
	j.buf += s
	var out strings.Builder

	for {
		if j.active >= 0 {
			f := jsonFences[j.active]
			idx := strings.Index(j.buf, f.close)
			if idx < 0 {
				break
			}
			j.buf = j.lead + strings.TrimSpace(j.buf[:idx]) + j.buf[idx+len(f.close):]
			j.lead = ""
			j.active = -1
			continue
		}

		idx, which := firstMarker(j.buf, j.openers)
		if idx < 0 {
			hold := heldPrefix(j.buf, j.openers...)
			out.WriteString(j.buf[:len(j.buf)-hold])
			j.buf = j.buf[len(j.buf)-hold:]
			break
		}
		head := j.buf[:idx]
		hold := heldPrefix(head, j.openers...)
		out.WriteString(head[:len(head)-hold])
		j.lead = head[len(head)-hold:]
		j.buf = j.buf[idx+len(j.openers[which]):]
		j.active = which
	}

	return out.String()
}

// Flush implements Stage.
func (j *JSONFenceScrubber) Flush() string {
	out := j.buf
	if j.active >= 0 {
		out = j.lead + jsonFences[j.active].open + j.buf
	}
	j.buf = ""
	j.lead = ""
	j.active = -1
	return out
}

// ScrubJSONFences unwraps every complete JSON fence in s.
func ScrubJSONFences(s string) string {
	j := NewJSONFenceScrubber()
	return j.Push(s) + j.Flush()
}

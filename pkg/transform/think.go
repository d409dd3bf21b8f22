package transform

import "strings"

const (
	// DefaultThinkOpen is the marker that starts a reasoning block.
	DefaultThinkOpen = "<think>"

	// DefaultThinkClose is the marker that ends a reasoning block.
	DefaultThinkClose = "</think>"
)

// ThinkStripper removes reasoning blocks delimited by an open and a close
// marker.
//
// Whitespace directly after a removed block is dropped when the output so
// far is empty or already ends in whitespace, so "Hello <think>x</think>
// world" becomes "Hello world". A block still open at end of stream is
// emitted verbatim, open marker included.
type ThinkStripper struct {
	open  string
	close string

	buf    string
	inside bool
	block  strings.Builder

	trimNext bool
	wrote    bool
	lastWS   bool
}

// NewThinkStripper creates a ThinkStripper. Empty markers fall back to the
// defaults.
func NewThinkStripper(open, close string) *ThinkStripper {
	if open == "" {
		open = DefaultThinkOpen
	}
	if close == "" {
		close = DefaultThinkClose
	}
	return &ThinkStripper{open: open, close: close}
}

// Push implements Stage.
func (t *ThinkStripper) Push(s string) string {
	t.buf += s
	var out strings.Builder

	for {
		if t.inside {
			idx := strings.Index(t.buf, t.close)
			if idx < 0 {
				hold := heldPrefix(t.buf, t.close)
				t.block.WriteString(t.buf[:len(t.buf)-hold])
				t.buf = t.buf[len(t.buf)-hold:]
				break
			}
			t.buf = t.buf[idx+len(t.close):]
			t.inside = false
			t.block.Reset()
			t.trimNext = true
			continue
		}

		if t.trimNext {
			if !t.wrote || t.lastWS {
				t.buf = strings.TrimLeftFunc(t.buf, func(r rune) bool {
					return r < 0x80 && isSpace(byte(r))
				})
				if t.buf == "" {
					break
				}
			}
			t.trimNext = false
		}

		idx := strings.Index(t.buf, t.open)
		if idx < 0 {
			hold := heldPrefix(t.buf, t.open)
			t.emit(&out, t.buf[:len(t.buf)-hold])
			t.buf = t.buf[len(t.buf)-hold:]
			break
		}
		t.emit(&out, t.buf[:idx])
		t.buf = t.buf[idx+len(t.open):]
		t.inside = true
	}

	return out.String()
}

// Flush implements Stage.
func (t *ThinkStripper) Flush() string {
	var out string
	if t.inside {
		out = t.open + t.block.String() + t.buf
	} else {
		out = t.buf
	}
	*t = ThinkStripper{open: t.open, close: t.close}
	return out
}

func (t *ThinkStripper) emit(out *strings.Builder, s string) {
	if s == "" {
		return
	}
	out.WriteString(s)
	t.wrote = true
	t.lastWS = isSpace(s[len(s)-1])
}

// StripThink removes reasoning blocks from a complete text.
func StripThink(s string) string {
	t := NewThinkStripper("", "")
	return t.Push(s) + t.Flush()
}

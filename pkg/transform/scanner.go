package transform

import "strings"

// Stage is one step of a transform pipeline.
//
// Push consumes the next piece of text and returns whatever can be emitted
// safely. Flush is called once at end of stream and returns anything still
// held back. A Stage is reset after Flush and may be reused.
type Stage interface {
	Push(s string) string
	Flush() string
}

// heldPrefix returns the length of the longest suffix of buf that is a
// proper prefix of any marker. That suffix may still grow into a marker,
// so it cannot be emitted yet.
func heldPrefix(buf string, markers ...string) int {
	longest := 0
	for _, m := range markers {
		n := len(m) - 1
		if n > len(buf) {
			n = len(buf)
		}
		for k := n; k > longest; k-- {
			if strings.HasSuffix(buf, m[:k]) {
				longest = k
				break
			}
		}
	}
	return longest
}

// firstMarker returns the earliest index of any marker in buf and the
// marker found there. It returns -1 when none occurs.
func firstMarker(buf string, markers []string) (int, int) {
	at, which := -1, -1
	for i, m := range markers {
		idx := strings.Index(buf, m)
		if idx < 0 {
			continue
		}
		if at < 0 || idx < at {
			at, which = idx, i
		}
	}
	return at, which
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

package routing

import (
	"regexp"
	"strings"
)

// Pattern matches model names. A pattern written as /body/ is a regular
// expression searched anywhere in the name. Anything else must match the
// name exactly.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// CompilePattern compiles s. Regex errors surface here so that they are
// reported when configuration loads, never per request.
func CompilePattern(s string) (*Pattern, error) {
	body, ok := regexBody(s)
	if !ok {
		return &Pattern{raw: s}, nil
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, &PatternError{Pattern: s, Err: err}
	}
	return &Pattern{raw: s, re: re}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(s string) *Pattern {
	p, err := CompilePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether name matches the pattern. A nil Pattern matches
// everything.
func (p *Pattern) Match(name string) bool {
	if p == nil {
		return true
	}
	if p.re != nil {
		return p.re.MatchString(name)
	}
	return p.raw == name
}

// IsRegex reports whether the pattern was written as /regex/.
func (p *Pattern) IsRegex() bool {
	return p != nil && p.re != nil
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.raw
}

func regexBody(s string) (string, bool) {
	if len(s) < 2 || !strings.HasPrefix(s, "/") || !strings.HasSuffix(s, "/") {
		return "", false
	}
	return s[1 : len(s)-1], true
}

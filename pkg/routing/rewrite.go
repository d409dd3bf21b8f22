package routing

import (
	"regexp"
	"strings"
)

// Mapping is one model_map entry as written in configuration.
type Mapping struct {
	From string
	To   string
}

type regexMapping struct {
	pattern  *Pattern
	template string
}

// Rewriter maps requested model names to upstream model names.
//
// Exact entries are consulted first. Regex entries are then tried in
// configuration order, and the first one that matches produces the new
// name by expanding its replacement against the match. \1 style
// back-references are accepted in replacements.
type Rewriter struct {
	exact map[string]string
	regex []regexMapping
}

var backref = regexp.MustCompile(`\\(\d+)`)

// NewRewriter compiles mappings. It fails on the first invalid regex.
func NewRewriter(mappings []Mapping) (*Rewriter, error) {
	rw := &Rewriter{exact: make(map[string]string)}
	for _, m := range mappings {
		p, err := CompilePattern(m.From)
		if err != nil {
			return nil, err
		}
		if !p.IsRegex() {
			if _, dup := rw.exact[m.From]; !dup {
				rw.exact[m.From] = m.To
			}
			continue
		}
		rw.regex = append(rw.regex, regexMapping{pattern: p, template: toTemplate(m.To)})
	}
	return rw, nil
}

// Rewrite returns the upstream name for model and whether it changed.
func (rw *Rewriter) Rewrite(model string) (string, bool) {
	if rw == nil {
		return model, false
	}
	if to, ok := rw.exact[model]; ok {
		return to, to != model
	}
	for _, m := range rw.regex {
		loc := m.pattern.re.FindStringSubmatchIndex(model)
		if loc == nil {
			continue
		}
		out := string(m.pattern.re.ExpandString(nil, m.template, model, loc))
		return out, out != model
	}
	return model, false
}

// Len returns the number of mapping entries.
func (rw *Rewriter) Len() int {
	if rw == nil {
		return 0
	}
	return len(rw.exact) + len(rw.regex)
}

// toTemplate converts \N back-references to Go's ${N} form. Literal $ is
// escaped first so it cannot be read as a group reference.
func toTemplate(s string) string {
	s = strings.ReplaceAll(s, "$", "$$")
	return backref.ReplaceAllString(s, `$${${1}}`)
}

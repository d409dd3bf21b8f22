package transform

// Options selects which stages a Pipeline runs.
type Options struct {
	// StripThink enables reasoning block removal.
	StripThink bool

	// ThinkOpen and ThinkClose override the reasoning markers.
	ThinkOpen  string
	ThinkClose string

	// StripJSONFences enables JSON fence unwrapping.
	StripJSONFences bool
}

// Enabled reports whether any stage is selected.
func (o Options) Enabled() bool {
	return o.StripThink || o.StripJSONFences
}

// Pipeline chains stages. Output of each stage feeds the next.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds a Pipeline for one response.
func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{}
	if opts.StripThink {
		p.stages = append(p.stages, NewThinkStripper(opts.ThinkOpen, opts.ThinkClose))
	}
	if opts.StripJSONFences {
		p.stages = append(p.stages, NewJSONFenceScrubber())
	}
	return p
}

// Push runs s through every stage.
func (p *Pipeline) Push(s string) string {
	for _, st := range p.stages {
		s = st.Push(s)
	}
	return s
}

// Flush drains every stage in order. Text released by an earlier stage's
// flush is pushed through the later stages before they flush.
func (p *Pipeline) Flush() string {
	var out string
	for i, st := range p.stages {
		if i > 0 {
			out = st.Push(out)
		}
		out += st.Flush()
	}
	return out
}

// Apply runs a complete text through a fresh pipeline.
func Apply(opts Options, s string) string {
	if !opts.Enabled() {
		return s
	}
	p := NewPipeline(opts)
	return p.Push(s) + p.Flush()
}

package routing

// Route sends matching requests to an upstream.
//
// Every declared criterion must match. A criterion left empty always
// matches, so a Route with no criteria catches everything.
type Route struct {
	// SourceHost must equal the client's host when set.
	SourceHost string

	// Model must match the requested model when set.
	Model *Pattern

	// Upstream is a server name or a base URL.
	Upstream string

	// ModelOverride replaces the requested model when set.
	ModelOverride string
}

// Matches reports whether the route applies to host and model.
func (r *Route) Matches(host, model string) bool {
	if r.SourceHost != "" && r.SourceHost != host {
		return false
	}
	return r.Model.Match(model)
}

// Target is the result of route resolution.
type Target struct {
	// Upstream is a server name or a base URL. Empty when nothing matched
	// and no default upstream is configured.
	Upstream string

	// Model is the model to send, after any route override.
	Model string

	// Route is the matched route, nil when the default upstream was used.
	Route *Route

	// Index is the matched route's position in the table, -1 for default.
	Index int
}

// Table is an ordered list of routes. The first match wins.
type Table struct {
	routes          []Route
	defaultUpstream string
}

// NewTable creates a route table. The slice is copied.
func NewTable(routes []Route, defaultUpstream string) *Table {
	rs := make([]Route, len(routes))
	copy(rs, routes)
	return &Table{routes: rs, defaultUpstream: defaultUpstream}
}

// Match returns the first route matching host and model.
func (t *Table) Match(host, model string) (*Route, int, bool) {
	for i := range t.routes {
		if t.routes[i].Matches(host, model) {
			return &t.routes[i], i, true
		}
	}
	return nil, -1, false
}

// Resolve picks the upstream for a request, falling back to the default
// upstream when no route matches.
func (t *Table) Resolve(host, model string) Target {
	r, i, ok := t.Match(host, model)
	if !ok {
		return Target{Upstream: t.defaultUpstream, Model: model, Index: -1}
	}
	target := Target{Upstream: r.Upstream, Model: model, Route: r, Index: i}
	if r.ModelOverride != "" {
		target.Model = r.ModelOverride
	}
	return target
}

// DefaultUpstream returns the fallback upstream.
func (t *Table) DefaultUpstream() string {
	return t.defaultUpstream
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}

package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/limits/funnel"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
	"github.com/mitchins/SmolRouter/pkg/transform"
)

// Snapshot is an immutable view of the routing configuration. A request
// uses the snapshot it loaded when it started, whatever reloads happen
// while it runs.
type Snapshot struct {
	Routes          *routing.Table
	Aliases         *routing.Resolver
	Registry        *providers.Registry
	Rewriter        *routing.Rewriter
	Transforms      transform.Options
	DefaultUpstream string
	SourceHostFrom  string
	Funnel          funnel.Config

	// Quotas holds the key pool of every provider that has keys.
	Quotas map[string]quota.ProviderQuota

	servers map[string]string
	adhoc   map[string]*providers.Provider
	configs map[string]config.ProviderConfig
}

// Plan is the ordered list of instances a request will try.
type Plan struct {
	// Label names the plan in logs and metrics: the alias name, "route[N]"
	// or "default".
	Label string

	// Alias is set when the model was an alias.
	Alias bool

	Instances []routing.Instance
}

// BuildSnapshot compiles cfg. cfg is expected to have passed
// config.Validate; BuildSnapshot still reports anything it cannot build.
func BuildSnapshot(cfg *config.Config) (*Snapshot, error) {
	s := &Snapshot{
		DefaultUpstream: cfg.DefaultUpstream,
		SourceHostFrom:  cfg.Routing.SourceHostFrom,
		Quotas:          make(map[string]quota.ProviderQuota),
		servers:         make(map[string]string, len(cfg.Servers)),
		adhoc:           make(map[string]*providers.Provider),
		configs:         make(map[string]config.ProviderConfig, len(cfg.Providers)),
		Transforms: transform.Options{
			StripThink:      cfg.Transforms.ThinkStripping(),
			ThinkOpen:       cfg.Transforms.ThinkOpen,
			ThinkClose:      cfg.Transforms.ThinkClose,
			StripJSONFences: cfg.Transforms.StripJSONFences,
		},
		Funnel: funnel.Config{
			Enabled:       cfg.Funnel.IsEnabled(),
			MaxConcurrent: cfg.Funnel.MaxConcurrent,
			MaxPerWindow:  cfg.Funnel.MaxRequestsPerWindow,
			Window:        cfg.Funnel.Window,
		},
	}

	list := make([]*providers.Provider, 0, len(cfg.Providers))
	for i, pc := range cfg.Providers {
		p, q, err := buildProvider(pc, cfg.Quota.ErrorThreshold)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("providers[%d]", i), Err: err}
		}
		list = append(list, p)
		s.configs[pc.Name] = pc
		if len(q.Keys) > 0 {
			s.Quotas[pc.Name] = q
		}
	}
	registry, err := providers.NewRegistry(list)
	if err != nil {
		return nil, &ConfigError{Field: "providers", Err: err}
	}
	s.Registry = registry

	for name, url := range cfg.Servers {
		s.servers[name] = url
	}

	routes := make([]routing.Route, 0, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		r := routing.Route{
			SourceHost:    rc.Match.SourceHost,
			Upstream:      rc.Route.Upstream,
			ModelOverride: rc.Route.Model,
		}
		if rc.Match.Model != "" {
			pattern, err := routing.CompilePattern(rc.Match.Model)
			if err != nil {
				return nil, &ConfigError{Field: fmt.Sprintf("routes[%d].match.model", i), Err: err}
			}
			r.Model = pattern
		}
		if err := s.ensureUpstream(r.Upstream); err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("routes[%d].route.upstream", i), Err: err}
		}
		routes = append(routes, r)
	}
	if cfg.DefaultUpstream != "" {
		if err := s.ensureUpstream(cfg.DefaultUpstream); err != nil {
			return nil, &ConfigError{Field: "default_upstream", Err: err}
		}
	}
	s.Routes = routing.NewTable(routes, cfg.DefaultUpstream)

	aliases := make(map[string][]routing.Instance, len(cfg.Aliases))
	for name, list := range cfg.Aliases {
		if len(list) == 0 {
			return nil, &ConfigError{Field: "aliases." + name, Err: routing.ErrNoInstances}
		}
		insts := make([]routing.Instance, 0, len(list))
		for j, ic := range list {
			if err := s.ensureUpstream(ic.Server); err != nil {
				return nil, &ConfigError{Field: fmt.Sprintf("aliases.%s[%d].server", name, j), Err: err}
			}
			insts = append(insts, routing.Instance{Server: ic.Server, Model: ic.Model})
		}
		aliases[name] = insts
	}
	s.Aliases = routing.NewResolver(aliases)

	rewriter, err := routing.NewRewriter(cfg.ModelMap.Mappings())
	if err != nil {
		return nil, &ConfigError{Field: "model_map", Err: err}
	}
	s.Rewriter = rewriter

	return s, nil
}

func buildProvider(pc config.ProviderConfig, errorThreshold int) (*providers.Provider, quota.ProviderQuota, error) {
	var q quota.ProviderQuota

	typ, err := providers.ParseType(pc.Type)
	if err != nil {
		return nil, q, err
	}

	var fileKeys []string
	if pc.APIKeysFile != "" {
		fileKeys, err = quota.LoadKeysFile(pc.APIKeysFile)
		if err != nil {
			return nil, q, err
		}
	}

	policy, err := quota.NewPolicy(pc.Quota.ResetTimezone, pc.Quota.ResetWindow)
	if err != nil {
		return nil, q, err
	}

	p := providers.NewProvider(pc.Name, typ, pc.URL)
	p.Priority = pc.Priority
	p.Timeout = pc.Timeout
	p.Keys = quota.MergeKeys(pc.APIKeys, fileKeys)
	p.DailyLimit = pc.MaxRequestsPerDay
	if !pc.IsEnabled() {
		p.SetEnabled(false)
	}

	q = quota.ProviderQuota{
		Keys:           p.Keys,
		DailyLimit:     p.DailyLimit,
		Policy:         policy,
		ErrorThreshold: errorThreshold,
	}
	return p, q, nil
}

// ensureUpstream makes ref resolvable: a provider name, a servers entry or
// a base URL. Servers and URLs get an OpenAI-compatible provider of their
// own.
func (s *Snapshot) ensureUpstream(ref string) error {
	if ref == "" {
		return fmt.Errorf("upstream is required")
	}
	if _, ok := s.Registry.Get(ref); ok {
		return nil
	}
	if _, ok := s.adhoc[ref]; ok {
		return nil
	}
	url, ok := s.servers[ref]
	if !ok {
		if !isURL(ref) {
			return fmt.Errorf("%w %q", ErrUnknownServer, ref)
		}
		url = ref
	}
	p := providers.NewProvider(ref, providers.TypeOpenAI, url)
	p.Timeout = providers.DefaultTimeout
	s.adhoc[ref] = p
	return nil
}

// Provider returns the provider an instance's server refers to.
func (s *Snapshot) Provider(ref string) (*providers.Provider, bool) {
	if p, ok := s.Registry.Get(ref); ok {
		return p, true
	}
	p, ok := s.adhoc[ref]
	return p, ok
}

// Plan resolves model into the instances to try. Aliases take precedence
// over routes.
func (s *Snapshot) Plan(host, model string) (*Plan, error) {
	if insts, ok := s.Aliases.Resolve(model); ok {
		return &Plan{Label: model, Alias: true, Instances: insts}, nil
	}

	target := s.Routes.Resolve(host, model)
	if target.Upstream == "" {
		return nil, &NoUpstreamError{Model: model}
	}
	label := "default"
	if target.Index >= 0 {
		label = fmt.Sprintf("route[%d]", target.Index)
	}
	return &Plan{
		Label:     label,
		Instances: []routing.Instance{{Server: target.Upstream, Model: target.Model}},
	}, nil
}

// UpstreamModel applies the model map to model.
func (s *Snapshot) UpstreamModel(model string) string {
	if mapped, ok := s.Rewriter.Rewrite(model); ok {
		return mapped
	}
	return model
}

// Servers returns the named servers, sorted by name.
func (s *Snapshot) Servers() []string {
	names := make([]string, 0, len(s.servers))
	for name := range s.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerURL returns the base URL of a named server.
func (s *Snapshot) ServerURL(name string) (string, bool) {
	url, ok := s.servers[name]
	return url, ok
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

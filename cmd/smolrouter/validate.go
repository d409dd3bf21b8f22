package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mitchins/SmolRouter/pkg/cli"
	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/providers"
)

var validateFlags struct {
	probe        bool
	probeTimeout time.Duration
	output       string
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file",
		Long: `Load the configuration, build the routing tables and print a summary.

With --probe, every enabled provider is asked for its model list to check
that it is reachable and its credentials work.

Examples:
  smolrouter validate --config config.yaml
  smolrouter validate --probe
  smolrouter validate --output json`,
		RunE: validateConfig,
	}

	cmd.Flags().BoolVar(&validateFlags.probe, "probe", false, "query every enabled provider's model list")
	cmd.Flags().DurationVar(&validateFlags.probeTimeout, "probe-timeout", 10*time.Second, "timeout per provider probe")
	cmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json")
	return cmd
}

// configSummary is validate's JSON output.
type configSummary struct {
	Valid           bool                `json:"valid"`
	DefaultUpstream string              `json:"default_upstream,omitempty"`
	Servers         map[string]string   `json:"servers,omitempty"`
	Routes          int                 `json:"routes"`
	Aliases         map[string][]string `json:"aliases,omitempty"`
	Providers       []providerSummary   `json:"providers,omitempty"`
	ModelMap        int                 `json:"model_map"`
	Errors          []string            `json:"errors,omitempty"`
}

type providerSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
	Keys     int    `json:"keys"`
	Enabled  bool   `json:"enabled"`
	Models   int    `json:"models,omitempty"`
	Probe    string `json:"probe,omitempty"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	p := cli.NewPrinter(out, noColor)

	cfg, snap, err := buildSnapshot()
	if err != nil {
		if format == cli.FormatJSON {
			_ = cli.WriteJSON(out, configSummary{Errors: errorLines(err)})
		} else {
			p.Fail("Configuration invalid: %s", cfgFile)
			for _, line := range errorLines(err) {
				p.Line("  %s", line)
			}
		}
		return err
	}

	summary := summarize(cfg, snap)
	if validateFlags.probe {
		probeProviders(cmd.Context(), snap, summary.Providers, format == cli.FormatText, out)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(out, summary)
	}

	printSummary(p, summary)
	for _, ps := range summary.Providers {
		if ps.Probe != "" && ps.Probe != "ok" {
			return cli.NewCommandError("validate", fmt.Errorf("provider %s failed its probe", ps.Name))
		}
	}
	return nil
}

// buildSnapshot loads the config and compiles it the way the router does.
func buildSnapshot() (*config.Config, *dispatch.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	snap, err := dispatch.BuildSnapshot(cfg)
	if err != nil {
		return nil, nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, snap, nil
}

func errorLines(err error) []string {
	var verr config.ValidationError
	if errors.As(err, &verr) {
		lines := make([]string, 0, len(verr.Errors))
		for _, fe := range verr.Errors {
			lines = append(lines, fe.Error())
		}
		return lines
	}
	return []string{err.Error()}
}

func summarize(cfg *config.Config, snap *dispatch.Snapshot) configSummary {
	s := configSummary{
		Valid:           true,
		DefaultUpstream: snap.DefaultUpstream,
		Servers:         cfg.Servers,
		Routes:          len(cfg.Routes),
		ModelMap:        len(cfg.ModelMap),
		Aliases:         make(map[string][]string),
	}
	for _, name := range snap.Aliases.Names() {
		insts, _ := snap.Aliases.Resolve(name)
		for _, inst := range insts {
			s.Aliases[name] = append(s.Aliases[name], inst.String())
		}
	}
	for _, pr := range snap.Registry.All() {
		s.Providers = append(s.Providers, providerSummary{
			Name:     pr.Name,
			Type:     string(pr.Type),
			Endpoint: pr.Endpoint,
			Keys:     len(pr.Keys),
			Enabled:  pr.Enabled(),
		})
	}
	return s
}

// probeProviders lists each enabled provider's models concurrently and
// records the outcome in summaries.
func probeProviders(ctx context.Context, snap *dispatch.Snapshot, summaries []providerSummary, report bool, out io.Writer) {
	client := providers.NewClient(providers.DefaultClientConfig())
	defer client.CloseIdleConnections()

	var progress cli.ProgressReporter
	if report {
		progress = cli.NewProgressReporter(out, noColor)
		progress.Start(len(snap.Registry.Enabled()))
	}

	var wg sync.WaitGroup
	for i := range summaries {
		ps := &summaries[i]
		pr, ok := snap.Registry.Get(ps.Name)
		if !ok || !pr.Enabled() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, validateFlags.probeTimeout)
			defer cancel()

			start := time.Now()
			models, err := client.ListModels(pctx, pr)
			if err != nil {
				ps.Probe = err.Error()
			} else {
				ps.Probe = "ok"
				ps.Models = len(models)
			}
			if progress != nil {
				progress.Step(ps.Name, err, time.Since(start))
			}
		}()
	}
	wg.Wait()

	if progress != nil {
		progress.Finish()
	}
}

func printSummary(p *cli.Printer, s configSummary) {
	p.Success("Configuration valid: %s", cfgFile)

	p.Heading("Routing")
	if s.DefaultUpstream != "" {
		p.Field("default upstream", s.DefaultUpstream)
	} else {
		p.Warn("no default upstream: unmatched models are rejected")
	}
	p.Field("routes", s.Routes)
	p.Field("model map entries", s.ModelMap)

	if len(s.Servers) > 0 {
		p.Heading("Servers")
		names := make([]string, 0, len(s.Servers))
		for name := range s.Servers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Field(name, s.Servers[name])
		}
	}

	if len(s.Aliases) > 0 {
		p.Heading("Aliases")
		names := make([]string, 0, len(s.Aliases))
		for name := range s.Aliases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Field(name, fmt.Sprint(s.Aliases[name]))
		}
	}

	if len(s.Providers) > 0 {
		p.Heading("Providers")
		for _, ps := range s.Providers {
			state := "enabled"
			if !ps.Enabled {
				state = "disabled"
			}
			line := fmt.Sprintf("%s %s, %d keys, %s", ps.Type, ps.Endpoint, ps.Keys, state)
			if ps.Probe == "ok" {
				line += fmt.Sprintf(", %d models", ps.Models)
			}
			p.Field(ps.Name, line)
		}
	}
}

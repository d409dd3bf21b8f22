package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mitchins/SmolRouter/pkg/cli"
	"github.com/mitchins/SmolRouter/pkg/dispatch"
)

var routeFlags struct {
	model  string
	host   string
	output string
}

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show where a request would be sent",
		Long: `Resolve a model name and source host against the configuration without
sending anything. Prints the alias instances or the matching route, and the
model name each upstream would receive after the model map.

Examples:
  smolrouter route --model coder
  smolrouter route --model llama3 --host 10.0.0.5
  smolrouter route --model gpt-4 --output json`,
		RunE: showRoute,
	}

	cmd.Flags().StringVarP(&routeFlags.model, "model", "m", "", "requested model name (required)")
	cmd.Flags().StringVar(&routeFlags.host, "host", "", "source host of the request")
	cmd.Flags().StringVarP(&routeFlags.output, "output", "o", "text", "output format: text, json")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

// routeResult is route's JSON output.
type routeResult struct {
	Model     string        `json:"model"`
	Host      string        `json:"host,omitempty"`
	Plan      string        `json:"plan"`
	Alias     bool          `json:"alias"`
	Instances []routeTarget `json:"instances"`
}

type routeTarget struct {
	Server        string `json:"server"`
	Endpoint      string `json:"endpoint"`
	Type          string `json:"type"`
	Model         string `json:"model"`
	UpstreamModel string `json:"upstream_model"`
}

func showRoute(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(routeFlags.output)
	if err != nil {
		return err
	}

	_, snap, err := buildSnapshot()
	if err != nil {
		return err
	}

	result, err := resolveRoute(snap, routeFlags.host, routeFlags.model)
	if err != nil {
		var noUpstream *dispatch.NoUpstreamError
		if errors.As(err, &noUpstream) {
			cli.NewPrinter(cmd.OutOrStdout(), noColor).Fail("%v", err)
		}
		return cli.NewCommandError("route", err)
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(cmd.OutOrStdout(), result)
	}

	p := cli.NewPrinter(cmd.OutOrStdout(), noColor)
	kind := "route"
	if result.Alias {
		kind = "alias"
	}
	p.Heading("%s -> %s %s", result.Model, kind, result.Plan)
	for i, t := range result.Instances {
		p.Line("  %d. %s (%s %s)", i+1, t.Server, t.Type, t.Endpoint)
		p.Field("model", t.Model)
		if t.UpstreamModel != t.Model {
			p.Field("sent as", t.UpstreamModel)
		}
	}
	return nil
}

func resolveRoute(snap *dispatch.Snapshot, host, model string) (routeResult, error) {
	plan, err := snap.Plan(host, model)
	if err != nil {
		return routeResult{}, err
	}

	result := routeResult{Model: model, Host: host, Plan: plan.Label, Alias: plan.Alias}
	for _, inst := range plan.Instances {
		resolved := inst.Model
		if resolved == "" {
			resolved = model
		}
		t := routeTarget{
			Server:        inst.Server,
			Model:         resolved,
			UpstreamModel: snap.UpstreamModel(resolved),
		}
		pr, ok := snap.Provider(inst.Server)
		if !ok {
			return routeResult{}, fmt.Errorf("instance %s has no upstream", inst)
		}
		t.Endpoint = pr.Endpoint
		t.Type = string(pr.Type)
		result.Instances = append(result.Instances, t)
	}
	return result, nil
}

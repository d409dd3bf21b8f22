package dispatch

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/transform"
)

// render turns a non-streaming upstream body into the caller's shape.
//
// OpenAI answers to OpenAI callers keep every field the upstream sent;
// only the content and the model name are rewritten. Everything else goes
// through the provider-neutral Completion.
func render(snap *Snapshot, p *providers.Provider, shape providers.Shape, model string, body []byte) ([]byte, error) {
	if shape.IsOpenAI() && p.Type == providers.TypeOpenAI {
		return passThrough(p, snap.Transforms, model, body)
	}

	c, err := providers.DecodeResponse(p, body)
	if err != nil {
		return nil, err
	}
	c.Content = transform.Apply(snap.Transforms, c.Content)
	return providers.Denormalize(shape, model, c)
}

func passThrough(p *providers.Provider, opts transform.Options, model string, body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, &providers.ParseError{Provider: p.Name, Cause: fmt.Errorf("response is not valid JSON")}
	}

	out := body
	var err error
	if opts.Enabled() {
		gjson.GetBytes(body, "choices").ForEach(func(idx, choice gjson.Result) bool {
			path, ok := contentPath(choice, "message.content", "text")
			if !ok {
				return true
			}
			text := transform.Apply(opts, choice.Get(path).String())
			out, err = sjson.SetBytes(out, "choices."+strconv.Itoa(int(idx.Int()))+"."+path, text)
			return err == nil
		})
		if err != nil {
			return nil, &providers.ParseError{Provider: p.Name, Cause: err}
		}
	}

	if model != "" && gjson.GetBytes(out, "model").Exists() {
		out, err = sjson.SetBytes(out, "model", model)
		if err != nil {
			return nil, &providers.ParseError{Provider: p.Name, Cause: err}
		}
	}
	return out, nil
}

// contentPath returns the first of paths that holds a string in choice.
func contentPath(choice gjson.Result, paths ...string) (string, bool) {
	for _, path := range paths {
		if v := choice.Get(path); v.Type == gjson.String {
			return path, true
		}
	}
	return "", false
}

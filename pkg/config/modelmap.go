package config

import (
	"fmt"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/mitchins/SmolRouter/pkg/routing"
)

// ModelMapping rewrites From to To. From is an exact name or a /regex/.
type ModelMapping struct {
	From string
	To   string
}

// ModelMap is an ordered list of model rewrites. In YAML it is written as
// a mapping; document order is kept.
type ModelMap []ModelMapping

// UnmarshalYAML decodes a mapping while keeping its key order.
func (m *ModelMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: model_map must be a mapping", node.Line)
	}
	out := make(ModelMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: model_map entries must be strings", k.Line)
		}
		out = append(out, ModelMapping{From: k.Value, To: v.Value})
	}
	*m = out
	return nil
}

// MarshalYAML encodes the map as an ordered mapping.
func (m ModelMap) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.From},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.To},
		)
	}
	return node, nil
}

// Mappings converts the map for routing.NewRewriter.
func (m ModelMap) Mappings() []routing.Mapping {
	out := make([]routing.Mapping, len(m))
	for i, e := range m {
		out[i] = routing.Mapping{From: e.From, To: e.To}
	}
	return out
}

// ParseModelMapJSON parses the MODEL_MAP environment format, a JSON
// object, keeping key order.
func ParseModelMapJSON(s string) (ModelMap, error) {
	if !gjson.Valid(s) {
		return nil, fmt.Errorf("MODEL_MAP is not valid JSON")
	}
	root := gjson.Parse(s)
	if !root.IsObject() {
		return nil, fmt.Errorf("MODEL_MAP must be a JSON object")
	}
	var out ModelMap
	var err error
	root.ForEach(func(k, v gjson.Result) bool {
		if v.Type != gjson.String {
			err = fmt.Errorf("MODEL_MAP value for %q must be a string", k.String())
			return false
		}
		out = append(out, ModelMapping{From: k.String(), To: v.String()})
		return true
	})
	return out, err
}

package output

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter writes the same envelope as JSONFormatter as YAML.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer. Items are routed
// through JSON first so values with custom JSON encodings, such as ordered
// save objects, keep their shape.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *Result) error {
	doc := buildDocument(r)
	items, err := viaJSON(doc.Items)
	if err != nil {
		return err
	}

	var node yaml.Node
	if err := node.Encode(struct {
		Title    string   `yaml:"title,omitempty"`
		Source   string   `yaml:"source,omitempty"`
		Items    any      `yaml:"items"`
		Summary  []Field  `yaml:"summary,omitempty"`
		Warnings []string `yaml:"warnings,omitempty"`
	}{doc.Title, doc.Source, items, doc.Summary, doc.Warnings}); err != nil {
		return err
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return err
	}
	return encoder.Close()
}

// viaJSON re-decodes v into a yaml.Node so object key order from custom
// MarshalJSON implementations is preserved.
func viaJSON(v any) (*yaml.Node, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	resetStyle(&node)
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return node.Content[0], nil
	}
	return &node, nil
}

// resetStyle switches JSON's flow and quoted styles back to block style.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}

func init() {
	Register("yaml", func() Formatter { return &YAMLFormatter{} })
}

var _ Formatter = (*YAMLFormatter)(nil)

package output

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// document is the envelope of the json and yaml formats.
type document struct {
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Source   string   `json:"source,omitempty" yaml:"source,omitempty"`
	Items    any      `json:"items" yaml:"items"`
	Summary  []Field  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func buildDocument(r *Result) document {
	return document{
		Title:    r.Title,
		Source:   r.Source,
		Items:    r.structured(),
		Summary:  r.Summary,
		Warnings: r.Warnings,
	}
}

// JSONFormatter writes a single indented JSON document.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(buildDocument(r))
}

// JSONLFormatter writes one compact JSON object per item, suitable for jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	items := reflect.ValueOf(r.structured())
	if items.Kind() != reflect.Slice {
		data, err := json.Marshal(items.Interface())
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
		return nil
	}
	for i := 0; i < items.Len(); i++ {
		data, err := json.Marshal(items.Index(i).Interface())
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
)

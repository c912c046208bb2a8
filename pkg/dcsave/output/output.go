// Package output renders command results (screenshot listings, backup
// lists, change reports, history) in several formats selectable at runtime.
//
// Every command builds a Result: column headers with string rows for the
// text formats, plus an optional structured Items value that the json,
// jsonl and yaml formatters encode instead of the rows.
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Field is a labelled value shown in headers and footers.
type Field struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Result is the data handed to a formatter.
type Result struct {
	// Title names the listing, e.g. "Screenshots".
	Title string

	// Source is the directory or file the listing describes.
	Source string

	// Columns are the header names of Rows.
	Columns []string

	// Rows holds display cells, one slice per row, aligned with Columns.
	Rows [][]string

	// Items is the structured form for machine-readable formats. When nil
	// the rows are emitted as objects keyed by lower-cased column names.
	Items any

	// Summary is shown below the table.
	Summary []Field

	// Warnings are shown after the summary.
	Warnings []string

	// EmptyText replaces the table when there are no rows.
	EmptyText string
}

// Records converts the rows into column-keyed maps.
func (r *Result) Records() []map[string]string {
	out := make([]map[string]string, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]string, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				rec[columnKey(col)] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// structured returns Items, or the records when Items is unset.
func (r *Result) structured() any {
	if r.Items != nil {
		return r.Items
	}
	return r.Records()
}

func columnKey(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}

// Formatter renders a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds a factory, replacing any formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

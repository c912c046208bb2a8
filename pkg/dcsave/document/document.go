// Package document implements the partial-edit view of a save document.
//
// Configured fields are collapsed to a placeholder string in the rendered
// text. When the edited text is expanded for saving, every collapsed field
// that still holds exactly the placeholder gets its original value back; a
// field the user changed keeps the user's value. If the user removes the
// field's location altogether, the original value is dropped. That is the
// one way collapsing can lose data, and Expand reports it.
package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// Defaults.
const DefaultPlaceholder = "<collapsed>"

// DefaultFields are collapsed when Options.Fields is nil.
var DefaultFields = []string{"record", "_tap_effect", "initialVars"}

var (
	// ErrUnsavedChanges is returned when a mode switch would discard edits
	// and the caller did not confirm.
	ErrUnsavedChanges = errors.New("unsaved changes")

	// ErrNotObject is returned when the document root is not an object.
	ErrNotObject = errors.New("document root is not an object")

	// ErrPathNotFound is returned by Get, Set and Delete for missing paths.
	ErrPathNotFound = errors.New("path not found")
)

// State is the editing state of a document relative to its last render.
type State int

// Document states.
const (
	StateCollapsed State = iota
	StateEdited
	StateFull
)

func (s State) String() string {
	switch s {
	case StateCollapsed:
		return "collapsed"
	case StateEdited:
		return "edited"
	case StateFull:
		return "full"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures collapsing and rendering.
type Options struct {
	// Fields are dotted paths or bare key names to collapse.
	Fields []string
	// Placeholder replaces collapsed values.
	Placeholder string
	// InlineLists names keys whose array values render on one line.
	InlineLists []string
}

// ExpandReport lists what happened to each collapsed path during Expand.
type ExpandReport struct {
	Restored    []string
	Overwritten []string
	Dropped     []string
}

// Document is one open save document.
type Document struct {
	opts      Options
	inline    map[string]bool
	value     *savecodec.Object
	collapsed []string
	full      bool
	rendered  string
}

// New opens v, which must be an object.
func New(v savecodec.Value, opts Options) (*Document, error) {
	root, ok := v.(*savecodec.Object)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, savecodec.TypeName(v))
	}
	if opts.Fields == nil {
		opts.Fields = DefaultFields
	}
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	d := &Document{opts: opts, inline: make(map[string]bool, len(opts.InlineLists))}
	for _, k := range opts.InlineLists {
		d.inline[k] = true
	}
	d.reset(root)
	return d, nil
}

func (d *Document) reset(root *savecodec.Object) {
	d.value = root
	d.collapsed = resolveFields(root, d.opts.Fields)
	d.rendered = render(d.display(), d.inline)
}

// resolveFields maps configured names to dotted paths present in root. A
// dotted name is used as is. A bare name is the top-level key when present.
// Otherwise it falls back to "<k>.<name>" for the first top-level object k
// that has it, which the game's own viewer never did. Parents whose key
// contains a '.' are skipped there since the path could not address them.
func resolveFields(root *savecodec.Object, fields []string) []string {
	var out []string
	add := func(p string) {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	for _, f := range fields {
		if f == "" {
			continue
		}
		if strings.Contains(f, ".") {
			if _, ok := lookup(root, splitPath(f)); ok {
				add(f)
			}
			continue
		}
		if root.Has(f) {
			add(f)
			continue
		}
		for _, k := range root.Keys() {
			v, _ := root.Get(k)
			if strings.Contains(k, ".") {
				continue
			}
			if child, ok := v.(*savecodec.Object); ok && child.Has(f) {
				add(k + "." + f)
				break
			}
		}
	}
	return out
}

// CollapsedPaths returns the resolved paths hidden behind the placeholder.
func (d *Document) CollapsedPaths() []string { return slices.Clone(d.collapsed) }

// Placeholder returns the placeholder text.
func (d *Document) Placeholder() string { return d.opts.Placeholder }

// Value returns the baseline document. Callers must not modify it.
func (d *Document) Value() *savecodec.Object { return d.value }

// Full reports whether the document is in raw (uncollapsed) mode.
func (d *Document) Full() bool { return d.full }

func (d *Document) display() savecodec.Value {
	if d.full || len(d.collapsed) == 0 {
		return d.value
	}
	shown := savecodec.Clone(d.value)
	for _, p := range d.collapsed {
		assign(shown, splitPath(p), d.opts.Placeholder)
	}
	return shown
}

// Render returns the text for the current mode and makes it the baseline
// for change tracking.
func (d *Document) Render() string {
	d.rendered = render(d.display(), d.inline)
	return d.rendered
}

// Rendered returns the last rendered text.
func (d *Document) Rendered() string { return d.rendered }

// TouchedLines returns the 1-based numbers of lines in current that differ
// from the rendered text.
func (d *Document) TouchedLines(current string) []int {
	orig := strings.Split(d.rendered, "\n")
	cur := strings.Split(current, "\n")
	var touched []int
	for i, line := range cur {
		if i >= len(orig) || line != orig[i] {
			touched = append(touched, i+1)
		}
	}
	return touched
}

// HasUnsavedChanges reports whether current differs from the rendered text.
func (d *Document) HasUnsavedChanges(current string) bool {
	return current != d.rendered
}

// State classifies current against the rendered text.
func (d *Document) State(current string) State {
	switch {
	case d.HasUnsavedChanges(current):
		return StateEdited
	case d.full:
		return StateFull
	default:
		return StateCollapsed
	}
}

// SetRawMode switches between the collapsed and the full view. If current
// holds unsaved edits, confirm must approve discarding them; otherwise
// nothing changes and ErrUnsavedChanges is returned. It reports whether the
// mode changed. On a change the document is re-rendered, so Rendered holds
// the text of the new mode.
func (d *Document) SetRawMode(full bool, current string, confirm func() bool) (bool, error) {
	if full == d.full {
		return false, nil
	}
	if d.HasUnsavedChanges(current) && (confirm == nil || !confirm()) {
		return false, ErrUnsavedChanges
	}
	d.full = full
	d.Render()
	return true, nil
}

// Expand parses edited text and restores collapsed values the user left
// untouched. In full mode the text is kept as is, except that a collapsed
// path still holding exactly the placeholder gets its original value back,
// so text rendered before a switch to full mode cannot save the placeholder.
func (d *Document) Expand(edited string) (savecodec.Value, ExpandReport, error) {
	var rep ExpandReport
	v, err := savecodec.ParseJSON([]byte(edited))
	if err != nil {
		return nil, rep, err
	}
	root, ok := v.(*savecodec.Object)
	if !ok {
		return nil, rep, fmt.Errorf("%w: got %s", ErrNotObject, savecodec.TypeName(v))
	}
	for _, p := range d.collapsed {
		segs := splitPath(p)
		cur, ok := lookup(root, segs)
		if d.full {
			if s, isStr := cur.(string); ok && isStr && s == d.opts.Placeholder {
				orig, _ := lookup(d.value, segs)
				assign(root, segs, savecodec.Clone(orig))
				rep.Restored = append(rep.Restored, p)
			}
			continue
		}
		if !ok {
			rep.Dropped = append(rep.Dropped, p)
			logging.Get("document").Warn("collapsed field removed by edit, original value dropped", "path", p)
			continue
		}
		if s, isStr := cur.(string); isStr && s == d.opts.Placeholder {
			orig, _ := lookup(d.value, segs)
			assign(root, segs, savecodec.Clone(orig))
			rep.Restored = append(rep.Restored, p)
			continue
		}
		rep.Overwritten = append(rep.Overwritten, p)
	}
	return root, rep, nil
}

// Commit makes v the new baseline and re-renders it.
func (d *Document) Commit(v savecodec.Value) error {
	root, ok := v.(*savecodec.Object)
	if !ok {
		return fmt.Errorf("%w: got %s", ErrNotObject, savecodec.TypeName(v))
	}
	d.reset(root)
	return nil
}

// Save expands edited, writes it to path and commits it.
func (d *Document) Save(path, edited string) (ExpandReport, error) {
	v, rep, err := d.Expand(edited)
	if err != nil {
		return rep, err
	}
	if err := savecodec.WriteFile(path, v); err != nil {
		return rep, err
	}
	logging.Get("document").Info("saved document", "path", path,
		"restored", len(rep.Restored), "overwritten", len(rep.Overwritten), "dropped", len(rep.Dropped))
	return rep, d.Commit(v)
}

// Get returns the baseline value at a dotted path.
func (d *Document) Get(path string) (savecodec.Value, error) {
	v, ok := lookup(d.value, splitPath(path))
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return v, nil
}

// Set replaces the baseline value at a dotted path. The parent must exist.
func (d *Document) Set(path string, v savecodec.Value) error {
	if !assign(d.value, splitPath(path), v) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	d.reset(d.value)
	return nil
}

// Delete removes the baseline value at a dotted path.
func (d *Document) Delete(path string) error {
	if !remove(d.value, splitPath(path)) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	d.reset(d.value)
	return nil
}

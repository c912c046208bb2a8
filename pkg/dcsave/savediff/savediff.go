// Package savediff compares two decoded save documents and describes what
// changed, one line per change.
package savediff

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// Epsilon is the tolerance for comparing non-integral numbers.
const Epsilon = 1e-10

// Kind classifies a change.
type Kind int

// Change kinds.
const (
	Removed Kind = iota
	Added
	Changed
	TypeChanged // same value, different JSON kind or number form
	Appended    // list gained an item
	Dropped     // list lost an item
)

var kindNames = [...]string{"removed", "added", "changed", "type-changed", "appended", "dropped"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText lets structured output show the name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Change is one difference between two documents.
type Change struct {
	Kind Kind            `json:"kind" yaml:"kind"`
	Path string          `json:"path" yaml:"path"`
	Old  savecodec.Value `json:"old,omitempty" yaml:"old,omitempty"`
	New  savecodec.Value `json:"new,omitempty" yaml:"new,omitempty"`
}

// String renders the change as a display line:
//
//	-path
//	+path = value
//	path old→new
//	path old (int)→new (float)
//	path.append(value)
//	path.remove(value)
func (c Change) String() string {
	switch c.Kind {
	case Removed:
		return "-" + c.Path
	case Added:
		return "+" + c.Path + " = " + Format(c.New)
	case TypeChanged:
		return fmt.Sprintf("%s %s (%s)→%s (%s)", c.Path, Format(c.Old), kindOf(c.Old), Format(c.New), kindOf(c.New))
	case Appended:
		return c.Path + ".append(" + Format(c.New) + ")"
	case Dropped:
		return c.Path + ".remove(" + Format(c.Old) + ")"
	default:
		return c.Path + " " + Format(c.Old) + "→" + Format(c.New)
	}
}

// Lines renders changes with String.
func Lines(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.String()
	}
	return out
}

// Comparator diffs documents, skipping ignored variables.
type Comparator struct {
	ignored  []string
	patterns []glob.Glob
}

// New returns a Comparator that skips the given variables. A name matches a
// key at any depth or, when dotted, a full path and everything below it.
// Names holding glob syntax such as "sf.tmp_*" or "**.clock" match full
// paths, with '.' as the separator. A pattern that fails to compile is
// treated as a literal name.
func New(ignored ...string) *Comparator {
	c := &Comparator{}
	for _, name := range ignored {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(c.ignored, name) {
			continue
		}
		c.ignored = append(c.ignored, name)
		if strings.ContainsAny(name, "*?[{") {
			if g, err := glob.Compile(name, '.'); err == nil {
				c.patterns = append(c.patterns, g)
			}
		}
	}
	return c
}

// ParseIgnored splits a comma-separated variable list.
func ParseIgnored(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Ignored returns the configured names.
func (c *Comparator) Ignored() []string { return slices.Clone(c.ignored) }

// Compare returns the changes from old to cur. Non-object roots compare as
// empty objects. Keys are visited in old's order, then keys only cur has.
func (c *Comparator) Compare(old, cur savecodec.Value) []Change {
	oldObj, _ := old.(*savecodec.Object)
	curObj, _ := cur.(*savecodec.Object)
	return c.compareObjects("", oldObj, curObj)
}

func (c *Comparator) compareObjects(prefix string, old, cur *savecodec.Object) []Change {
	if old == nil {
		old = savecodec.NewObject(0)
	}
	if cur == nil {
		cur = savecodec.NewObject(0)
	}

	var changes []Change
	visit := func(key string) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if c.ignore(path, key) {
			return
		}
		ov, inOld := old.Get(key)
		nv, inNew := cur.Get(key)
		switch {
		case !inNew:
			changes = append(changes, Change{Kind: Removed, Path: path, Old: ov})
		case !inOld:
			if obj, ok := nv.(*savecodec.Object); ok {
				changes = append(changes, c.compareObjects(path, nil, obj)...)
			} else {
				changes = append(changes, Change{Kind: Added, Path: path, New: nv})
			}
		default:
			changes = append(changes, c.compareValues(path, ov, nv)...)
		}
	}

	for _, k := range old.Keys() {
		visit(k)
	}
	for _, k := range cur.Keys() {
		if !old.Has(k) {
			visit(k)
		}
	}
	return changes
}

func (c *Comparator) compareValues(path string, old, cur savecodec.Value) []Change {
	if valuesEqual(old, cur) {
		if kindOf(old) != kindOf(cur) {
			return []Change{{Kind: TypeChanged, Path: path, Old: old, New: cur}}
		}
		return nil
	}

	oldObj, ok1 := old.(*savecodec.Object)
	curObj, ok2 := cur.(*savecodec.Object)
	if ok1 && ok2 {
		return c.compareObjects(path, oldObj, curObj)
	}

	oldList, ok1 := old.([]any)
	curList, ok2 := cur.([]any)
	if ok1 && ok2 {
		return compareLists(path, oldList, curList)
	}

	return []Change{{Kind: Changed, Path: path, Old: old, New: cur}}
}

func (c *Comparator) ignore(path, key string) bool {
	for _, name := range c.ignored {
		if name == key || name == path || strings.HasPrefix(path, name+".") {
			return true
		}
	}
	for _, g := range c.patterns {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// compareLists reports membership differences: an item of cur absent from
// old is appended, an item of old absent from cur is removed. Reordering
// alone produces no change.
func compareLists(path string, old, cur []any) []Change {
	oldSet := make(map[string]bool, len(old))
	for _, item := range old {
		oldSet[memberKey(item)] = true
	}
	curSet := make(map[string]bool, len(cur))
	for _, item := range cur {
		curSet[memberKey(item)] = true
	}

	var changes []Change
	for _, item := range cur {
		if !oldSet[memberKey(item)] {
			changes = append(changes, Change{Kind: Appended, Path: path, New: item})
		}
	}
	for _, item := range old {
		if !curSet[memberKey(item)] {
			changes = append(changes, Change{Kind: Dropped, Path: path, Old: item})
		}
	}
	return changes
}

// valuesEqual is tolerant equality: numbers compare by value, and scalars of
// different kinds compare by their text.
func valuesEqual(a, b savecodec.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	an, aNum := a.(json.Number)
	bn, bNum := b.(json.Number)
	if aNum && bNum {
		return numbersEqual(an, bn)
	}

	switch a.(type) {
	case *savecodec.Object, []any:
		return savecodec.Equal(a, b)
	}
	switch b.(type) {
	case *savecodec.Object, []any:
		return false
	}

	if _, ok := a.(bool); ok {
		if _, ok := b.(bool); ok {
			return a == b
		}
		if bNum {
			return false
		}
	} else if _, ok := b.(bool); ok && aNum {
		return false
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	return scalarText(a) == scalarText(b)
}

func numbersEqual(a, b json.Number) bool {
	if isInt(a) && isInt(b) {
		return savecodec.NumberEqual(a, b)
	}
	af, errA := a.Float64()
	bf, errB := b.Float64()
	if errA != nil || errB != nil {
		return a == b
	}
	if af == math.Trunc(af) && bf == math.Trunc(bf) {
		return af == bf
	}
	return math.Abs(af-bf) < Epsilon
}

func isInt(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

// kindOf names the kind used in type-change lines. Numbers split into int
// and float by their written form.
func kindOf(v savecodec.Value) string {
	if n, ok := v.(json.Number); ok {
		if isInt(n) {
			return "int"
		}
		return "float"
	}
	return savecodec.TypeName(v)
}

func scalarText(v savecodec.Value) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return formatNumber(t)
	}
	return fmt.Sprint(v)
}

// memberKey returns a key for list membership. Object keys are sorted so
// key order does not matter.
func memberKey(v savecodec.Value) string {
	var b strings.Builder
	writeMemberKey(&b, v)
	return b.String()
}

func writeMemberKey(b *strings.Builder, v savecodec.Value) {
	switch t := v.(type) {
	case *savecodec.Object:
		keys := t.Keys()
		slices.Sort(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			val, _ := t.Get(k)
			writeMemberKey(b, val)
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeMemberKey(b, item)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(t)
	case nil:
		b.WriteString("null")
	default:
		b.WriteString(scalarText(v))
	}
}

// Format renders a value for display: strings quoted, integral floats
// without a fraction, containers as compact JSON.
func Format(v savecodec.Value) string {
	switch t := v.(type) {
	case string:
		return `"` + t + `"`
	case json.Number:
		return formatNumber(t)
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	}
	data, err := savecodec.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func formatNumber(n json.Number) string {
	if isInt(n) {
		return string(n)
	}
	f, err := n.Float64()
	if err != nil {
		return string(n)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

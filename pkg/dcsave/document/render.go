package document

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

const indentUnit = "  "

// renderer prints values one key per line, except arrays stored under a key
// listed in inline which stay on a single line.
type renderer struct {
	b      strings.Builder
	inline map[string]bool
}

func render(v savecodec.Value, inline map[string]bool) string {
	r := &renderer{inline: inline}
	r.value(v, 0)
	return r.b.String()
}

func (r *renderer) indent(depth int) {
	r.b.WriteString(strings.Repeat(indentUnit, depth))
}

func (r *renderer) value(v savecodec.Value, depth int) {
	switch node := v.(type) {
	case *savecodec.Object:
		if node.Len() == 0 {
			r.b.WriteString("{}")
			return
		}
		r.b.WriteString("{\n")
		keys := node.Keys()
		for i, k := range keys {
			val, _ := node.Get(k)
			r.indent(depth + 1)
			r.b.WriteString(scalar(k))
			r.b.WriteString(": ")
			if items, ok := val.([]any); ok && r.inline[k] {
				r.inlineArray(items)
			} else {
				r.value(val, depth+1)
			}
			if i < len(keys)-1 {
				r.b.WriteByte(',')
			}
			r.b.WriteByte('\n')
		}
		r.indent(depth)
		r.b.WriteByte('}')
	case []any:
		if len(node) == 0 {
			r.b.WriteString("[]")
			return
		}
		r.b.WriteString("[\n")
		for i, item := range node {
			r.indent(depth + 1)
			r.value(item, depth+1)
			if i < len(node)-1 {
				r.b.WriteByte(',')
			}
			r.b.WriteByte('\n')
		}
		r.indent(depth)
		r.b.WriteByte(']')
	default:
		r.b.WriteString(scalar(v))
	}
}

func (r *renderer) inlineArray(items []any) {
	r.b.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			r.b.WriteString(", ")
		}
		r.b.WriteString(scalar(item))
	}
	r.b.WriteByte(']')
}

// scalar returns the compact JSON text of v.
func scalar(v savecodec.Value) string {
	data, err := savecodec.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(data)
}

package document

import (
	"strconv"
	"strings"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// splitPath splits a dotted path. Numeric segments index arrays. There is
// no escaping, so keys containing '.' cannot be addressed.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func arrayIndex(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// lookup walks segs from root.
func lookup(root savecodec.Value, segs []string) (savecodec.Value, bool) {
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case *savecodec.Object:
			v, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := arrayIndex(seg, len(node))
			if !ok {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// assign sets the value at segs. The parent must exist; object parents
// gain the key if it is new, array parents need an in-range index.
func assign(root savecodec.Value, segs []string, v savecodec.Value) bool {
	if len(segs) == 0 {
		return false
	}
	parent, ok := lookup(root, segs[:len(segs)-1])
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case *savecodec.Object:
		node.Set(last, v)
		return true
	case []any:
		i, ok := arrayIndex(last, len(node))
		if !ok {
			return false
		}
		node[i] = v
		return true
	}
	return false
}

// remove deletes the value at segs. Array elements are spliced out, which
// requires rewriting the array in its parent.
func remove(root savecodec.Value, segs []string) bool {
	if len(segs) == 0 {
		return false
	}
	parent, ok := lookup(root, segs[:len(segs)-1])
	if !ok {
		return false
	}
	last := segs[len(segs)-1]
	switch node := parent.(type) {
	case *savecodec.Object:
		return node.Delete(last)
	case []any:
		i, ok := arrayIndex(last, len(node))
		if !ok {
			return false
		}
		spliced := append(node[:i:i], node[i+1:]...)
		return assign(root, segs[:len(segs)-1], spliced)
	}
	return false
}

package savecodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// ParseJSON parses JSON text into the ordered value model. Numbers are kept
// as json.Number. Duplicate keys keep their first position and last value.
// Errors wrap ErrJSON.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSON, err)
	}

	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJSON, err)
		}
		return nil, fmt.Errorf("%w: unexpected %v after top-level value at offset %d", ErrJSON, tok, dec.InputOffset())
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject(8)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := make([]any, 0, 4)
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	default:
		return t, nil
	}
}

// Marshal renders v as compact JSON: insertion key order, no insignificant
// whitespace, non-ASCII written as raw UTF-8 and no HTML escaping.
func Marshal(v Value) ([]byte, error) {
	w := &writer{}
	if err := w.value(v, 0); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// MarshalIndent is Marshal with each element on its own line, indented by
// indent per level. Empty containers stay on one line.
func MarshalIndent(v Value, indent string) ([]byte, error) {
	w := &writer{indent: indent}
	if err := w.value(v, 0); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// TypeName names the JSON kind of v: null, bool, number, string, array or object.
func TypeName(v Value) string {
	c, ok := canonical(v)
	if !ok {
		return fmt.Sprintf("%T", v)
	}
	switch c.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case *Object:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

type writer struct {
	buf    bytes.Buffer
	indent string
}

func (w *writer) newline(depth int) {
	if w.indent == "" {
		return
	}
	w.buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		w.buf.WriteString(w.indent)
	}
}

func (w *writer) value(v Value, depth int) error {
	switch t := v.(type) {
	case nil:
		w.buf.WriteString("null")
	case bool:
		w.buf.WriteString(strconv.FormatBool(t))
	case string:
		writeString(&w.buf, t)
	case json.Number:
		if !validNumber(string(t)) {
			return fmt.Errorf("invalid number literal %q", string(t))
		}
		w.buf.WriteString(string(t))
	case int:
		w.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		w.buf.WriteString(strconv.FormatInt(t, 10))
	case int32:
		w.buf.WriteString(strconv.FormatInt(int64(t), 10))
	case uint:
		w.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		w.buf.WriteString(strconv.FormatUint(t, 10))
	case uint32:
		w.buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case float64:
		return w.float(t)
	case float32:
		return w.float(float64(t))
	case *Object:
		if t == nil {
			w.buf.WriteString("null")
			return nil
		}
		return w.object(t.keys, func(k string) Value { return t.values[k] }, depth)
	case map[string]any:
		if t == nil {
			w.buf.WriteString("null")
			return nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return w.object(keys, func(k string) Value { return t[k] }, depth)
	case []any:
		if t == nil {
			w.buf.WriteString("null")
			return nil
		}
		return w.array(len(t), func(i int) Value { return t[i] }, depth)
	case []string:
		if t == nil {
			w.buf.WriteString("null")
			return nil
		}
		return w.array(len(t), func(i int) Value { return t[i] }, depth)
	default:
		return w.foreign(v, depth)
	}
	return nil
}

func (w *writer) float(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("unsupported float value %v", f)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.buf.Write(data)
	return nil
}

func (w *writer) object(keys []string, get func(string) Value, depth int) error {
	if len(keys) == 0 {
		w.buf.WriteString("{}")
		return nil
	}
	w.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.newline(depth + 1)
		writeString(&w.buf, k)
		w.buf.WriteByte(':')
		if w.indent != "" {
			w.buf.WriteByte(' ')
		}
		if err := w.value(get(k), depth+1); err != nil {
			return err
		}
	}
	w.newline(depth)
	w.buf.WriteByte('}')
	return nil
}

func (w *writer) array(n int, get func(int) Value, depth int) error {
	if n == 0 {
		w.buf.WriteString("[]")
		return nil
	}
	w.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.newline(depth + 1)
		if err := w.value(get(i), depth+1); err != nil {
			return err
		}
	}
	w.newline(depth)
	w.buf.WriteByte(']')
	return nil
}

// foreign routes values outside the model (structs, typed slices and maps)
// through encoding/json and re-parses them so ordering and indentation rules
// still apply.
func (w *writer) foreign(v Value, depth int) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	parsed, err := ParseJSON(tmp.Bytes())
	if err != nil {
		return err
	}
	return w.value(parsed, depth)
}

const hexDigits = "0123456789abcdef"

// writeString quotes s the way JSON.stringify does: only the quote, the
// backslash and control characters are escaped. Invalid UTF-8 becomes U+FFFD.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			default:
				if c < 0x20 {
					buf.WriteString(`\u00`)
					buf.WriteByte(hexDigits[c>>4])
					buf.WriteByte(hexDigits[c&0xF])
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString("\uFFFD")
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

// validNumber checks s against the JSON number grammar.
func validNumber(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	switch {
	case s[i] == '0':
		i++
	case s[i] >= '1' && s[i] <= '9':
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

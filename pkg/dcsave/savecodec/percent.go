package savecodec

import (
	"fmt"
	"unicode/utf8"
)

const upperHex = "0123456789ABCDEF"

// shouldEscape reports whether b is outside the unreserved set
// A-Z a-z 0-9 - _ . ~ plus '/'.
func shouldEscape(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return false
	}
	switch b {
	case '-', '_', '.', '~', '/':
		return false
	}
	return true
}

// PercentEncode escapes every byte outside the unreserved set as %XX with
// upper-case hex digits. The result is ASCII.
func PercentEncode(src []byte) []byte {
	n := 0
	for _, b := range src {
		if shouldEscape(b) {
			n++
		}
	}
	if n == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}

	out := make([]byte, 0, len(src)+2*n)
	for _, b := range src {
		if shouldEscape(b) {
			out = append(out, '%', upperHex[b>>4], upperHex[b&0x0F])
		} else {
			out = append(out, b)
		}
	}
	return out
}

// PercentDecode reverses %XX escapes. A '%' not followed by two hex digits
// is kept literally and '+' is not treated as a space, matching how the
// game's files have always been read. The decoded bytes must be valid UTF-8.
func PercentDecode(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '%' && i+2 < len(src) && isHex(src[i+1]) && isHex(src[i+2]) {
			out = append(out, unhex(src[i+1])<<4|unhex(src[i+2]))
			i += 2
			continue
		}
		out = append(out, c)
	}

	if !utf8.Valid(out) {
		return nil, fmt.Errorf("%w: decoded bytes are not valid UTF-8 (offset %d)", ErrPercent, invalidOffset(out))
	}
	return out, nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

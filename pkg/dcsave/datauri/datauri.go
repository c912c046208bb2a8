// Package datauri converts between base64 data URIs and raw image bytes.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// Common MIME types stored in screenshot files.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

const (
	scheme    = "data:"
	separator = ";base64,"
)

// ErrFormat is wrapped by every parse failure.
var ErrFormat = errors.New("malformed data URI")

// FormatError describes why a data URI was rejected.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrFormat, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
}

// Unwrap exposes ErrFormat and the underlying decode error.
func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFormat, e.Err}
	}
	return []error{ErrFormat}
}

// Image is a decoded data URI.
type Image struct {
	MIME string
	Data []byte
}

// Parse splits s at the first ";base64," and strictly decodes the payload.
// Padding must be correct and no characters outside the base64 alphabet are
// accepted.
func Parse(s string) (Image, error) {
	idx := strings.Index(s, separator)
	if idx < 0 {
		return Image{}, &FormatError{Reason: `missing ";base64," separator`}
	}

	preamble := s[:idx]
	if !strings.HasPrefix(preamble, scheme) {
		return Image{}, &FormatError{Reason: `missing "data:" scheme`}
	}

	data, err := base64.StdEncoding.Strict().DecodeString(s[idx+len(separator):])
	if err != nil {
		return Image{}, &FormatError{Reason: "invalid base64 payload", Err: err}
	}

	return Image{MIME: preamble[len(scheme):], Data: data}, nil
}

// ParseValue parses a decoded save value, which must be a string.
func ParseValue(v savecodec.Value) (Image, error) {
	s, ok := v.(string)
	if !ok {
		return Image{}, &FormatError{Reason: fmt.Sprintf("expected string, got %s", savecodec.TypeName(v))}
	}
	return Parse(s)
}

// Build returns "data:<mime>;base64,<payload>".
func Build(mime string, data []byte) string {
	var b strings.Builder
	b.Grow(len(scheme) + len(mime) + len(separator) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(scheme)
	b.WriteString(mime)
	b.WriteString(separator)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// String renders the image back into a data URI.
func (img Image) String() string {
	return Build(img.MIME, img.Data)
}

// IsPNG reports whether the MIME type names PNG.
func (img Image) IsPNG() bool {
	return strings.EqualFold(img.MIME, MIMEPNG)
}

// IsJPEG reports whether the MIME type names JPEG.
func (img Image) IsJPEG() bool {
	return strings.EqualFold(img.MIME, MIMEJPEG) || strings.EqualFold(img.MIME, "image/jpg")
}

// Ext returns a file extension for the MIME type, defaulting to ".bin".
func (img Image) Ext() string {
	switch {
	case img.IsPNG():
		return ".png"
	case img.IsJPEG():
		return ".jpg"
	default:
		return ".bin"
	}
}

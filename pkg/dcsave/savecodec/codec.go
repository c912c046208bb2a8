// Package savecodec reads and writes DevilConnection save files.
//
// A save file is JSON text that has been percent-encoded so it can be stored
// as plain ASCII. Decode reverses both layers into an ordered value model
// (see Value and Object); Encode produces compact JSON and percent-encodes it.
//
// Decode(Encode(v)) is always Equal to v. The reverse does not hold:
// Encode(Decode(raw)) may differ from raw byte for byte, because whitespace,
// string escape spelling and the writer's choice of which characters to
// percent-encode are not retained. Only the decoded structure round-trips.
package savecodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Stage names the decoding layer that failed.
type Stage string

// Decoding stages.
const (
	StagePercent Stage = "percent"
	StageJSON    Stage = "json"
)

var (
	// ErrPercent marks failures of the percent-decoding layer.
	ErrPercent = errors.New("percent-decoding failed")

	// ErrJSON marks failures of the JSON layer.
	ErrJSON = errors.New("invalid JSON")
)

// DecodeError reports which stage of Decode failed.
type DecodeError struct {
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode save data (%s stage): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FileError attaches the file path to a read or decode failure.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Decode parses the on-disk form of a save file.
func Decode(raw []byte) (Value, error) {
	text, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	v, err := ParseJSON(text)
	if err != nil {
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}
	return v, nil
}

// DecodeInto decodes raw and unmarshals the JSON into dst.
func DecodeInto(raw []byte, dst any) error {
	text, err := unwrap(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return &DecodeError{Stage: StageJSON, Err: fmt.Errorf("%w: %w", ErrJSON, err)}
	}
	if dec.More() {
		return &DecodeError{Stage: StageJSON, Err: fmt.Errorf("%w: trailing data after top-level value", ErrJSON)}
	}
	return nil
}

func unwrap(raw []byte) ([]byte, error) {
	text, err := PercentDecode(bytes.TrimSpace(raw))
	if err != nil {
		return nil, &DecodeError{Stage: StagePercent, Err: err}
	}
	return text, nil
}

// Encode produces the on-disk form of v. The output is deterministic.
func Encode(v Value) ([]byte, error) {
	text, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode save data: %w", err)
	}
	return PercentEncode(text), nil
}

// ReadFile reads and decodes a save file. Errors are *FileError.
func ReadFile(path string) (Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	v, err := Decode(raw)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return v, nil
}

// WriteFile encodes v and replaces path atomically.
func WriteFile(path string, v Value) error {
	data, err := Encode(v)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	if err := AtomicWrite(path, data); err != nil {
		return &FileError{Path: path, Err: err}
	}
	return nil
}

// AtomicWrite writes data to a temporary file beside path and renames it
// into place. An existing file's permissions are kept. The temporary file
// is removed on every failure path.
func AtomicWrite(path string, data []byte) (err error) {
	perm := fs.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

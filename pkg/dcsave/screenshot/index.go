// Package screenshot manages the in-game photo album: the two parallel index
// files (ids and all_ids) and the per-screenshot image files beside them.
package screenshot

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

// DateLayout is the timestamp format of Record.Date.
const DateLayout = "2006/01/02 15:04:05"

// Index file names under the default naming.
const (
	IDsFile    = "DevilConnection_photo_ids.sav"
	AllIDsFile = "DevilConnection_photo_all_ids.sav"
)

var (
	// ErrDuplicateID is returned when inserting an id that already exists.
	ErrDuplicateID = errors.New("duplicate screenshot id")

	// ErrEmptyID is returned when inserting a record without an id.
	ErrEmptyID = errors.New("empty screenshot id")

	// ErrInvalidID is returned for ids that cannot be embedded in a file name.
	ErrInvalidID = errors.New("invalid screenshot id")

	// ErrInvalidDate is returned when a record date does not match DateLayout.
	ErrInvalidDate = errors.New("invalid screenshot date")

	// ErrInvalidPermutation is returned by Reorder for a bad order slice.
	ErrInvalidPermutation = errors.New("invalid permutation")

	// ErrInvalidPosition is returned by Move for out of range positions.
	ErrInvalidPosition = errors.New("position out of range")

	// ErrMalformedIndex is returned when an index file decodes but does not
	// have the expected shape.
	ErrMalformedIndex = errors.New("malformed screenshot index")
)

// IndexFileError names the index file that failed to load.
type IndexFileError struct {
	File string
	Err  error
}

func (e *IndexFileError) Error() string {
	return fmt.Sprintf("screenshot index %s: %v", e.File, e.Err)
}

func (e *IndexFileError) Unwrap() error { return e.Err }

// Record is one entry of the ids index.
type Record struct {
	ID   string `json:"id"`
	Date string `json:"date"`
}

// Time parses Date.
func (r Record) Time() (time.Time, error) {
	t, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q for id %s", ErrInvalidDate, r.Date, r.ID)
	}
	return t, nil
}

// Index holds the ids records and the all_ids list. After every exported
// method returns, both have the same length and allIDs[i] == records[i].ID.
type Index struct {
	records    []Record
	allIDs     []string
	reconciled bool
}

// New builds an index from records, rejecting duplicate or empty ids.
func New(records ...Record) (*Index, error) {
	idx := &Index{}
	for _, r := range records {
		if err := idx.Insert(r, -1); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Load decodes the contents of the ids and all_ids files. Decode failures
// are fatal and name the offending file. When the two arrays disagree the
// ids array wins: all_ids is rebuilt from it and Reconciled reports true.
func Load(idsRaw, allIDsRaw []byte) (*Index, error) {
	return load(idsRaw, allIDsRaw, IDsFile, AllIDsFile)
}

func load(idsRaw, allIDsRaw []byte, idsName, allIDsName string) (*Index, error) {
	records, err := decodeRecords(idsRaw)
	if err != nil {
		return nil, &IndexFileError{File: idsName, Err: err}
	}
	allIDs, err := decodeIDs(allIDsRaw)
	if err != nil {
		return nil, &IndexFileError{File: allIDsName, Err: err}
	}

	idx := &Index{records: dedupeRecords(records), allIDs: allIDs}
	if dups := len(records) - len(idx.records); dups > 0 {
		logging.Get("screenshot").Warn("duplicate ids in index, keeping the first of each",
			"file", idsName, "duplicates", dups)
		idx.allIDs = idx.derivedIDs()
		idx.reconciled = true
	}
	if !idx.parallel() {
		logging.Get("screenshot").Warn("ids and all_ids disagree, rebuilding all_ids from ids",
			"ids", len(records), "all_ids", len(allIDs))
		idx.allIDs = idx.derivedIDs()
		idx.reconciled = true
	}
	return idx, nil
}

// dedupeRecords keeps the first record of every id.
func dedupeRecords(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func decodeRecords(raw []byte) ([]Record, error) {
	v, err := savecodec.Decode(raw)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformedIndex, savecodec.TypeName(v))
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(*savecodec.Object)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s, not object", ErrMalformedIndex, i, savecodec.TypeName(item))
		}
		id, _ := obj.Get("id")
		idStr, ok := id.(string)
		if !ok {
			return nil, fmt.Errorf("%w: element %d has no string id", ErrMalformedIndex, i)
		}
		date, _ := obj.Get("date")
		dateStr, _ := date.(string)
		records = append(records, Record{ID: idStr, Date: dateStr})
	}
	return records, nil
}

func decodeIDs(raw []byte) ([]string, error) {
	v, err := savecodec.Decode(raw)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformedIndex, savecodec.TypeName(v))
	}
	ids := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s, not string", ErrMalformedIndex, i, savecodec.TypeName(item))
		}
		ids = append(ids, s)
	}
	return ids, nil
}

func (x *Index) parallel() bool {
	if len(x.allIDs) != len(x.records) {
		return false
	}
	for i, r := range x.records {
		if x.allIDs[i] != r.ID {
			return false
		}
	}
	return true
}

func (x *Index) derivedIDs() []string {
	ids := make([]string, len(x.records))
	for i, r := range x.records {
		ids[i] = r.ID
	}
	return ids
}

// Reconciled reports whether Load had to rebuild all_ids.
func (x *Index) Reconciled() bool { return x.reconciled }

// Len returns the number of records.
func (x *Index) Len() int { return len(x.records) }

// Records returns a copy of the ids records in order.
func (x *Index) Records() []Record { return slices.Clone(x.records) }

// IDs returns a copy of the all_ids list.
func (x *Index) IDs() []string { return slices.Clone(x.allIDs) }

// Position returns the index of id, or -1.
func (x *Index) Position(id string) int {
	return slices.IndexFunc(x.records, func(r Record) bool { return r.ID == id })
}

// Has reports whether id is indexed.
func (x *Index) Has(id string) bool { return x.Position(id) >= 0 }

// Get returns the record for id.
func (x *Index) Get(id string) (Record, bool) {
	if i := x.Position(id); i >= 0 {
		return x.records[i], true
	}
	return Record{}, false
}

// Clone returns an independent copy.
func (x *Index) Clone() *Index {
	return &Index{records: slices.Clone(x.records), allIDs: slices.Clone(x.allIDs), reconciled: x.reconciled}
}

// Insert adds rec at pos in both arrays. A negative pos or one at or past
// the end appends. Nothing changes when an error is returned.
func (x *Index) Insert(rec Record, pos int) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	if x.Has(rec.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	if _, err := rec.Time(); err != nil {
		return err
	}
	if pos < 0 || pos >= len(x.records) {
		pos = len(x.records)
	}
	x.records = slices.Insert(x.records, pos, rec)
	x.allIDs = slices.Insert(x.allIDs, pos, rec.ID)
	return nil
}

// Delete removes id from both arrays and reports whether it was present.
func (x *Index) Delete(id string) bool {
	i := x.Position(id)
	if i < 0 {
		return false
	}
	x.records = slices.Delete(x.records, i, i+1)
	x.allIDs = slices.Delete(x.allIDs, i, i+1)
	return true
}

// Reorder moves the element currently at order[i] to position i.
func (x *Index) Reorder(order []int) error {
	n := len(x.records)
	if len(order) != n {
		return fmt.Errorf("%w: got %d positions for %d records", ErrInvalidPermutation, len(order), n)
	}
	seen := make([]bool, n)
	for _, p := range order {
		if p < 0 || p >= n || seen[p] {
			return fmt.Errorf("%w: %v", ErrInvalidPermutation, order)
		}
		seen[p] = true
	}

	records := make([]Record, n)
	for i, p := range order {
		records[i] = x.records[p]
	}
	x.records = records
	x.allIDs = x.derivedIDs()
	return nil
}

// Move takes the record at from out of the list and reinserts it at to.
func (x *Index) Move(from, to int) error {
	n := len(x.records)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: from=%d to=%d len=%d", ErrInvalidPosition, from, to, n)
	}
	if from == to {
		return nil
	}
	rec := x.records[from]
	x.records = slices.Insert(slices.Delete(x.records, from, from+1), to, rec)
	x.allIDs = x.derivedIDs()
	return nil
}

// SortByDate stably sorts by date. Equal dates keep their relative order in
// both directions. Every date is parsed first; if any fails nothing moves.
func (x *Index) SortByDate(ascending bool) error {
	times := make(map[string]time.Time, len(x.records))
	for _, r := range x.records {
		t, err := r.Time()
		if err != nil {
			return err
		}
		times[r.ID] = t
	}

	records := slices.Clone(x.records)
	slices.SortStableFunc(records, func(a, b Record) int {
		c := times[a.ID].Compare(times[b.ID])
		if !ascending {
			c = -c
		}
		return c
	})
	x.records = records
	x.allIDs = x.derivedIDs()
	return nil
}

// MarshalIDs encodes the ids array in save file form.
func (x *Index) MarshalIDs() ([]byte, error) {
	items := make([]any, len(x.records))
	for i, r := range x.records {
		items[i] = savecodec.ObjectOf("id", r.ID, "date", r.Date)
	}
	return savecodec.Encode(items)
}

// MarshalAllIDs encodes the all_ids array in save file form.
func (x *Index) MarshalAllIDs() ([]byte, error) {
	items := make([]any, len(x.allIDs))
	for i, id := range x.allIDs {
		items[i] = id
	}
	return savecodec.Encode(items)
}

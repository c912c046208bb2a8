package document_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/document"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

const sample = `{
	"name": "player",
	"record": {"trail": [1, 2, 3], "flags": {"a": true}},
	"stat": {"initialVars": {"hp": 10}, "map_label": "town"},
	"note": "<collapsed>",
	"endings": ["e1", "e2"],
	"count": 12.50
}`

func open(t *testing.T, opts document.Options) (*document.Document, savecodec.Value) {
	t.Helper()
	v, err := savecodec.ParseJSON([]byte(sample))
	require.NoError(t, err)
	d, err := document.New(savecodec.Clone(v), opts)
	require.NoError(t, err)
	return d, v
}

func TestNewRejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := document.New([]any{"x"}, document.Options{})
	assert.True(t, errors.Is(err, document.ErrNotObject))
}

func TestFieldResolution(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{Fields: []string{"record", "_tap_effect", "initialVars", "stat.map_label", "missing.path"}})
	assert.Equal(t, []string{"record", "stat.initialVars", "stat.map_label"}, d.CollapsedPaths())
}

func TestRenderCollapsed(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{InlineLists: []string{"endings"}})
	text := d.Render()

	want := strings.Join([]string{
		`{`,
		`  "name": "player",`,
		`  "record": "<collapsed>",`,
		`  "stat": {`,
		`    "initialVars": "<collapsed>",`,
		`    "map_label": "town"`,
		`  },`,
		`  "note": "<collapsed>",`,
		`  "endings": ["e1", "e2"],`,
		`  "count": 12.50`,
		`}`,
	}, "\n")
	assert.Equal(t, want, text)
	assert.Equal(t, document.StateCollapsed, d.State(text))
}

func TestExpandUntouchedRestoresOriginal(t *testing.T) {
	t.Parallel()

	d, orig := open(t, document.Options{})
	first := d.Render()

	v, rep, err := d.Expand(first)
	require.NoError(t, err)
	assert.True(t, savecodec.Equal(orig, v))
	assert.ElementsMatch(t, []string{"record", "stat.initialVars"}, rep.Restored)
	assert.Empty(t, rep.Overwritten)
	assert.Empty(t, rep.Dropped)

	// Re-opening the saved value shows the same text and restores again.
	require.NoError(t, d.Commit(v))
	assert.Equal(t, first, d.Render())
	again, _, err := d.Expand(d.Render())
	require.NoError(t, err)
	origRecord, _ := orig.(*savecodec.Object).Get("record")
	gotRecord, _ := again.(*savecodec.Object).Get("record")
	wantBytes, err := savecodec.Marshal(origRecord)
	require.NoError(t, err)
	gotBytes, err := savecodec.Marshal(gotRecord)
	require.NoError(t, err)
	assert.Equal(t, wantBytes, gotBytes)
}

func TestExpandEditOtherFieldKeepsCollapsed(t *testing.T) {
	t.Parallel()

	d, orig := open(t, document.Options{})
	text := strings.Replace(d.Render(), `"name": "player"`, `"name": "hero"`, 1)

	v, _, err := d.Expand(text)
	require.NoError(t, err)
	obj := v.(*savecodec.Object)
	name, _ := obj.Get("name")
	assert.Equal(t, "hero", name)

	origObj := orig.(*savecodec.Object)
	for _, key := range []string{"record", "stat"} {
		want, _ := origObj.Get(key)
		got, _ := obj.Get(key)
		assert.True(t, savecodec.Equal(want, got), key)
	}

	// The non-collapsed placeholder-looking value is left alone.
	note, _ := obj.Get("note")
	assert.Equal(t, "<collapsed>", note)
}

func TestExpandEditedPlaceholderWins(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})
	text := strings.Replace(d.Render(), `"record": "<collapsed>"`, `"record": "wiped"`, 1)

	v, rep, err := d.Expand(text)
	require.NoError(t, err)
	got, _ := v.(*savecodec.Object).Get("record")
	assert.Equal(t, "wiped", got)
	assert.Equal(t, []string{"record"}, rep.Overwritten)
}

func TestExpandRemovedPathIsDropped(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})
	text := strings.Replace(d.Render(), `"record": "<collapsed>",`+"\n", "", 1)

	v, rep, err := d.Expand(text)
	require.NoError(t, err)
	assert.False(t, v.(*savecodec.Object).Has("record"))
	assert.Equal(t, []string{"record"}, rep.Dropped)
}

func TestExpandInvalidJSON(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})
	_, _, err := d.Expand(`{"broken": `)
	assert.True(t, errors.Is(err, savecodec.ErrJSON))

	_, _, err = d.Expand(`[1, 2]`)
	assert.True(t, errors.Is(err, document.ErrNotObject))
}

func TestTouchedLines(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})
	text := d.Render()
	assert.Empty(t, d.TouchedLines(text))
	assert.False(t, d.HasUnsavedChanges(text))

	lines := strings.Split(text, "\n")
	lines[1] = `  "name": "hero",`
	lines = append(lines, "")
	edited := strings.Join(lines, "\n")
	assert.Equal(t, []int{2, len(lines)}, d.TouchedLines(edited))
	assert.Equal(t, document.StateEdited, d.State(edited))
}

func TestSetRawModeRequiresConfirmation(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})
	text := d.Render()
	edited := strings.Replace(text, "player", "hero", 1)

	changed, err := d.SetRawMode(true, edited, func() bool { return false })
	assert.False(t, changed)
	assert.True(t, errors.Is(err, document.ErrUnsavedChanges))
	assert.False(t, d.Full())

	changed, err = d.SetRawMode(true, edited, nil)
	assert.False(t, changed)
	assert.True(t, errors.Is(err, document.ErrUnsavedChanges))

	changed, err = d.SetRawMode(true, edited, func() bool { return true })
	require.NoError(t, err)
	assert.True(t, changed)

	full := d.Render()
	assert.Equal(t, document.StateFull, d.State(full))
	assert.NotContains(t, full, `"record": "<collapsed>"`)

	// Raw mode saves the text as is.
	v, rep, err := d.Expand(full)
	require.NoError(t, err)
	assert.Empty(t, rep.Restored)
	assert.True(t, savecodec.Equal(d.Value(), v))

	changed, err = d.SetRawMode(false, full, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = d.SetRawMode(false, full, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetRawModeRerendersAndKeepsCollapsedValues(t *testing.T) {
	t.Parallel()

	d, orig := open(t, document.Options{})
	collapsedText := d.Rendered()

	changed, err := d.SetRawMode(true, collapsedText, nil)
	require.NoError(t, err)
	require.True(t, changed)
	assert.NotEqual(t, collapsedText, d.Rendered())
	assert.NotContains(t, d.Rendered(), `"record": "<collapsed>"`)
	assert.Equal(t, document.StateFull, d.State(d.Rendered()))

	// Text rendered before the switch still restores the collapsed fields.
	v, rep, err := d.Expand(collapsedText)
	require.NoError(t, err)
	assert.True(t, savecodec.Equal(orig, v))
	assert.ElementsMatch(t, []string{"record", "stat.initialVars"}, rep.Restored)

	record, ok := v.(*savecodec.Object).Get("record")
	require.True(t, ok)
	assert.IsType(t, &savecodec.Object{}, record)

	// Values typed in full mode are kept.
	edited := strings.Replace(d.Rendered(), `"hp": 10`, `"hp": 99`, 1)
	v, rep, err = d.Expand(edited)
	require.NoError(t, err)
	assert.Empty(t, rep.Restored)
	hp, err := document.New(v, document.Options{Fields: []string{}})
	require.NoError(t, err)
	got, err := hp.Get("stat.initialVars.hp")
	require.NoError(t, err)
	assert.Equal(t, json.Number("99"), got)
}

func TestFieldResolutionSkipsDottedParents(t *testing.T) {
	t.Parallel()

	v, err := savecodec.ParseJSON([]byte(`{"a.b": {"record": 1}, "c": {"record": 2}}`))
	require.NoError(t, err)
	d, err := document.New(v, document.Options{Fields: []string{"record"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.record"}, d.CollapsedPaths())
	assert.Contains(t, d.Rendered(), `"record": 1`)
}

func TestSaveWritesAndCommits(t *testing.T) {
	t.Parallel()

	d, orig := open(t, document.Options{})
	path := filepath.Join(t.TempDir(), "DevilConnection_sf.sav")
	text := strings.Replace(d.Render(), "12.50", "13", 1)

	rep, err := d.Save(path, text)
	require.NoError(t, err)
	assert.Len(t, rep.Restored, 2)

	saved, err := savecodec.ReadFile(path)
	require.NoError(t, err)
	count, _ := saved.(*savecodec.Object).Get("count")
	assert.True(t, savecodec.Equal(13, count))

	record, _ := saved.(*savecodec.Object).Get("record")
	origRecord, _ := orig.(*savecodec.Object).Get("record")
	assert.True(t, savecodec.Equal(origRecord, record))

	assert.False(t, d.HasUnsavedChanges(d.Rendered()))
	assert.Contains(t, d.Rendered(), `"count": 13`)

	_, err = d.Save(filepath.Join(t.TempDir(), "missing", "x.sav"), text)
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestGetSetDelete(t *testing.T) {
	t.Parallel()

	d, _ := open(t, document.Options{})

	v, err := d.Get("record.trail.1")
	require.NoError(t, err)
	assert.True(t, savecodec.Equal(2, v))

	require.NoError(t, d.Set("record.trail.1", "two"))
	v, err = d.Get("record.trail.1")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	require.NoError(t, d.Set("stat.new_key", true))
	v, err = d.Get("stat.new_key")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	require.NoError(t, d.Delete("record.trail.0"))
	v, err = d.Get("record.trail")
	require.NoError(t, err)
	assert.True(t, savecodec.Equal([]any{"two", 3}, v))

	require.NoError(t, d.Delete("stat.initialVars"))
	assert.Equal(t, []string{"record"}, d.CollapsedPaths())

	for _, bad := range []string{"", "nope", "record.trail.9", "name.child"} {
		_, err := d.Get(bad)
		assert.True(t, errors.Is(err, document.ErrPathNotFound), bad)
	}
	assert.True(t, errors.Is(d.Set("missing.key", 1), document.ErrPathNotFound))
	assert.True(t, errors.Is(d.Delete("missing"), document.ErrPathNotFound))
}

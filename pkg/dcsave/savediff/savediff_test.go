package savediff_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savediff"
)

func parse(t *testing.T, s string) savecodec.Value {
	t.Helper()
	v, err := savecodec.ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func diff(t *testing.T, c *savediff.Comparator, old, cur string) []string {
	t.Helper()
	return savediff.Lines(c.Compare(parse(t, old), parse(t, cur)))
}

func TestCompareLines(t *testing.T) {
	t.Parallel()

	got := diff(t, savediff.New(),
		`{"a":1,"b":"x","c":[1,2],"d":{"e":true}}`,
		`{"a":2,"c":[2,3],"d":{"e":true,"f":null},"g":{"h":5}}`)

	assert.Equal(t, []string{
		"a 1→2",
		"-b",
		"c.append(3)",
		"c.remove(1)",
		"+d.f = null",
		"+g.h = 5",
	}, got)
}

func TestCompareEqualDocuments(t *testing.T) {
	t.Parallel()

	doc := `{"name":"Ruby","flags":[{"a":1,"b":2}],"nested":{"x":[1,2,3]}}`
	assert.Empty(t, diff(t, savediff.New(), doc, doc))

	reordered := `{"flags":[{"b":2,"a":1}],"nested":{"x":[3,2,1]},"name":"Ruby"}`
	assert.Empty(t, diff(t, savediff.New(), doc, reordered))
}

func TestCompareNumbers(t *testing.T) {
	t.Parallel()

	c := savediff.New()
	tests := []struct {
		name string
		old  string
		cur  string
		want []string
	}{
		{"int to float form", `{"n":1}`, `{"n":1.0}`, []string{"n 1 (int)→1 (float)"}},
		{"within epsilon", `{"x":0.5}`, `{"x":0.50000000000001}`, nil},
		{"beyond epsilon", `{"x":0.5}`, `{"x":0.6}`, []string{"x 0.5→0.6"}},
		{"integral floats", `{"x":2.0}`, `{"x":3.0}`, []string{"x 2→3"}},
		{"bool is not a number", `{"f":true}`, `{"f":1}`, []string{"f true→1"}},
		{"string holding number", `{"s":"1"}`, `{"s":1}`, []string{`s "1" (string)→1 (int)`}},
		{"null to value", `{"v":null}`, `{"v":0}`, []string{"v null→0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := diff(t, c, tt.old, tt.cur)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareContainerKindChange(t *testing.T) {
	t.Parallel()

	got := diff(t, savediff.New(), `{"k":[1]}`, `{"k":{"a":1}}`)
	assert.Equal(t, []string{`k [1]→{"a":1}`}, got)
}

func TestIgnoredVariables(t *testing.T) {
	t.Parallel()

	c := savediff.New("time", "sf.system", " ", "time")
	assert.Equal(t, []string{"time", "sf.system"}, c.Ignored())

	got := diff(t, c,
		`{"time":1,"sf":{"system":{"a":1},"b":1,"time":5}}`,
		`{"time":2,"sf":{"system":{"a":2},"b":2,"time":6}}`)
	assert.Equal(t, []string{"sf.b 1→2"}, got)
}

func TestIgnoredPatterns(t *testing.T) {
	t.Parallel()

	c := savediff.New("sf.tmp_*", "**.clock", "sf.[")
	got := diff(t, c,
		`{"sf":{"tmp_a":1,"tmp_b":{"x":1},"keep":1,"inner":{"clock":1,"n":1}}}`,
		`{"sf":{"tmp_a":2,"tmp_b":{"x":2},"keep":2,"inner":{"clock":2,"n":2}}}`)
	assert.Equal(t, []string{"sf.keep 1→2", "sf.inner.n 1→2"}, got)
}

func TestParseIgnored(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b.c"}, savediff.ParseIgnored(" a, ,b.c ,"))
	assert.Empty(t, savediff.ParseIgnored(""))
}

func TestNonObjectRoots(t *testing.T) {
	t.Parallel()

	c := savediff.New()
	got := savediff.Lines(c.Compare(nil, parse(t, `{"a":"x","b":{"c":[1]}}`)))
	assert.Equal(t, []string{`+a = "x"`, "+b.c = [1]"}, got)

	assert.Empty(t, c.Compare(parse(t, `[1,2]`), parse(t, `"text"`)))
}

func TestChangeJSON(t *testing.T) {
	t.Parallel()

	changes := savediff.New().Compare(parse(t, `{"a":1}`), parse(t, `{"a":2}`))
	require.Len(t, changes, 1)
	assert.Equal(t, savediff.Changed, changes[0].Kind)

	data, err := json.Marshal(changes[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"changed","path":"a","old":1,"new":2}`, string(data))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"hi"`, savediff.Format("hi"))
	assert.Equal(t, "3", savediff.Format(json.Number("3.0")))
	assert.Equal(t, "0.25", savediff.Format(json.Number("0.25")))
	assert.Equal(t, "false", savediff.Format(false))
	assert.Equal(t, `{"a":[1,"b"]}`, savediff.Format(savecodec.ObjectOf("a", []any{json.Number("1"), "b"})))
}

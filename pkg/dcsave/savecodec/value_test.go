package savecodec_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

func TestObjectOrdering(t *testing.T) {
	t.Parallel()

	var o savecodec.Object
	o.Set("b", 1)
	o.Set("a", 2)
	o.Set("c", 3)
	o.Set("a", 20)

	assert.Equal(t, []string{"b", "a", "c"}, o.Keys())
	v, ok := o.Get("a")
	require.True(t, ok)
	assert.Equal(t, 20, v)

	assert.True(t, o.Delete("b"))
	assert.False(t, o.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, o.Keys())
	assert.Equal(t, 2, o.Len())

	var seen []string
	o.Range(func(k string, _ savecodec.Value) bool {
		seen = append(seen, k)
		return false
	})
	assert.Equal(t, []string{"a"}, seen)
}

func TestParseJSONDuplicateKeys(t *testing.T) {
	t.Parallel()

	v, err := savecodec.ParseJSON([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)
	obj := v.(*savecodec.Object)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	a, _ := obj.Get("a")
	assert.Equal(t, json.Number("3"), a)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b savecodec.Value
		want bool
	}{
		{"int vs float spelling", json.Number("1"), json.Number("1.0"), true},
		{"native int vs number", 5, json.Number("5"), true},
		{"different numbers", json.Number("1"), json.Number("2"), false},
		{"large integers stay exact", json.Number("9007199254740993"), json.Number("9007199254740992"), false},
		{"key order ignored", savecodec.ObjectOf("a", 1, "b", 2), savecodec.ObjectOf("b", 2, "a", 1), true},
		{"missing key", savecodec.ObjectOf("a", 1), savecodec.ObjectOf("a", 1, "b", 2), false},
		{"array order matters", []any{1, 2}, []any{2, 1}, false},
		{"string vs number", "1", json.Number("1"), false},
		{"nil vs empty", nil, "", false},
		{"bool", true, true, true},
		{"native slice", []string{"a"}, []any{"a"}, true},
		{"nil object pointer", (*savecodec.Object)(nil), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, savecodec.Equal(tt.a, tt.b))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := savecodec.ObjectOf("list", []any{savecodec.ObjectOf("k", "v")})
	cp := savecodec.Clone(orig).(*savecodec.Object)

	list, _ := cp.Get("list")
	list.([]any)[0].(*savecodec.Object).Set("k", "changed")

	origList, _ := orig.Get("list")
	k, _ := origList.([]any)[0].(*savecodec.Object).Get("k")
	assert.Equal(t, "v", k)
}

func TestMarshalIndent(t *testing.T) {
	t.Parallel()

	v := savecodec.ObjectOf("a", []any{1, "x"}, "b", savecodec.NewObject(0), "c", []any{})
	out, err := savecodec.MarshalIndent(v, "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    1,\n    \"x\"\n  ],\n  \"b\": {},\n  \"c\": []\n}", string(out))
}

func TestMarshalNoHTMLEscaping(t *testing.T) {
	t.Parallel()

	out, err := savecodec.Marshal("<b>&é")
	require.NoError(t, err)
	assert.Equal(t, `"<b>&é"`, string(out))
}

func TestObjectJSONInterop(t *testing.T) {
	t.Parallel()

	wrapper := struct {
		Data *savecodec.Object `json:"data"`
	}{Data: savecodec.ObjectOf("z", 1, "a", 2)}

	out, err := json.Marshal(wrapper)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"z":1,"a":2}}`, string(out))

	var back struct {
		Data *savecodec.Object `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, []string{"z", "a"}, back.Data.Keys())
}

func TestTypeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "null", savecodec.TypeName(nil))
	assert.Equal(t, "number", savecodec.TypeName(3))
	assert.Equal(t, "string", savecodec.TypeName("s"))
	assert.Equal(t, "array", savecodec.TypeName([]any{}))
	assert.Equal(t, "object", savecodec.TypeName(savecodec.NewObject(0)))
}

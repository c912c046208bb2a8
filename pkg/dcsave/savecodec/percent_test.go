package savecodec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
)

func TestPercentEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"abcXYZ019", "abcXYZ019"},
		{"-_.~/", "-_.~/"},
		{" ", "%20"},
		{"+", "%2B"},
		{"%", "%25"},
		{`{"a":[1]}`, "%7B%22a%22%3A%5B1%5D%7D"},
		{"é", "%C3%A9"},
		{"data:image/png;base64,QQ==", "data%3Aimage/png%3Bbase64%2CQQ%3D%3D"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(savecodec.PercentEncode([]byte(tt.in))))
		})
	}
}

func TestPercentDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"%7b%7D", "{}"},
		{"a+b", "a+b"},
		{"100%", "100%"},
		{"%zz", "%zz"},
		{"%4", "%4"},
		{"%E3%81%82", "あ"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := savecodec.PercentDecode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestPercentDecodeInvalidUTF8(t *testing.T) {
	t.Parallel()

	_, err := savecodec.PercentDecode([]byte("ok%C0%AF"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, savecodec.ErrPercent))
}

func TestPercentRoundTripAllBytes(t *testing.T) {
	t.Parallel()

	var all []byte
	for r := rune(1); r < 0x800; r++ {
		all = append(all, string(r)...)
	}
	got, err := savecodec.PercentDecode(savecodec.PercentEncode(all))
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

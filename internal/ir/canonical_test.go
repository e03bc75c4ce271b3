package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"b": 2,
		"a": "x",
		"c": true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2,"c":true}`, string(out))
}

func TestMarshalCanonical_Nested(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"trace": []any{
			map[string]any{"type": "completed", "seq": int64(1)},
		},
		"order":  []string{"a", "b"},
		"status": StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"order":["a","b"],"status":"Completed","trace":[{"seq":1,"type":"completed"}]}`, string(out))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	out, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(out))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	out, err := MarshalCanonical("x y")
	require.NoError(t, err)
	assert.Equal(t, "\"x y\"", string(out))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to a single rune.
	out, err := MarshalCanonical("é")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(out))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)

	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

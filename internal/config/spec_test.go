package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigString(t *testing.T) {
	v, err := ParseConfig(Spec{Type: TypeString}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestParseConfigNumberValid(t *testing.T) {
	v, err := ParseConfig(Spec{Type: TypeNumber}, "3.5")
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestParseConfigNumberInvalidIsNaN(t *testing.T) {
	v, err := ParseConfig(Spec{Type: TypeNumber}, "not-a-number")
	require.NoError(t, err)
	f, ok := v.(float64)
	require.True(t, ok)
	assert.True(t, f != f, "expected NaN")
}

func TestParseConfigBooleanTruthTable(t *testing.T) {
	for _, raw := range []string{"true", "TRUE", "y", "1", "on"} {
		v, err := ParseConfig(Spec{Type: TypeBoolean}, raw)
		require.NoError(t, err)
		assert.Equal(t, true, v, "raw=%q", raw)
	}
	for _, raw := range []string{"false", "no", "0", "off", "garbage", ""} {
		v, err := ParseConfig(Spec{Type: TypeBoolean}, raw)
		require.NoError(t, err)
		assert.Equal(t, false, v, "raw=%q", raw)
	}
}

func TestParseConfigStringSlice(t *testing.T) {
	v, err := ParseConfig(Spec{Type: TypeStringSlice}, `["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)
}

func TestParseConfigStringSliceInvalidJSON(t *testing.T) {
	_, err := ParseConfig(Spec{Type: TypeStringSlice}, `not json`)
	require.Error(t, err)
}

func TestIsTypedRoundTrip(t *testing.T) {
	assert.True(t, IsTyped(Spec{Type: TypeString}, "x"))
	assert.False(t, IsTyped(Spec{Type: TypeString}, 3))
	assert.True(t, IsTyped(Spec{Type: TypeNumber}, float64(3)))
	assert.True(t, IsTyped(Spec{Type: TypeBoolean}, true))
	assert.True(t, IsTyped(Spec{Type: TypeStringSlice}, []string{"a"}))
	assert.True(t, IsTyped(Spec{Type: TypeStringSlice}, []any{"a", "b"}))
	assert.False(t, IsTyped(Spec{Type: TypeStringSlice}, []any{1, 2}))
}

func TestCoerceIsIdempotent(t *testing.T) {
	spec := Spec{Type: TypeNumber}
	first, err := Coerce(spec, "42")
	require.NoError(t, err)
	assert.Equal(t, float64(42), first)

	second, err := Coerce(spec, first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCoerceNumberFromUnrecognizedNumericType(t *testing.T) {
	// int16 isn't among IsTyped's recognized numeric Go types, so Coerce
	// falls through to its JSON round-trip path rather than returning the
	// value unchanged.
	v, err := Coerce(Spec{Type: TypeNumber}, int16(7))
	require.NoError(t, err)
	assert.Equal(t, float64(7), v)
}

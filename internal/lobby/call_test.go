package lobby

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func schemaCall() *Call {
	return &Call{
		Name: "schema",
		Params: []Param{
			{Name: "s", Kind: KindString},
			{Name: "i", Kind: KindInteger},
			{Name: "f", Kind: KindNumber, Optional: true},
			{Name: "b", Kind: KindBoolean, Optional: true},
		},
		Handler: func(*State, ClientID, Args) error { return nil },
	}
}

func TestCallValidate_TypedArgs(t *testing.T) {
	args, err := schemaCall().Validate(map[string]any{
		"s": "x",
		"i": json.Number("7"),
		"f": json.Number("2.5"),
		"b": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "x", args.String("s"))
	assert.Equal(t, 7, args.Int("i"))
	assert.Equal(t, 2.5, args.Float("f"))
	assert.True(t, args.Bool("b"))
}

func TestCallValidate_OptionalAbsent(t *testing.T) {
	args, err := schemaCall().Validate(map[string]any{"s": "x", "i": 1})
	require.NoError(t, err)
	assert.False(t, args.Has("f"))
	assert.False(t, args.Has("b"))
	assert.Equal(t, 0.0, args.Float("f"))
}

func TestCallValidate_NumberAcceptsIntegers(t *testing.T) {
	args, err := schemaCall().Validate(map[string]any{"s": "x", "i": 1, "f": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, args.Float("f"))
}

func TestCallValidate_ReportsEveryProblem(t *testing.T) {
	_, err := schemaCall().Validate(map[string]any{
		"i":     "1",
		"b":     1,
		"bogus": 1,
	})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "Parameter validation failed for schema")
	assert.Contains(t, msg, "s: field required")
	assert.Contains(t, msg, "i: expected integer, got string")
	assert.Contains(t, msg, "b: expected boolean, got integer")
	assert.Contains(t, msg, "bogus: unexpected field")
}

func TestCallValidate_IntegerEdges(t *testing.T) {
	tests := []struct {
		raw any
		ok  bool
	}{
		{int64(5), true},
		{uint8(5), true},
		{float64(-3), true},
		{json.Number("4.0"), true},
		{json.Number("4.2"), false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{uint64(math.MaxUint64), false},
		{"5", false},
		{false, false},
		{[]any{1}, false},
	}
	for _, tt := range tests {
		_, ok := toInt(tt.raw)
		assert.Equal(t, tt.ok, ok, "%#v", tt.raw)
	}
}

func TestPropertyIntegralFloatsValidateAsIntegers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(-1_000_000, 1_000_000).Draw(t, "n")
		args, err := schemaCall().Validate(map[string]any{"s": "", "i": float64(n)})
		if err != nil {
			t.Fatalf("validate %d: %v", n, err)
		}
		if args.Int("i") != n {
			t.Fatalf("got %d, want %d", args.Int("i"), n)
		}
	})
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindString, KindInteger, KindNumber, KindBoolean} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("object").Valid())
}

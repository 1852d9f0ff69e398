package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"both absent", nil, nil, true},
		{"absent vs null", nil, IRNull{}, false},
		{"null", IRNull{}, IRNull{}, true},
		{"strings", IRString("x"), IRString("x"), true},
		{"string vs int", IRString("5"), IRInt(5), false},
		{"arrays", IRArray{IRInt(1), IRInt(2)}, IRArray{IRInt(1), IRInt(2)}, true},
		{"array order", IRArray{IRInt(1), IRInt(2)}, IRArray{IRInt(2), IRInt(1)}, false},
		{"objects", IRObject{"a": IRBool(true)}, IRObject{"a": IRBool(true)}, true},
		{"object extra key", IRObject{"a": IRBool(true)}, IRObject{"a": IRBool(true), "b": IRNull{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestFromAny(t *testing.T) {
	when := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600))

	v, err := FromAny(map[string]any{
		"name":    "clinic",
		"count":   float64(3),
		"ratio":   1.5,
		"open":    true,
		"tags":    []any{"a", int64(2)},
		"missing": nil,
		"when":    when,
	})
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"name":    IRString("clinic"),
		"count":   IRInt(3),
		"ratio":   IRString("1.5"),
		"open":    IRBool(true),
		"tags":    IRArray{IRString("a"), IRInt(2)},
		"missing": IRNull{},
		"when":    IRString("2024-03-01T06:30:00.000000Z"),
	}, v)
}

func TestFromAnyRejectsUnknownTypes(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
}

func TestUnmarshalIRValueKeepsNull(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"a":null,"b":[1,"x"],"c":2.0}`))
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"a": IRNull{},
		"b": IRArray{IRInt(1), IRString("x")},
		"c": IRInt(2),
	}, v)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{"z": IRInt(1), "a": IRArray{IRNull{}}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[null],"z":1}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

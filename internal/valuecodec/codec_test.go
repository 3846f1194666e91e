package valuecodec_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/fawkes74/jcon-cpp/internal/valuecodec"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestDecodePrimitives(t *testing.T) {
	reg := valuecodec.NewRegistry()

	tests := []struct {
		name   string
		raw    string
		target reflect.Type
		want   interface{}
	}{
		{"int", `5`, reflect.TypeOf(int(0)), int(5)},
		{"float from int json", `5`, reflect.TypeOf(float64(0)), float64(5)},
		{"string", `"ada"`, reflect.TypeOf(""), "ada"},
		{"bool", `true`, reflect.TypeOf(false), true},
		{"string list", `["a","b"]`, reflect.TypeOf([]string{}), []string{"a", "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := valuecodec.Decode(json.RawMessage(tc.raw), tc.target, reg)
			require.NoError(t, err)
			require.Equal(t, tc.want, v.Interface())
		})
	}
}

func TestDecodeRejectsFractionalInt(t *testing.T) {
	reg := valuecodec.NewRegistry()
	_, err := valuecodec.Decode(json.RawMessage(`5.5`), reflect.TypeOf(int(0)), reg)
	require.Error(t, err)
}

func TestEncodeDecodeStructEnvelopeRoundTrip(t *testing.T) {
	reg := valuecodec.NewRegistry()
	reg.Register("Point", reflect.TypeOf(Point{}))

	p := Point{X: 1, Y: 2}
	raw, err := valuecodec.Encode(reflect.ValueOf(p), reg)
	require.NoError(t, err)

	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &probe))
	require.Contains(t, probe, "typename")
	require.Contains(t, probe, "value")

	back, err := valuecodec.Decode(raw, reflect.TypeOf(Point{}), reg)
	require.NoError(t, err)

	if diff := cmp.Diff(p, back.Interface()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeNonPrimitiveSliceEnvelopesDirectly(t *testing.T) {
	reg := valuecodec.NewRegistry()
	reg.Register("Points", reflect.TypeOf([]Point{}))

	pts := []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	raw, err := valuecodec.Encode(reflect.ValueOf(pts), reg)
	require.NoError(t, err)

	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &probe))
	require.Contains(t, probe, "typename")
	require.Contains(t, probe, "value")

	back, err := valuecodec.Decode(raw, reflect.TypeOf([]Point{}), reg)
	require.NoError(t, err)

	if diff := cmp.Diff(pts, back.Interface()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodePrimitiveStaysBare(t *testing.T) {
	reg := valuecodec.NewRegistry()
	raw, err := valuecodec.Encode(reflect.ValueOf(42), reg)
	require.NoError(t, err)
	require.Equal(t, "42", string(raw))
}

func TestDecodeUnknownEnvelopeType(t *testing.T) {
	reg := valuecodec.NewRegistry()
	_, err := valuecodec.Decode(json.RawMessage(`{"typename":"Ghost","value":{}}`), reflect.TypeOf(Point{}), reg)
	require.Error(t, err)
}

func TestEncodeUnencodableValue(t *testing.T) {
	reg := valuecodec.NewRegistry()
	ch := make(chan int)
	_, err := valuecodec.Encode(reflect.ValueOf(ch), reg)
	require.Error(t, err)
}

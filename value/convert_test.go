package value

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHostPrecedence(t *testing.T) {
	type named string
	cases := []struct {
		in   any
		kind Kind
	}{
		{42, KindInt},
		{int8(-3), KindInt},
		{uint16(7), KindInt},
		{uint64(math.MaxUint64), KindUint},
		{float32(1.5), KindFloat64},
		{2.5, KindFloat64},
		{"hello", KindText},
		{named("x"), KindText},
		{[]any{1, "a"}, KindSeq},
		{[]int{1, 2}, KindSeq},
		{[2]string{"a", "b"}, KindSeq},
		{map[string]any{"a": 1}, KindMap},
		{map[string]int{"a": 1}, KindMap},
		{true, KindBool},
		{nil, KindNull},
		{Counter(3), KindCounter},
		{time.UnixMilli(1700000000000), KindTimestamp},
		{Str("plain"), KindString},
		{Float32(0.5), KindFloat32},
	}
	for _, c := range cases {
		v, err := FromHost(c.in)
		require.NoError(t, err, "%#v", c.in)
		assert.Equal(t, c.kind, v.Kind(), "%#v", c.in)
	}
}

func TestFromHostNested(t *testing.T) {
	in := map[string]any{
		"key_string":       "string value",
		"key_int":          99,
		"key_list_int":     []any{1, 2, 3},
		"key_list_str":     []any{"a", "bc", "def", "GHIJ", "🌍🌍🌍"},
		"key_list_int_str": []any{1, "abcdefgh", 2, "ijklmnop", 3, "qrstuvwx"},
		"key_dict_str_str": map[string]any{"subkey1": "val1", "subkey2": "val2"},
	}
	v, err := FromHost(in)
	require.NoError(t, err)
	m := v.(Map)
	assert.Equal(t, Text("string value"), m["key_string"])
	assert.True(t, Equal(Int(99), m["key_int"]))
	assert.True(t, Equal(Seq{Int(1), Int(2), Int(3)}, m["key_list_int"]))
	assert.Equal(t, Text("🌍🌍🌍"), m["key_list_str"].(Seq)[4])
	assert.Equal(t, Text("val2"), m["key_dict_str_str"].(Map)["subkey2"])
}

func TestFromHostErrors(t *testing.T) {
	_, err := FromHost(map[int]any{1: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)

	_, err = FromHost(map[string]any{"a": []any{1, map[int]string{2: "b"}}})
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ".a[1]", cerr.Path)
	assert.ErrorIs(t, err, ErrUnsupportedKeyType)

	_, err = FromHost([]byte("blob"))
	assert.ErrorIs(t, err, ErrBinaryUnsupported)

	_, err = FromHost(map[string]any{"f": func() {}})
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
	assert.Contains(t, err.Error(), ".f")

	_, err = FromHost(struct{ A int }{1})
	assert.ErrorIs(t, err, ErrUnsupportedValueType)

	_, err = FromHost(complex(1, 2))
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
}

func TestFromHostPointers(t *testing.T) {
	i := 5
	v, err := FromHost(&i)
	require.NoError(t, err)
	assert.True(t, Equal(Int(5), v))

	var nilp *int
	v, err = FromHost(nilp)
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind())
}

func TestToHostEveryScalar(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	in := Map{
		"int":   Int(-7),
		"uint":  Uint(math.MaxUint64),
		"f32":   Float32(0.25),
		"f64":   Float64(3.5),
		"bool":  Bool(true),
		"null":  Null(),
		"str":   Str("plain"),
		"cnt":   CounterOf(12),
		"when":  TimestampOf(ts),
		"text":  Text("collab"),
		"seq":   Seq{Int(1), Text("two")},
		"inner": Map{"k": Bool(false)},
	}
	out := ToHost(in).(map[string]any)
	assert.Equal(t, int64(-7), out["int"])
	assert.Equal(t, uint64(math.MaxUint64), out["uint"])
	assert.Equal(t, float32(0.25), out["f32"])
	assert.Equal(t, 3.5, out["f64"])
	assert.Equal(t, true, out["bool"])
	assert.Nil(t, out["null"])
	assert.Equal(t, "plain", out["str"])
	assert.Equal(t, Counter(12), out["cnt"])
	assert.Equal(t, ts, out["when"])
	assert.Equal(t, "collab", out["text"])
	assert.Equal(t, []any{int64(1), "two"}, out["seq"])
	assert.Equal(t, map[string]any{"k": false}, out["inner"])
}

func TestRoundTrip(t *testing.T) {
	in := map[string]any{
		"n":    int64(1),
		"f":    1.25,
		"t":    "text",
		"seq":  []any{int64(1), []any{"deep"}},
		"map":  map[string]any{"x": map[string]any{}},
		"flag": false,
		"none": nil,
		"cnt":  Counter(4),
	}
	v, err := FromHost(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToHost(v))

	again, err := FromHost(ToHost(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, again))
}

func TestNormalize(t *testing.T) {
	out, err := Normalize(map[string]any{"a": 1, "b": []int{2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": []any{int64(2)}}, out)
}

func TestFromHostCopiesValues(t *testing.T) {
	orig := Map{"s": Seq{Int(1)}}
	v, err := FromHost(orig)
	require.NoError(t, err)
	cp := v.(Map)
	cp["s"].(Seq)[0] = Int(2)
	assert.True(t, Equal(Int(1), orig["s"].(Seq)[0]))
	assert.False(t, Equal(orig, cp))
}

func TestFromHostBadValues(t *testing.T) {
	var cerr *ConversionError

	_, err := FromHost(Scalar{})
	assert.ErrorIs(t, err, ErrUnsupportedValueType)

	_, err = FromHost(Map{"b": nil})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ".b", cerr.Path)
	assert.ErrorIs(t, err, ErrUnsupportedValueType)

	_, err = FromHost(map[string]any{"l": Seq{Int(1), Scalar{}}})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ".l[1]", cerr.Path)

	_, err = FromHost(Str("a\xffb"))
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestFromHostInvalidUTF8(t *testing.T) {
	type named string
	for _, in := range []any{
		"a\xffb",
		named("\xc3"),
		Text("\xff"),
		[]any{"ok", "bad\xfe"},
		map[string]any{"k\xff": 1},
		map[string]string{"k": "\xff"},
	} {
		_, err := FromHost(in)
		assert.ErrorIs(t, err, ErrInvalidText, "%q", in)
		assert.ErrorIs(t, err, ErrUnsupportedValueType, "%q", in)
	}
	v, err := FromHost("🌍 ok")
	require.NoError(t, err)
	assert.Equal(t, Text("🌍 ok"), v)
}

func TestFromHostCycles(t *testing.T) {
	s := []any{nil}
	s[0] = s
	_, err := FromHost(s)
	assert.ErrorIs(t, err, ErrCycle)

	m := map[string]any{}
	m["self"] = m
	_, err = FromHost(map[string]any{"outer": m})
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ".outer.self", cerr.Path)
	assert.ErrorIs(t, err, ErrUnsupportedValueType)

	var p any
	p = &p
	_, err = FromHost(p)
	assert.ErrorIs(t, err, ErrCycle)

	seq := Seq{nil}
	seq[0] = seq
	_, err = FromHost(seq)
	assert.ErrorIs(t, err, ErrCycle)

	// shared but acyclic parts are fine
	shared := []any{1}
	v, err := FromHost(map[string]any{"a": shared, "b": shared, "c": []any{shared, shared}})
	require.NoError(t, err)
	assert.Len(t, v.(Map), 3)
}

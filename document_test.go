package rtcdoc

import (
	"testing"
	"time"

	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func create(t *testing.T, initial map[string]any, src uint64) *Document {
	doc, err := Create(initial, Options{Src: src})
	require.NoError(t, err)
	return doc
}

func TestCreateRoundTrip(t *testing.T) {
	initial := map[string]any{
		"docId":    "doc-1",
		"revision": 3,
		"ratio":    0.5,
		"tags":     []any{"a", "b"},
		"meta":     map[string]any{"owner": "ann", "flags": []any{true, nil}},
	}
	doc := create(t, initial, 1)
	out, err := doc.ToMap()
	require.NoError(t, err)

	want, err := value.Normalize(initial)
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestCreateChangePerField(t *testing.T) {
	doc := create(t, map[string]any{"docId": "X", "textArea": "Hello"}, 1)
	changes, err := doc.Changes()
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	empty := create(t, map[string]any{}, 1)
	changes, err = empty.Changes()
	require.NoError(t, err)
	assert.Empty(t, changes)
	out, err := empty.ToMap()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCopyIsIndependent(t *testing.T) {
	doc := create(t, map[string]any{"a": 1}, 1)
	cp := doc.Copy()
	assert.Equal(t, doc.Save(), cp.Save())
	assert.Equal(t, doc.Src(), cp.Src())

	require.NoError(t, cp.Set("b", 2))
	out, err := doc.ToMap()
	require.NoError(t, err)
	assert.NotContains(t, out, "b")

	fork := doc.Fork()
	assert.NotEqual(t, doc.Src(), fork.Src())
	assert.Equal(t, mustDigest(t, doc), mustDigest(t, fork))
}

func TestCommutativeMerge(t *testing.T) {
	base := create(t, map[string]any{"title": "draft"}, 1)
	alice := base.Fork()
	bob := base.Fork()
	require.NoError(t, alice.Set("owner", "alice"))
	require.NoError(t, bob.Set("pages", 12))

	fromAlice, err := alice.ChangesSince(mustVV(t, base))
	require.NoError(t, err)
	fromBob, err := bob.ChangesSince(mustVV(t, base))
	require.NoError(t, err)
	require.Len(t, fromAlice, 1)
	require.Len(t, fromBob, 1)

	ab := base.Copy()
	require.NoError(t, ab.ApplyChanges(fromAlice))
	require.NoError(t, ab.ApplyChanges(fromBob))
	ba := base.Copy()
	require.NoError(t, ba.ApplyChanges(fromBob))
	require.NoError(t, ba.ApplyChanges(fromAlice))

	abMap, err := ab.ToMap()
	require.NoError(t, err)
	baMap, err := ba.ToMap()
	require.NoError(t, err)
	assert.Equal(t, abMap, baMap)
	assert.Equal(t, map[string]any{"title": "draft", "owner": "alice", "pages": int64(12)}, abMap)
	assert.Equal(t, mustDigest(t, ab), mustDigest(t, ba))
}

func mustDigest(t *testing.T, doc *Document) uint64 {
	d, err := doc.Digest()
	require.NoError(t, err)
	return d
}

func mustVV(t *testing.T, doc *Document) rdx.VV {
	vv, err := doc.VersionVector()
	require.NoError(t, err)
	return vv
}

func TestDuplicateApplyIsNoop(t *testing.T) {
	src := create(t, map[string]any{"a": "x", "b": []any{1}}, 1)
	changes, err := src.Changes()
	require.NoError(t, err)

	dst := create(t, map[string]any{}, 2)
	require.NoError(t, dst.ApplyChanges(changes))
	once := dst.Save()
	require.NoError(t, dst.ApplyChanges(changes))
	assert.Equal(t, once, dst.Save())

	out, err := dst.ToMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "b": []any{int64(1)}}, out)
}

func TestOutOfOrderApply(t *testing.T) {
	src := create(t, map[string]any{"n": 1}, 1)
	require.NoError(t, src.Set("n", 2))
	changes, err := src.Changes()
	require.NoError(t, err)
	require.Len(t, changes, 2)

	dst := create(t, map[string]any{}, 2)
	require.NoError(t, dst.ApplyChanges(changes[1:]))
	_, err = dst.Get("n")
	assert.ErrorIs(t, err, ErrNoSuchKey)

	require.NoError(t, dst.ApplyChanges(changes[:1]))
	n, err := dst.Get("n")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConversionFailureLeavesDocument(t *testing.T) {
	doc := create(t, map[string]any{"a": 1}, 1)
	before := doc.Save()

	err := doc.Set("bad", map[string]any{"x": []any{func() {}}})
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)
	err = doc.Set("blob", []byte("raw"))
	assert.ErrorIs(t, err, value.ErrBinaryUnsupported)
	assert.Equal(t, before, doc.Save())

	_, err = Create(map[string]any{"k": map[int]int{1: 1}}, Options{Src: 1})
	assert.ErrorIs(t, err, ErrConversion)

	err = doc.Set("k", map[int]any{1: 1})
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrUnsupportedKeyType)
	assert.Equal(t, before, doc.Save())
}

func TestHandBuiltValuesAreChecked(t *testing.T) {
	doc := create(t, map[string]any{"a": 1}, 1)
	before := doc.Save()

	err := doc.Set("a", value.Scalar{})
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)
	err = doc.Set("m", value.Map{"b": nil})
	assert.ErrorIs(t, err, ErrConversion)
	err = doc.Set("s", value.Seq{value.Int(1), nil})
	assert.ErrorIs(t, err, ErrConversion)
	assert.Equal(t, before, doc.Save())

	_, err = Create(map[string]any{"a": value.Map{"b": nil}}, Options{Src: 1})
	assert.ErrorIs(t, err, ErrConversion)

	require.NoError(t, doc.Set("ok", value.Map{"n": value.Int(2), "s": value.Str("x")}))
	ok, err := doc.Get("ok")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(2), "s": "x"}, ok)
}

func TestInvalidUTF8Rejected(t *testing.T) {
	_, err := Create(map[string]any{"t": "a\xffb"}, Options{Src: 1})
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrInvalidText)

	doc := create(t, map[string]any{"t": "hello"}, 1)
	before := doc.Save()
	err = doc.Set("t", []any{"fine", "bad\xfe"})
	assert.ErrorIs(t, err, value.ErrInvalidText)
	err = doc.SpliceText("t", 1, 2, "\xc3")
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrInvalidText)
	assert.Equal(t, before, doc.Save())

	require.NoError(t, doc.SpliceText("t", 5, 0, " wörld"))
	got, err := doc.Get("t")
	require.NoError(t, err)
	assert.Equal(t, "hello wörld", got)
}

func TestCyclicValueRejected(t *testing.T) {
	doc := create(t, nil, 1)
	before := doc.Save()
	s := []any{nil}
	s[0] = s
	err := doc.Set("loop", s)
	assert.ErrorIs(t, err, ErrConversion)
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)
	assert.Equal(t, before, doc.Save())
}

func TestUnloadableSnapshotSurfaces(t *testing.T) {
	doc := &Document{snapshot: []byte("junk"), opts: Options{Src: 1}}
	doc.opts.SetDefaults()
	_, err := doc.Digest()
	assert.ErrorIs(t, err, ErrDeserialization)
	_, err = doc.Dump()
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestMalformedChanges(t *testing.T) {
	doc := create(t, map[string]any{"a": 1}, 1)
	before := doc.Save()
	err := doc.ApplyChanges([][]byte{[]byte("not a change")})
	assert.ErrorIs(t, err, ErrDeserialization)
	assert.Equal(t, before, doc.Save())

	_, err = Load([]byte("junk"), Options{})
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestSnapshotStable(t *testing.T) {
	doc := create(t, map[string]any{"t": "text", "c": value.Counter(1)}, 1)
	snap := doc.Save()
	loaded, err := Load(snap, Options{Src: 1})
	require.NoError(t, err)
	assert.Equal(t, snap, loaded.Save())

	a, err := doc.ToMap()
	require.NoError(t, err)
	b, err := loaded.ToMap()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeleteAndGet(t *testing.T) {
	doc := create(t, map[string]any{"a": 1, "b": 2}, 1)
	require.NoError(t, doc.Delete("a"))
	_, err := doc.Get("a")
	assert.ErrorIs(t, err, ErrNoSuchKey)
	assert.ErrorIs(t, doc.Delete("a"), ErrNoSuchKey)

	keys, err := doc.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestSpliceTextConverges(t *testing.T) {
	a := create(t, map[string]any{"textArea": "Hello"}, 1)
	b := a.Fork()
	require.NoError(t, a.SpliceText("textArea", 5, 0, " world"))
	require.NoError(t, b.SpliceText("textArea", 0, 1, "J"))

	ca, err := a.Changes()
	require.NoError(t, err)
	cb, err := b.Changes()
	require.NoError(t, err)
	require.NoError(t, a.ApplyChanges(cb))
	require.NoError(t, b.ApplyChanges(ca))

	ta, err := a.Get("textArea")
	require.NoError(t, err)
	tb, err := b.Get("textArea")
	require.NoError(t, err)
	assert.Equal(t, "Jello world", ta)
	assert.Equal(t, ta, tb)

	require.NoError(t, a.Set("n", 1))
	assert.ErrorIs(t, a.SpliceText("n", 0, 0, "x"), ErrNotText)
	assert.ErrorIs(t, a.SpliceText("missing", 0, 0, "x"), ErrNoSuchKey)
	assert.ErrorIs(t, a.SpliceText("textArea", 50, 0, "x"), ErrApply)
}

func TestCounterConverges(t *testing.T) {
	a := create(t, map[string]any{"visits": value.Counter(0)}, 1)
	b := a.Fork()
	require.NoError(t, a.Increment("visits", 2))
	require.NoError(t, b.Increment("visits", 5))

	cb, err := b.Changes()
	require.NoError(t, err)
	require.NoError(t, a.ApplyChanges(cb))
	visits, err := a.Get("visits")
	require.NoError(t, err)
	assert.Equal(t, value.Counter(7), visits)

	require.NoError(t, a.Set("plain", 1))
	assert.ErrorIs(t, a.Increment("plain", 1), ErrNotCounter)
}

func TestTimestampsAndKinds(t *testing.T) {
	when := time.UnixMilli(1700000000000).UTC()
	doc := create(t, map[string]any{
		"when":  when,
		"big":   uint64(1) << 63,
		"exact": value.Float32(0.5),
		"label": value.Str("fixed"),
	}, 1)
	out, err := doc.ToMap()
	require.NoError(t, err)
	assert.Equal(t, when, out["when"])
	assert.Equal(t, uint64(1)<<63, out["big"])
	assert.Equal(t, float32(0.5), out["exact"])
	assert.Equal(t, "fixed", out["label"])
}

func TestDump(t *testing.T) {
	doc := create(t, map[string]any{"k": "v"}, 0x1f)
	dump, err := doc.Dump()
	require.NoError(t, err)
	assert.Contains(t, dump, "change 1f-1")
}

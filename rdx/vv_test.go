package rdx

import (
	"testing"

	"github.com/drpcorg/rtcdoc/protocol"
	"github.com/stretchr/testify/assert"
)

func TestVVMerge(t *testing.T) {
	tlv := protocol.Concat(
		protocol.Record('V', IDFromString("b-345").ZipBytes()),
		protocol.Record('V', IDFromString("a-123").ZipBytes()),
		protocol.Record('V', IDFromString("a-122").ZipBytes()),
	)
	vv, err := VVFromTLV(tlv)
	assert.NoError(t, err)
	assert.Equal(t, "a-123,b-345", vv.String())

	assert.True(t, vv.SeenID(IDFromString("a-100")))
	assert.False(t, vv.SeenID(IDFromString("c-1")))
	assert.False(t, vv.Put(0xa, 0x100))
	assert.True(t, vv.Put(0xc, 1))

	back, err := VVFromTLV(vv.TLV())
	assert.NoError(t, err)
	assert.Equal(t, vv, back)
	assert.Equal(t, vv, VVFromString(vv.String()))
}

func TestVVSeen(t *testing.T) {
	a := VVFromString("1-3,2-5")
	b := VVFromString("1-2")
	assert.True(t, a.Seen(b))
	assert.False(t, b.Seen(a))
	assert.True(t, a.ProgressedOver(b))
	assert.False(t, b.ProgressedOver(a))

	c := a.Clone()
	c.Set(3, 1)
	assert.NotEqual(t, a, c)
}

func TestVVBadTLV(t *testing.T) {
	_, err := VVFromTLV([]byte{'x', 1, 2})
	assert.ErrorIs(t, err, ErrBadVRecord)
}

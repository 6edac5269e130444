package rdx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseID(t *testing.T) {
	ids := []string{
		"0-0",
		"3-1",
		"fa3-57",
		"ffffffff-ffffffff",
	}
	for _, str := range ids {
		id := IDFromString(str)
		assert.NotEqual(t, BadId, id)
		assert.Equal(t, str, id.String())
		assert.Equal(t, id, IDFromZipBytes(id.ZipBytes()))
	}
	assert.Equal(t, BadId, IDFromString("nope"))
	assert.Equal(t, BadId, IDFromString("100000000-1"))
}

func TestIDOrder(t *testing.T) {
	a := NewID(1, 7)
	b := NewID(2, 1)
	assert.True(t, a.Less(b))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(NewID(1, 7)))
	assert.Equal(t, 1, NewID(1, 8).Compare(a))
}

func TestTimeOrder(t *testing.T) {
	a := Time{Rev: 4, Src: 8}
	b := Time{Rev: 4, Src: 7}
	c := Time{Rev: 5, Src: 1}
	assert.True(t, b.Less(a))
	assert.True(t, a.Less(c))
	back, ok := TimeFromZipBytes(a.ZipBytes())
	assert.True(t, ok)
	assert.Equal(t, a, back)
	_, ok = TimeFromZipBytes([]byte{0x80})
	assert.False(t, ok)
	assert.Equal(t, "4@8", a.String())
	assert.True(t, Time0.IsZero())
}

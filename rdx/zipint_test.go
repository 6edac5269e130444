package rdx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipUint64Pair(t *testing.T) {
	pairs := [][2]uint64{
		{0, 0}, {1, 0}, {0, 1}, {0xff, 0x100},
		{math.MaxUint32, math.MaxUint64}, {math.MaxUint64, 7},
	}
	for _, p := range pairs {
		zip := ZipUint64Pair(p[0], p[1])
		big, lil, ok := UnzipUint64PairOK(zip)
		assert.True(t, ok)
		assert.Equal(t, p[0], big)
		assert.Equal(t, p[1], lil)
	}
	assert.Len(t, ZipUint64Pair(1, 2), 2)

	_, _, ok := UnzipUint64PairOK([]byte{0x80})
	assert.False(t, ok)
	_, _, ok = UnzipUint64PairOK([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestZipInts(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 300, -300, math.MaxInt64, math.MinInt64} {
		assert.Equal(t, i, UnzipInt64(ZipInt64(i)))
	}
	assert.Empty(t, ZipInt64(0))
	assert.Len(t, ZipInt64(-1), 1)

	for _, f := range []float64{0, 1.5, -2.25, math.Pi, math.Inf(1)} {
		assert.Equal(t, f, UnzipFloat64(ZipFloat64(f)))
	}
	assert.Len(t, ZipFloat64(1.0), 2)
}

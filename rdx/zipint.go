package rdx

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// ZipUint64Pair packs a pair of uint64 as two uvarints.
// The smaller the ints, the shorter the string.
func ZipUint64Pair(big, lil uint64) []byte {
	ret := make([]byte, 0, 4)
	ret = binary.AppendUvarint(ret, big)
	return binary.AppendUvarint(ret, lil)
}

// UnzipUint64Pair is the reverse of ZipUint64Pair; ok is false for
// malformed input. An empty input is a zero pair.
func UnzipUint64Pair(buf []byte) (big, lil uint64) {
	big, lil, _ = UnzipUint64PairOK(buf)
	return
}

func UnzipUint64PairOK(buf []byte) (big, lil uint64, ok bool) {
	if len(buf) == 0 {
		return 0, 0, true
	}
	var n, m int
	big, n = binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, false
	}
	lil, m = binary.Uvarint(buf[n:])
	if m <= 0 || n+m != len(buf) {
		return 0, 0, false
	}
	return big, lil, true
}

// ZipUint64 packs uint64 into a shortest possible byte string
func ZipUint64(v uint64) []byte {
	buf := [8]byte{}
	i := 0
	for v > 0 {
		buf[i] = uint8(v)
		v >>= 8
		i++
	}
	return buf[0:i]
}

func UnzipUint64(zip []byte) (v uint64) {
	for i := len(zip) - 1; i >= 0; i-- {
		v <<= 8
		v |= uint64(zip[i])
	}
	return
}

func ZigZagInt64(i int64) uint64 {
	return uint64(i*2) ^ uint64(i>>63)
}

func ZagZigUint64(u uint64) int64 {
	half := u >> 1
	mask := -(u & 1)
	return int64(half ^ mask)
}

func ZipInt64(v int64) []byte {
	return ZipUint64(ZigZagInt64(v))
}

func UnzipInt64(zip []byte) int64 {
	return ZagZigUint64(UnzipUint64(zip))
}

// ZipFloat64 reverses the bits so round numbers (zero mantissa tail)
// zip into few bytes.
func ZipFloat64(f float64) []byte {
	return ZipUint64(bits.Reverse64(math.Float64bits(f)))
}

func UnzipFloat64(zip []byte) float64 {
	return math.Float64frombits(bits.Reverse64(UnzipUint64(zip)))
}

func ZipIntUint64Pair(i int64, u uint64) []byte {
	return ZipUint64Pair(ZigZagInt64(i), u)
}

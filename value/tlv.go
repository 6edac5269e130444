package value

import (
	"errors"
	"math"
	"unicode/utf8"

	"github.com/drpcorg/rtcdoc/protocol"
	"github.com/drpcorg/rtcdoc/rdx"
)

var ErrBadScalar = errors.New("value: bad scalar record")

// AppendScalar appends the scalar as one TLV record, lit = kind letter.
func AppendScalar(into []byte, s Scalar) []byte {
	return protocol.Append(into, byte(s.kind), scalarBody(s))
}

// ScalarTLV is AppendScalar into a fresh buffer.
func ScalarTLV(s Scalar) []byte {
	return AppendScalar(nil, s)
}

func scalarBody(s Scalar) []byte {
	switch s.kind {
	case KindInt, KindCounter, KindTimestamp:
		return rdx.ZipInt64(s.i)
	case KindUint:
		return rdx.ZipUint64(s.u)
	case KindFloat64:
		return rdx.ZipFloat64(s.f)
	case KindFloat32:
		return rdx.ZipUint64(uint64(math.Float32bits(float32(s.f))))
	case KindBool:
		if s.b {
			return []byte{1}
		}
		return []byte{0}
	case KindString:
		return []byte(s.s)
	}
	return nil
}

// ParseScalar decodes a scalar record body of the given kind.
func ParseScalar(lit byte, body []byte) (s Scalar, err error) {
	kind := Kind(lit)
	switch kind {
	case KindInt, KindCounter, KindTimestamp:
		if len(body) > 8 {
			return s, ErrBadScalar
		}
		return Scalar{kind: kind, i: rdx.UnzipInt64(body)}, nil
	case KindUint:
		if len(body) > 8 {
			return s, ErrBadScalar
		}
		return Uint(rdx.UnzipUint64(body)), nil
	case KindFloat64:
		if len(body) > 8 {
			return s, ErrBadScalar
		}
		return Float64(rdx.UnzipFloat64(body)), nil
	case KindFloat32:
		if len(body) > 4 {
			return s, ErrBadScalar
		}
		return Float32(math.Float32frombits(uint32(rdx.UnzipUint64(body)))), nil
	case KindBool:
		if len(body) != 1 || body[0] > 1 {
			return s, ErrBadScalar
		}
		return Bool(body[0] == 1), nil
	case KindNull:
		if len(body) != 0 {
			return s, ErrBadScalar
		}
		return Null(), nil
	case KindString:
		if !utf8.Valid(body) {
			return s, ErrBadScalar
		}
		return Str(string(body)), nil
	}
	return s, ErrBadScalar
}

// TakeScalar cuts one scalar record off untrusted data.
func TakeScalar(data []byte) (s Scalar, rest []byte, err error) {
	lit, body, rest, err := protocol.TakeAnyWary(data)
	if err != nil {
		return s, nil, err
	}
	s, err = ParseScalar(lit, body)
	return
}

package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/drpcorg/rtcdoc/protocol"
	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
)

/*
A change is one TLV record, TLV all the way down:

	C {
		I  src-seq                  change id
		T  start rev                stamp of the first op is {start, src}
		V  { V src-seq ... }        deps: version vector seen by the author
		W  unix millis              (optional) wall clock
		M  message                  (optional)
		ops...
	}

Ops (op i is stamped {start+i, src}):

	S { O obj  K key  value }           set a map key
	D { O obj  K key }                  delete a map key
	N { O obj  R after  value }         insert a list element after another (or the head)
	U { O obj  R elem  value }          overwrite a list element
	E { O obj  R elem }                 erase a list element
	A { O obj  K key  R target  I delta } add to the counter set by target

A value is either a scalar record (see value.AppendScalar) or an empty
M/L/X record that makes a new map/list/text object named by the op stamp.
*/

const (
	OpSet    = byte('S')
	OpDelete = byte('D')
	OpInsert = byte('N')
	OpUpdate = byte('U')
	OpErase  = byte('E')
	OpAdd    = byte('A')
)

var (
	ErrBadChange = errors.New("engine: bad change")
	ErrBadOp     = errors.New("engine: bad op")
)

// Op is one field assignment inside a change.
type Op struct {
	Type byte
	Obj  rdx.Time
	Key  string
	// Ref is the anchor for inserts, the element for updates and erases,
	// the target set op for counter adds.
	Ref rdx.Time
	// Make is a container kind for ops that create an object;
	// otherwise Scalar holds the value.
	Make   value.Kind
	Scalar value.Scalar
}

func (op *Op) hasValue() bool {
	return op.Type == OpSet || op.Type == OpInsert || op.Type == OpUpdate || op.Type == OpAdd
}

func (op *Op) appendTLV(into []byte) []byte {
	body := protocol.Record('O', op.Obj.ZipBytes())
	switch op.Type {
	case OpSet, OpDelete:
		body = protocol.Append(body, 'K', []byte(op.Key))
	case OpInsert, OpUpdate, OpErase:
		body = protocol.Append(body, 'R', op.Ref.ZipBytes())
	case OpAdd:
		body = protocol.Append(body, 'K', []byte(op.Key))
		body = protocol.Append(body, 'R', op.Ref.ZipBytes())
	}
	if op.hasValue() {
		if op.Make != 0 {
			body = protocol.Append(body, byte(op.Make))
		} else {
			body = value.AppendScalar(body, op.Scalar)
		}
	}
	return protocol.Append(into, op.Type, body)
}

func takeTime(lit byte, data []byte) (t rdx.Time, rest []byte, err error) {
	body, rest, err := protocol.TakeWary(lit, data)
	if err != nil {
		return
	}
	t, ok := rdx.TimeFromZipBytes(body)
	if !ok || t.Src > rdx.MaxSrc || t.Rev < 0 {
		return t, nil, ErrBadOp
	}
	return t, rest, nil
}

func parseOp(lit byte, body []byte) (op Op, err error) {
	op.Type = lit
	switch lit {
	case OpSet, OpDelete, OpInsert, OpUpdate, OpErase, OpAdd:
	default:
		return op, ErrBadOp
	}
	rest := body
	if op.Obj, rest, err = takeTime('O', rest); err != nil {
		return op, ErrBadOp
	}
	if lit == OpSet || lit == OpDelete || lit == OpAdd {
		var key []byte
		if key, rest, err = protocol.TakeWary('K', rest); err != nil || !utf8.Valid(key) {
			return op, ErrBadOp
		}
		op.Key = string(key)
	}
	if lit != OpSet && lit != OpDelete {
		if op.Ref, rest, err = takeTime('R', rest); err != nil {
			return op, ErrBadOp
		}
	}
	if op.hasValue() {
		var vlit byte
		var vbody []byte
		vlit, vbody, rest, err = protocol.TakeAnyWary(rest)
		if err != nil {
			return op, ErrBadOp
		}
		if kind := value.Kind(vlit); kind.Container() {
			if len(vbody) != 0 || lit == OpAdd {
				return op, ErrBadOp
			}
			op.Make = kind
		} else if op.Scalar, err = value.ParseScalar(vlit, vbody); err != nil {
			return op, ErrBadOp
		}
		if lit == OpAdd && op.Scalar.Kind() != value.KindInt {
			return op, ErrBadOp
		}
	}
	if len(rest) != 0 {
		return op, ErrBadOp
	}
	return op, nil
}

func (op Op) String() string {
	var b strings.Builder
	b.WriteByte(op.Type)
	b.WriteByte(' ')
	b.WriteString(op.Obj.String())
	switch op.Type {
	case OpSet, OpDelete:
		fmt.Fprintf(&b, " %q", op.Key)
	case OpAdd:
		fmt.Fprintf(&b, " %q %s", op.Key, op.Ref.String())
	default:
		b.WriteByte(' ')
		b.WriteString(op.Ref.String())
	}
	if op.hasValue() {
		b.WriteByte(' ')
		if op.Make != 0 {
			b.WriteString("make " + op.Make.String())
		} else {
			fmt.Fprintf(&b, "%s:%v", op.Scalar.Kind(), value.ToHost(op.Scalar))
		}
	}
	return b.String()
}

// Change is a decoded change record.
type Change struct {
	ID      rdx.ID
	Start   int64
	Deps    rdx.VV
	Wall    int64
	Message string
	Ops     []Op

	raw []byte
}

// Stamp of the i-th op.
func (c *Change) Stamp(i int) rdx.Time {
	return rdx.Time{Rev: c.Start + int64(i), Src: c.ID.Src()}
}

// Last is the highest op stamp in the change.
func (c *Change) Last() rdx.Time {
	return c.Stamp(len(c.Ops) - 1)
}

// Bytes is the encoded change; do not modify.
func (c *Change) Bytes() []byte {
	if c.raw == nil {
		c.raw = c.encode()
	}
	return c.raw
}

func (c *Change) encode() []byte {
	body := protocol.Record('I', c.ID.ZipBytes())
	body = protocol.Append(body, 'T', rdx.ZipInt64(c.Start))
	body = protocol.Append(body, 'V', c.Deps.TLV())
	if c.Wall != 0 {
		body = protocol.Append(body, 'W', rdx.ZipInt64(c.Wall))
	}
	if c.Message != "" {
		body = protocol.Append(body, 'M', []byte(c.Message))
	}
	for i := range c.Ops {
		body = c.Ops[i].appendTLV(body)
	}
	return protocol.Record('C', body)
}

// DecodeChange parses and validates a change received from anywhere.
func DecodeChange(data []byte) (c *Change, err error) {
	body, rest, err := protocol.TakeWary('C', data)
	if err != nil || len(rest) != 0 {
		return nil, ErrBadChange
	}
	c = &Change{raw: append([]byte(nil), data...)}
	var field []byte
	if field, body, err = protocol.TakeWary('I', body); err != nil {
		return nil, ErrBadChange
	}
	src, seq, ok := rdx.UnzipUint64PairOK(field)
	if !ok || src == 0 || src > rdx.MaxSrc || seq == 0 {
		return nil, ErrBadChange
	}
	c.ID = rdx.NewID(src, seq)
	if field, body, err = protocol.TakeWary('T', body); err != nil || len(field) > 8 {
		return nil, ErrBadChange
	}
	c.Start = rdx.UnzipInt64(field)
	if c.Start <= 0 {
		return nil, ErrBadChange
	}
	if field, body, err = protocol.TakeWary('V', body); err != nil {
		return nil, ErrBadChange
	}
	if c.Deps, err = rdx.VVFromTLV(field); err != nil {
		return nil, ErrBadChange
	}
	if c.Deps.Get(src) != seq-1 {
		return nil, ErrBadChange
	}
	for len(body) > 0 {
		lit, obody, orest, err := protocol.TakeAnyWary(body)
		if err != nil {
			return nil, ErrBadChange
		}
		switch {
		case lit == 'W' && len(c.Ops) == 0:
			if len(obody) > 8 {
				return nil, ErrBadChange
			}
			c.Wall = rdx.UnzipInt64(obody)
		case lit == 'M' && len(c.Ops) == 0:
			if !utf8.Valid(obody) {
				return nil, ErrBadChange
			}
			c.Message = string(obody)
		default:
			op, err := parseOp(lit, obody)
			if err != nil {
				return nil, errors.Join(ErrBadChange, err)
			}
			c.Ops = append(c.Ops, op)
		}
		body = orest
	}
	if len(c.Ops) == 0 {
		return nil, ErrBadChange
	}
	return c, nil
}

func (c *Change) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "change %s start %d deps [%s]", c.ID, c.Start, c.Deps)
	if c.Message != "" {
		fmt.Fprintf(&b, " %q", c.Message)
	}
	for i, op := range c.Ops {
		fmt.Fprintf(&b, "\n\t%s\t%s", c.Stamp(i), op.String())
	}
	return b.String()
}

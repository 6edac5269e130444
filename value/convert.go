package value

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/exp/constraints"
)

var (
	ErrUnsupportedValueType = errors.New("value: unsupported value type")
	ErrUnsupportedKeyType   = errors.New("value: map keys must be strings")
	ErrBinaryUnsupported    = errors.New("value: binary values are not supported")
)

// Both are kinds of unsupported value.
var (
	ErrInvalidText = fmt.Errorf("%w: string is not valid UTF-8", ErrUnsupportedValueType)
	ErrCycle       = fmt.Errorf("%w: value contains itself", ErrUnsupportedValueType)
)

// Counter is the host-side form of a counter scalar. Passing a Counter to
// FromHost stores a mergeable counter instead of a plain int.
type Counter int64

// ConversionError reports the first value that could not be converted
// and where it sits in the tree ("" is the root, then .key and [index]).
type ConversionError struct {
	Path string
	Type string
	Err  error
}

func (e *ConversionError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("%v: %s at %s", e.Err, e.Type, path)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func failed(path string, x any, err error) error {
	return &ConversionError{Path: path, Type: fmt.Sprintf("%T", x), Err: err}
}

// FromHost turns a plain Go value into a Value. Integers become Int,
// floats Float64, strings Text, slices Seq and string-keyed maps Map.
// bool, nil, time.Time and Counter map to their own scalar kinds, and a
// Value is checked and copied. Strings must be valid UTF-8; a value that
// contains itself is rejected. Errors are *ConversionError.
func FromHost(x any) (Value, error) {
	c := converter{}
	return c.fromHost(x, "")
}

// visit names a container on the current path.
type visit struct {
	ptr  uintptr
	len  int
	kind reflect.Kind
}

// converter remembers the containers it is inside of, so a cycle is
// reported instead of walked forever.
type converter struct {
	inside map[visit]struct{}
}

func (c *converter) enter(rv reflect.Value) (visit, bool) {
	v := visit{ptr: rv.Pointer(), kind: rv.Kind()}
	if rv.Kind() != reflect.Pointer {
		v.len = rv.Len()
	}
	if v.ptr == 0 || v.len == 0 && v.kind == reflect.Slice {
		return v, true
	}
	if _, ok := c.inside[v]; ok {
		return v, false
	}
	if c.inside == nil {
		c.inside = make(map[visit]struct{})
	}
	c.inside[v] = struct{}{}
	return v, true
}

func (c *converter) leave(v visit) {
	delete(c.inside, v)
}

func text(s, path string) (Value, error) {
	if !utf8.ValidString(s) {
		return nil, failed(path, s, ErrInvalidText)
	}
	return Text(s), nil
}

// checked copies a Value built by hand, rejecting nil nodes, zero
// scalars and bad UTF-8.
func (c *converter) checked(v Value, path string) (Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, failed(path, v, ErrUnsupportedValueType)
	case Scalar:
		if !t.Valid() {
			return nil, failed(path, v, ErrUnsupportedValueType)
		}
		if t.kind == KindString && !utf8.ValidString(t.s) {
			return nil, failed(path, v, ErrInvalidText)
		}
		return t, nil
	case Text:
		return text(string(t), path)
	case Seq:
		in, ok := c.enter(reflect.ValueOf(t))
		if !ok {
			return nil, failed(path, v, ErrCycle)
		}
		defer c.leave(in)
		ret := make(Seq, len(t))
		for i, e := range t {
			ev, err := c.checked(e, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			ret[i] = ev
		}
		return ret, nil
	case Map:
		in, ok := c.enter(reflect.ValueOf(t))
		if !ok {
			return nil, failed(path, v, ErrCycle)
		}
		defer c.leave(in)
		ret := make(Map, len(t))
		for k, e := range t {
			if !utf8.ValidString(k) {
				return nil, failed(path, k, ErrInvalidText)
			}
			ev, err := c.checked(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			ret[k] = ev
		}
		return ret, nil
	}
	return nil, failed(path, v, ErrUnsupportedValueType)
}

func intValue[T constraints.Signed](i T) Value {
	return Int(int64(i))
}

func uintValue[T constraints.Unsigned](u T) Value {
	if uint64(u) > math.MaxInt64 {
		return Uint(uint64(u))
	}
	return Int(int64(u))
}

func (c *converter) fromHost(x any, path string) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return c.checked(v, path)
	case int:
		return intValue(v), nil
	case int8:
		return intValue(v), nil
	case int16:
		return intValue(v), nil
	case int32:
		return intValue(v), nil
	case int64:
		return intValue(v), nil
	case uint:
		return uintValue(v), nil
	case uint8:
		return uintValue(v), nil
	case uint16:
		return uintValue(v), nil
	case uint32:
		return uintValue(v), nil
	case uint64:
		return uintValue(v), nil
	case float32:
		return Float64(float64(v)), nil
	case float64:
		return Float64(v), nil
	case string:
		return text(v, path)
	case []byte:
		return nil, failed(path, x, ErrBinaryUnsupported)
	case []any:
		in, ok := c.enter(reflect.ValueOf(v))
		if !ok {
			return nil, failed(path, x, ErrCycle)
		}
		defer c.leave(in)
		seq := make(Seq, 0, len(v))
		for i, e := range v {
			ev, err := c.fromHost(e, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			seq = append(seq, ev)
		}
		return seq, nil
	case map[string]any:
		in, ok := c.enter(reflect.ValueOf(v))
		if !ok {
			return nil, failed(path, x, ErrCycle)
		}
		defer c.leave(in)
		m := make(Map, len(v))
		for k, e := range v {
			if !utf8.ValidString(k) {
				return nil, failed(path, k, ErrInvalidText)
			}
			ev, err := c.fromHost(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			m[k] = ev
		}
		return m, nil
	case bool:
		return Bool(v), nil
	case Counter:
		return CounterOf(int64(v)), nil
	case time.Time:
		return TimestampOf(v), nil
	}
	return c.fromReflect(reflect.ValueOf(x), path)
}

// fromReflect covers named and composite types the fast path misses.
func (c *converter) fromReflect(rv reflect.Value, path string) (Value, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Float64(rv.Float()), nil
	case reflect.String:
		return text(rv.String(), path)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, failed(path, rv.Interface(), ErrBinaryUnsupported)
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Seq{}, nil
		}
		if rv.Kind() == reflect.Slice {
			in, ok := c.enter(rv)
			if !ok {
				return nil, failed(path, rv.Interface(), ErrCycle)
			}
			defer c.leave(in)
		}
		seq := make(Seq, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := c.fromHost(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			seq = append(seq, ev)
		}
		return seq, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, failed(path, rv.Interface(), ErrUnsupportedKeyType)
		}
		in, ok := c.enter(rv)
		if !ok {
			return nil, failed(path, rv.Interface(), ErrCycle)
		}
		defer c.leave(in)
		m := make(Map, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			key := it.Key().String()
			if !utf8.ValidString(key) {
				return nil, failed(path, key, ErrInvalidText)
			}
			ev, err := c.fromHost(it.Value().Interface(), path+"."+key)
			if err != nil {
				return nil, err
			}
			m[key] = ev
		}
		return m, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Kind() == reflect.Pointer {
			in, ok := c.enter(rv)
			if !ok {
				return nil, failed(path, rv.Interface(), ErrCycle)
			}
			defer c.leave(in)
		}
		return c.fromHost(rv.Elem().Interface(), path)
	case reflect.Invalid:
		return Null(), nil
	}
	return nil, failed(path, rv.Interface(), ErrUnsupportedValueType)
}

// ToHost turns a Value into plain Go values: string, []any,
// map[string]any, int64, uint64, float32, float64, bool, nil,
// Counter and time.Time. Text and String scalars both come back as
// string.
func ToHost(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Text:
		return string(t)
	case Seq:
		ret := make([]any, len(t))
		for i, e := range t {
			ret[i] = ToHost(e)
		}
		return ret
	case Map:
		ret := make(map[string]any, len(t))
		for k, e := range t {
			ret[k] = ToHost(e)
		}
		return ret
	case Scalar:
		return scalarToHost(t)
	}
	return nil
}

func scalarToHost(s Scalar) any {
	switch s.Kind() {
	case KindInt:
		return s.Int()
	case KindUint:
		return s.Uint()
	case KindFloat64:
		return s.Float()
	case KindFloat32:
		return float32(s.Float())
	case KindBool:
		return s.Bool()
	case KindString:
		return s.Str()
	case KindCounter:
		return Counter(s.Int())
	case KindTimestamp:
		return s.Time()
	}
	return nil
}

// Normalize is ToHost(FromHost(x)): the shape x takes after a trip
// through a document.
func Normalize(x any) (any, error) {
	v, err := FromHost(x)
	if err != nil {
		return nil, err
	}
	return ToHost(v), nil
}

package engine

import (
	"time"
	"unicode/utf8"

	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
)

// Tx builds one local change. Every edit is applied to the state as it
// is made, so later edits in the same Tx see the earlier ones.
type Tx struct {
	st     *State
	change *Change
}

// Root is the document root map.
func (tx *Tx) Root() rdx.Time {
	return rdx.Time0
}

func (tx *Tx) emit(op Op) (rdx.Time, error) {
	stamp := tx.change.Stamp(len(tx.change.Ops))
	if err := tx.st.applyOp(stamp, &op); err != nil {
		return stamp, err
	}
	tx.change.Ops = append(tx.change.Ops, op)
	return stamp, nil
}

func (tx *Tx) mapObject(obj rdx.Time) (*object, error) {
	o, err := tx.st.object(obj)
	if err != nil {
		return nil, err
	}
	if o.kind != value.KindMap {
		return nil, ErrNotMap
	}
	return o, nil
}

func (tx *Tx) listObject(obj rdx.Time) (*object, error) {
	o, err := tx.st.object(obj)
	if err != nil {
		return nil, err
	}
	if !o.isList() {
		return nil, ErrNotList
	}
	return o, nil
}

// Lookup finds the value under a map key: the object id for
// containers, the scalar otherwise.
func (tx *Tx) Lookup(obj rdx.Time, key string) (id rdx.Time, kind value.Kind, ok bool) {
	o, err := tx.mapObject(obj)
	if err != nil {
		return
	}
	s, found := o.keys[key]
	if !found || !s.visible() {
		return
	}
	if s.win.make != 0 {
		return s.win.stamp, s.win.make, true
	}
	return rdx.Time0, s.win.scalar.Kind(), true
}

// Set assigns a map key; containers are created and filled recursively.
func (tx *Tx) Set(obj rdx.Time, key string, v value.Value) error {
	if _, err := tx.mapObject(obj); err != nil {
		return err
	}
	op := Op{Type: OpSet, Obj: obj, Key: key}
	return tx.put(op, v)
}

// checkValue rejects what cannot be put on the wire. Children are
// checked as they are written.
func checkValue(v value.Value) error {
	switch t := v.(type) {
	case nil:
		return ErrBadValue
	case value.Scalar:
		if !t.Valid() || t.Kind() == value.KindString && !utf8.ValidString(t.Str()) {
			return ErrBadValue
		}
	case value.Text:
		if !utf8.ValidString(string(t)) {
			return ErrBadValue
		}
	}
	return nil
}

func (tx *Tx) put(op Op, v value.Value) error {
	if err := checkValue(v); err != nil {
		return err
	}
	if s, ok := v.(value.Scalar); ok {
		op.Scalar = s
		_, err := tx.emit(op)
		return err
	}
	op.Make = v.Kind()
	id, err := tx.emit(op)
	if err != nil {
		return err
	}
	return tx.fill(id, v)
}

func (tx *Tx) fill(id rdx.Time, v value.Value) error {
	switch t := v.(type) {
	case value.Map:
		for _, key := range t.Keys() {
			if err := tx.Set(id, key, t[key]); err != nil {
				return err
			}
		}
	case value.Seq:
		after := rdx.Time0
		for _, e := range t {
			var err error
			if after, err = tx.insertAfter(id, after, e); err != nil {
				return err
			}
		}
	case value.Text:
		_, err := tx.insertText(id, rdx.Time0, string(t))
		return err
	}
	return nil
}

// Delete removes a map key; deleting a missing key is a no-op.
func (tx *Tx) Delete(obj rdx.Time, key string) error {
	o, err := tx.mapObject(obj)
	if err != nil {
		return err
	}
	if s, ok := o.keys[key]; !ok || !s.visible() {
		return nil
	}
	_, err = tx.emit(Op{Type: OpDelete, Obj: obj, Key: key})
	return err
}

// Increment adds delta to the counter under key.
func (tx *Tx) Increment(obj rdx.Time, key string, delta int64) error {
	o, err := tx.mapObject(obj)
	if err != nil {
		return err
	}
	s, ok := o.keys[key]
	if !ok || !s.visible() || s.win.make != 0 || s.win.scalar.Kind() != value.KindCounter {
		return ErrNotCounter
	}
	_, err = tx.emit(Op{Type: OpAdd, Obj: obj, Key: key, Ref: s.win.stamp, Scalar: value.Int(delta)})
	return err
}

func (tx *Tx) insertAfter(obj, after rdx.Time, v value.Value) (rdx.Time, error) {
	if err := checkValue(v); err != nil {
		return after, err
	}
	op := Op{Type: OpInsert, Obj: obj, Ref: after}
	if s, ok := v.(value.Scalar); ok {
		op.Scalar = s
		return tx.emit(op)
	}
	op.Make = v.Kind()
	id, err := tx.emit(op)
	if err != nil {
		return id, err
	}
	return id, tx.fill(id, v)
}

func (tx *Tx) insertText(obj, after rdx.Time, text string) (rdx.Time, error) {
	if !utf8.ValidString(text) {
		return after, ErrBadValue
	}
	for _, r := range text {
		var err error
		after, err = tx.emit(Op{Type: OpInsert, Obj: obj, Ref: after, Scalar: value.Str(string(r))})
		if err != nil {
			return after, err
		}
	}
	return after, nil
}

// Insert puts v at index of a list, 0 <= index <= len.
func (tx *Tx) Insert(obj rdx.Time, index int, v value.Value) error {
	o, err := tx.listObject(obj)
	if err != nil {
		return err
	}
	vis := o.visible()
	if index < 0 || index > len(vis) {
		return ErrIndex
	}
	after := rdx.Time0
	if index > 0 {
		after = vis[index-1].id
	}
	if o.kind == value.KindText {
		s, ok := v.(value.Scalar)
		if !ok || s.Kind() != value.KindString {
			return ErrNotText
		}
		_, err = tx.insertText(obj, after, s.Str())
		return err
	}
	_, err = tx.insertAfter(obj, after, v)
	return err
}

// SetAt overwrites the element at index.
func (tx *Tx) SetAt(obj rdx.Time, index int, v value.Value) error {
	o, err := tx.listObject(obj)
	if err != nil {
		return err
	}
	vis := o.visible()
	if index < 0 || index >= len(vis) {
		return ErrIndex
	}
	return tx.put(Op{Type: OpUpdate, Obj: obj, Ref: vis[index].id}, v)
}

// Remove erases the element at index.
func (tx *Tx) Remove(obj rdx.Time, index int) error {
	o, err := tx.listObject(obj)
	if err != nil {
		return err
	}
	vis := o.visible()
	if index < 0 || index >= len(vis) {
		return ErrIndex
	}
	_, err = tx.emit(Op{Type: OpErase, Obj: obj, Ref: vis[index].id})
	return err
}

// Splice deletes del characters of a text at pos, then inserts text
// there. Positions count characters (runes).
func (tx *Tx) Splice(obj rdx.Time, pos, del int, text string) error {
	o, err := tx.listObject(obj)
	if err != nil {
		return err
	}
	if o.kind != value.KindText {
		return ErrNotText
	}
	vis := o.visible()
	if pos < 0 || del < 0 || pos+del > len(vis) {
		return ErrIndex
	}
	if !utf8.ValidString(text) {
		return ErrBadValue
	}
	for _, el := range vis[pos : pos+del] {
		if _, err = tx.emit(Op{Type: OpErase, Obj: obj, Ref: el.id}); err != nil {
			return err
		}
	}
	after := rdx.Time0
	if pos > 0 {
		after = vis[pos-1].id
	}
	_, err = tx.insertText(obj, after, text)
	return err
}

// ApplyLocal runs edit and packs the ops it made into one change.
// An edit that makes no ops yields a nil change. If edit fails the
// State is broken and must be reloaded.
func (st *State) ApplyLocal(edit func(tx *Tx) error, message string) (change []byte, patch Patch, err error) {
	if st.broken {
		return nil, patch, ErrBroken
	}
	seq := st.vv.Get(st.src) + 1
	c := &Change{
		ID:      rdx.NewID(st.src, seq),
		Start:   st.maxRev + 1,
		Deps:    st.vv.Clone(),
		Wall:    time.Now().UnixMilli(),
		Message: message,
	}
	tx := &Tx{st: st, change: c}
	if err = edit(tx); err != nil {
		if len(c.Ops) > 0 {
			st.broken = true
		}
		return nil, patch, err
	}
	if len(c.Ops) == 0 {
		return nil, patch, nil
	}
	st.commit(c)
	patch.Applied = []rdx.ID{c.ID}
	patch.Ops = len(c.Ops)
	return c.Bytes(), patch, nil
}

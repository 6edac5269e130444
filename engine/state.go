package engine

import (
	"bytes"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
)

var (
	ErrBadSource     = errors.New("engine: source id must be in 1..MaxSrc")
	ErrSeqConflict   = errors.New("engine: same change id, different content")
	ErrUnknownObject = errors.New("engine: no such object")
	ErrUnknownElem   = errors.New("engine: no such list element")
	ErrNotList       = errors.New("engine: not a list or text object")
	ErrNotMap        = errors.New("engine: not a map object")
	ErrNotText       = errors.New("engine: not a text object")
	ErrNotCounter    = errors.New("engine: not a counter")
	ErrIndex         = errors.New("engine: index out of range")
	ErrBadValue      = errors.New("engine: nil value, zero scalar or bad UTF-8")
	ErrBroken        = errors.New("engine: state is inconsistent after a failed update")
)

// Patch summarizes what an apply call did.
type Patch struct {
	Applied []rdx.ID
	Queued  int
	Ops     int
}

// State is the merge state of one document replica: the objects, the
// log of applied changes in application order and the queue of
// changes that arrived before their dependencies.
// A State is not safe for concurrent use.
type State struct {
	src    uint64
	vv     rdx.VV
	maxRev int64

	objects map[rdx.Time]*object
	log     []*Change
	index   map[rdx.ID]int
	queue   []*Change

	broken bool
}

// Init makes an empty state; src names the local replica.
func Init(src uint64) (*State, error) {
	if src == 0 || src > rdx.MaxSrc {
		return nil, ErrBadSource
	}
	st := &State{
		src:     src,
		vv:      make(rdx.VV),
		objects: make(map[rdx.Time]*object),
		index:   make(map[rdx.ID]int),
	}
	st.objects[rdx.Time0] = newObject(rdx.Time0, value.KindMap)
	return st, nil
}

// VersionVector of applied changes; a copy.
func (st *State) VersionVector() rdx.VV {
	return st.vv.Clone()
}

// Len is the number of applied changes.
func (st *State) Len() int {
	return len(st.log)
}

// Queued is the number of changes waiting for their deps.
func (st *State) Queued() int {
	return len(st.queue)
}

// Changes returns all applied changes in application order.
func (st *State) Changes() [][]byte {
	return st.ChangesSince(nil)
}

// ChangesSince returns the applied changes vv has not seen, in
// application order, which is causal order.
func (st *State) ChangesSince(vv rdx.VV) (ret [][]byte) {
	for _, c := range st.log {
		if vv == nil || !vv.SeenID(c.ID) {
			ret = append(ret, c.Bytes())
		}
	}
	return
}

// ApplyRemote merges changes from any replica, in any order.
// Already seen changes are skipped, premature ones are queued until
// their deps arrive. Malformed input fails before anything is applied;
// a failure while applying leaves the State broken.
func (st *State) ApplyRemote(changes [][]byte) (patch Patch, err error) {
	if st.broken {
		return patch, ErrBroken
	}
	decoded := make([]*Change, 0, len(changes))
	for _, raw := range changes {
		c, err := DecodeChange(raw)
		if err != nil {
			return patch, err
		}
		decoded = append(decoded, c)
	}
	queued := len(st.queue)
	for _, c := range decoded {
		if err = st.checkSeen(c); err != nil {
			clear(st.queue[queued:])
			st.queue = st.queue[:queued]
			return patch, err
		}
		if !st.vv.SeenID(c.ID) && !st.isQueued(c.ID) {
			st.queue = append(st.queue, c)
		}
	}
	err = st.drain(&patch)
	patch.Queued = len(st.queue)
	return
}

func (st *State) checkSeen(c *Change) error {
	if i, ok := st.index[c.ID]; ok && !bytes.Equal(st.log[i].Bytes(), c.Bytes()) {
		return ErrSeqConflict
	}
	for _, q := range st.queue {
		if q.ID == c.ID && !bytes.Equal(q.Bytes(), c.Bytes()) {
			return ErrSeqConflict
		}
	}
	return nil
}

func (st *State) isQueued(id rdx.ID) bool {
	for _, q := range st.queue {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (st *State) ready(c *Change) bool {
	return st.vv.Get(c.ID.Src())+1 == c.ID.Seq() && st.vv.Seen(c.Deps)
}

// drain applies queued changes until none is ready.
func (st *State) drain(patch *Patch) error {
	for progress := true; progress; {
		progress = false
		rest := st.queue[:0]
		for _, c := range st.queue {
			switch {
			case st.vv.SeenID(c.ID):
			case st.ready(c):
				if err := st.apply(c); err != nil {
					st.broken = true
					return err
				}
				patch.Applied = append(patch.Applied, c.ID)
				patch.Ops += len(c.Ops)
				progress = true
			default:
				rest = append(rest, c)
			}
		}
		clear(st.queue[len(rest):])
		st.queue = rest
	}
	return nil
}

func (st *State) apply(c *Change) error {
	for i := range c.Ops {
		if err := st.applyOp(c.Stamp(i), &c.Ops[i]); err != nil {
			return err
		}
	}
	st.commit(c)
	return nil
}

func (st *State) commit(c *Change) {
	st.vv.PutID(c.ID)
	if last := c.Last().Rev; last > st.maxRev {
		st.maxRev = last
	}
	st.index[c.ID] = len(st.log)
	st.log = append(st.log, c)
}

func (st *State) object(id rdx.Time) (*object, error) {
	o, ok := st.objects[id]
	if !ok {
		return nil, ErrUnknownObject
	}
	return o, nil
}

func (st *State) applyOp(stamp rdx.Time, op *Op) error {
	o, err := st.object(op.Obj)
	if err != nil {
		return err
	}
	if stamp.Rev > st.maxRev {
		st.maxRev = stamp.Rev
	}
	e := entry{stamp: stamp, make: op.Make, scalar: op.Scalar}
	switch op.Type {
	case OpSet, OpDelete, OpAdd:
		if o.kind != value.KindMap {
			return ErrNotMap
		}
	default:
		if !o.isList() {
			return ErrNotList
		}
		if o.kind == value.KindText && op.hasValue() &&
			(op.Make != 0 || op.Scalar.Kind() != value.KindString) {
			return ErrNotText
		}
	}
	switch op.Type {
	case OpSet:
		o.keySlot(op.Key).put(e)
	case OpDelete:
		e.del = true
		o.keySlot(op.Key).put(e)
	case OpAdd:
		o.keySlot(op.Key).add(op.Ref, op.Scalar.Int())
	case OpInsert:
		if !o.insert(stamp, op.Ref, e) {
			return ErrUnknownElem
		}
	case OpUpdate, OpErase:
		el, ok := o.elems[op.Ref]
		if !ok {
			return ErrUnknownElem
		}
		e.del = op.Type == OpErase
		el.put(e)
	}
	if op.Make != 0 {
		if _, dup := st.objects[stamp]; dup {
			return ErrBadChange
		}
		st.objects[stamp] = newObject(stamp, op.Make)
	}
	return nil
}

// Resolve materializes the current document tree.
func (st *State) Resolve() value.Map {
	return st.resolve(st.objects[rdx.Time0]).(value.Map)
}

func (st *State) resolve(o *object) value.Value {
	switch o.kind {
	case value.KindMap:
		m := make(value.Map, len(o.keys))
		for key, s := range o.keys {
			if s.visible() {
				m[key] = st.resolveSlot(s)
			}
		}
		return m
	case value.KindText:
		var b strings.Builder
		for _, el := range o.visible() {
			b.WriteString(el.win.scalar.Str())
		}
		return value.Text(b.String())
	default:
		vis := o.visible()
		seq := make(value.Seq, 0, len(vis))
		for _, el := range vis {
			seq = append(seq, st.resolveSlot(&el.slot))
		}
		return seq
	}
}

func (st *State) resolveSlot(s *slot) value.Value {
	if s.win.make != 0 {
		return st.resolve(st.objects[s.win.stamp])
	}
	if s.win.scalar.Kind() == value.KindCounter {
		return value.CounterOf(s.counter())
	}
	return s.win.scalar
}

// Digest hashes the set of applied changes. Replicas that applied the
// same changes in any order have the same digest.
func (st *State) Digest() uint64 {
	ids := make([]rdx.ID, 0, len(st.log))
	for id := range st.index {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, rdx.ID.Compare)
	h := xxhash.New()
	for _, id := range ids {
		_, _ = h.Write(st.log[st.index[id]].Bytes())
	}
	return h.Sum64()
}

// Dump lists the applied changes, then the queued ones.
func (st *State) Dump() string {
	var b strings.Builder
	for _, c := range st.log {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	queued := slices.Clone(st.queue)
	sort.Slice(queued, func(i, j int) bool { return queued[i].ID.Less(queued[j].ID) })
	for _, c := range queued {
		b.WriteString("queued ")
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

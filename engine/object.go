package engine

import (
	"slices"

	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
)

// entry is one write to a slot: a scalar, a made object (named by
// stamp) or a tombstone.
type entry struct {
	stamp  rdx.Time
	del    bool
	make   value.Kind
	scalar value.Scalar
}

// slot is a last-writer-wins register: the highest stamp wins.
// Counter adds are kept per target set op, so a later overwrite
// starts from a clean counter and a concurrent one keeps its own.
type slot struct {
	win  entry
	adds map[rdx.Time]int64
}

func (s *slot) put(e entry) {
	if s.win.stamp.Less(e.stamp) {
		s.win = e
	}
}

func (s *slot) add(target rdx.Time, delta int64) {
	if s.adds == nil {
		s.adds = make(map[rdx.Time]int64)
	}
	s.adds[target] += delta
}

func (s *slot) visible() bool {
	return !s.win.stamp.IsZero() && !s.win.del
}

// counter is the winning counter base plus the adds aimed at it.
func (s *slot) counter() int64 {
	return s.win.scalar.Int() + s.adds[s.win.stamp]
}

// element of a list; id is the stamp of the insert op.
type element struct {
	id     rdx.Time
	parent rdx.Time
	slot
}

type object struct {
	id   rdx.Time
	kind value.Kind

	// maps
	keys map[string]*slot

	// lists and texts: an RGA tree, children sorted by id descending
	elems    map[rdx.Time]*element
	children map[rdx.Time][]rdx.Time
}

func newObject(id rdx.Time, kind value.Kind) *object {
	o := &object{id: id, kind: kind}
	if kind == value.KindMap {
		o.keys = make(map[string]*slot)
	} else {
		o.elems = make(map[rdx.Time]*element)
		o.children = make(map[rdx.Time][]rdx.Time)
	}
	return o
}

func (o *object) isList() bool {
	return o.kind == value.KindSeq || o.kind == value.KindText
}

func (o *object) keySlot(key string) *slot {
	s, ok := o.keys[key]
	if !ok {
		s = &slot{}
		o.keys[key] = s
	}
	return s
}

func (o *object) insert(id, after rdx.Time, e entry) bool {
	if _, dup := o.elems[id]; dup {
		return false
	}
	if !after.IsZero() {
		if _, ok := o.elems[after]; !ok {
			return false
		}
	}
	el := &element{id: id, parent: after}
	el.put(e)
	o.elems[id] = el
	kids := o.children[after]
	at, _ := slices.BinarySearchFunc(kids, id, func(a, b rdx.Time) int {
		return b.Compare(a)
	})
	o.children[after] = slices.Insert(kids, at, id)
	return true
}

// order is the RGA linearization: depth first, newer siblings first.
func (o *object) order() []*element {
	ret := make([]*element, 0, len(o.elems))
	stack := []rdx.Time{rdx.Time0}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !top.IsZero() {
			ret = append(ret, o.elems[top])
		}
		kids := o.children[top]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return ret
}

// visible elements in document order.
func (o *object) visible() []*element {
	all := o.order()
	ret := all[:0]
	for _, el := range all {
		if el.visible() {
			ret = append(ret, el)
		}
	}
	return ret
}

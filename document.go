// Package rtcdoc is a replicated JSON-like document: a snapshot of
// merge state plus the changes that produced it. Edits made on one
// replica travel as changes and merge on any other replica in any
// order, with the same result everywhere.
package rtcdoc

import (
	"bytes"
	"errors"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/drpcorg/rtcdoc/engine"
	"github.com/drpcorg/rtcdoc/rdx"
	"github.com/drpcorg/rtcdoc/value"
	perrors "github.com/pkg/errors"
)

// Document holds nothing but a snapshot between calls; every method
// loads the state, works on it and saves it back. A failed call leaves
// the snapshot as it was. A Document is not safe for concurrent use.
type Document struct {
	snapshot []byte
	opts     Options
}

// Create makes a document holding initial, one change per top-level
// field in key order.
func Create(initial map[string]any, opts Options) (doc *Document, err error) {
	start := time.Now()
	defer func() { observe("create", start, err) }()
	opts.SetDefaults()
	fields := make(value.Map, len(initial))
	for key, x := range initial {
		v, err := value.FromHost(x)
		if err != nil {
			return nil, classify(ErrConversion, perrors.Wrapf(err, "field %q", key))
		}
		fields[key] = v
	}
	st, err := engine.Init(opts.Src)
	if err != nil {
		return nil, classify(ErrApply, err)
	}
	for _, key := range fields.Keys() {
		_, _, err = st.ApplyLocal(func(tx *engine.Tx) error {
			return tx.Set(tx.Root(), key, fields[key])
		}, "")
		if err != nil {
			return nil, classify(ErrApply, perrors.Wrapf(err, "field %q", key))
		}
	}
	doc = &Document{opts: opts}
	doc.store(st)
	opts.Logger.Debug("document created", "src", opts.Src, "fields", len(fields))
	return doc, nil
}

// Load wraps a snapshot made by Save.
func Load(snapshot []byte, opts Options) (*Document, error) {
	opts.SetDefaults()
	st, err := engine.Load(opts.Src, snapshot)
	if err != nil {
		if errors.Is(err, engine.ErrBadSnapshot) {
			return nil, classify(ErrDeserialization, err)
		}
		return nil, classify(ErrApply, err)
	}
	doc := &Document{opts: opts}
	doc.store(st)
	return doc, nil
}

func (doc *Document) load() (*engine.State, error) {
	st, err := engine.Load(doc.opts.Src, doc.snapshot)
	if err != nil {
		doc.opts.Logger.Error("stored snapshot does not load", "err", err)
		return nil, classify(ErrDeserialization, err)
	}
	return st, nil
}

func (doc *Document) store(st *engine.State) {
	doc.snapshot = st.Save()
	DocumentSnapshotBytes.Observe(float64(len(doc.snapshot)))
}

// Src is the replica id local changes are authored by.
func (doc *Document) Src() uint64 {
	return doc.opts.Src
}

// Save returns a copy of the snapshot.
func (doc *Document) Save() []byte {
	return bytes.Clone(doc.snapshot)
}

// edit runs fn as one local change and keeps the result only on success.
func (doc *Document) edit(op string, fn func(tx *engine.Tx) error) (err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()
	st, err := doc.load()
	if err != nil {
		return err
	}
	change, _, err := st.ApplyLocal(fn, "")
	if err != nil {
		return err
	}
	if change != nil {
		doc.store(st)
	}
	return nil
}

func engineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConversion), errors.Is(err, ErrApply),
		errors.Is(err, ErrDeserialization), errors.Is(err, ErrNoSuchKey),
		errors.Is(err, ErrNotText), errors.Is(err, ErrNotCounter):
		return err
	case errors.Is(err, engine.ErrNotText):
		return classify(ErrNotText, err)
	case errors.Is(err, engine.ErrNotCounter):
		return classify(ErrNotCounter, err)
	case errors.Is(err, engine.ErrBadValue):
		return classify(ErrConversion, err)
	}
	return classify(ErrApply, err)
}

// Set assigns a top-level field; the value is converted with
// value.FromHost.
func (doc *Document) Set(key string, x any) error {
	v, err := value.FromHost(x)
	if err != nil {
		observe("set", time.Now(), err)
		return classify(ErrConversion, perrors.Wrapf(err, "field %q", key))
	}
	return engineError(doc.edit("set", func(tx *engine.Tx) error {
		return tx.Set(tx.Root(), key, v)
	}))
}

// Delete removes a top-level field.
func (doc *Document) Delete(key string) error {
	return engineError(doc.edit("delete", func(tx *engine.Tx) error {
		if _, _, ok := tx.Lookup(tx.Root(), key); !ok {
			return perrors.Wrapf(ErrNoSuchKey, "field %q", key)
		}
		return tx.Delete(tx.Root(), key)
	}))
}

// SpliceText edits a text field: del characters at pos are replaced
// with insert.
func (doc *Document) SpliceText(key string, pos, del int, insert string) error {
	if !utf8.ValidString(insert) {
		err := perrors.Wrapf(&value.ConversionError{Type: "string", Err: value.ErrInvalidText}, "field %q", key)
		observe("splice", time.Now(), err)
		return classify(ErrConversion, err)
	}
	return engineError(doc.edit("splice", func(tx *engine.Tx) error {
		id, kind, ok := tx.Lookup(tx.Root(), key)
		if !ok {
			return perrors.Wrapf(ErrNoSuchKey, "field %q", key)
		}
		if kind != value.KindText {
			return perrors.Wrapf(ErrNotText, "field %q is %s", key, kind)
		}
		return perrors.Wrapf(tx.Splice(id, pos, del, insert), "field %q", key)
	}))
}

// Increment adds delta to a counter field.
func (doc *Document) Increment(key string, delta int64) error {
	return engineError(doc.edit("increment", func(tx *engine.Tx) error {
		if _, _, ok := tx.Lookup(tx.Root(), key); !ok {
			return perrors.Wrapf(ErrNoSuchKey, "field %q", key)
		}
		return perrors.Wrapf(tx.Increment(tx.Root(), key, delta), "field %q", key)
	}))
}

// ApplyChanges merges changes made anywhere, in any order. Changes seen
// before are skipped; changes whose dependencies are missing wait in
// the snapshot until the dependencies arrive.
func (doc *Document) ApplyChanges(changes [][]byte) (err error) {
	start := time.Now()
	defer func() { observe("apply", start, err) }()
	st, err := doc.load()
	if err != nil {
		return err
	}
	patch, err := st.ApplyRemote(changes)
	if err != nil {
		if errors.Is(err, engine.ErrBadChange) {
			return classify(ErrDeserialization, err)
		}
		return classify(ErrApply, err)
	}
	DocumentChangesApplied.Add(float64(len(patch.Applied)))
	if len(patch.Applied) > 0 || st.Queued() > 0 {
		doc.store(st)
	}
	if patch.Queued > 0 {
		doc.opts.Logger.Debug("changes wait for their dependencies", "queued", patch.Queued)
	}
	return nil
}

// Changes lists every applied change, oldest first.
func (doc *Document) Changes() ([][]byte, error) {
	return doc.ChangesSince(nil)
}

// ChangesSince lists the applied changes vv has not seen.
func (doc *Document) ChangesSince(vv rdx.VV) ([][]byte, error) {
	st, err := doc.load()
	if err != nil {
		return nil, err
	}
	return st.ChangesSince(vv), nil
}

// VersionVector summarizes the applied changes.
func (doc *Document) VersionVector() (rdx.VV, error) {
	st, err := doc.load()
	if err != nil {
		return nil, err
	}
	return st.VersionVector(), nil
}

// ToMap materializes the document as plain Go values, see value.ToHost.
func (doc *Document) ToMap() (map[string]any, error) {
	st, err := doc.load()
	if err != nil {
		return nil, err
	}
	return value.ToHost(st.Resolve()).(map[string]any), nil
}

// Get returns one top-level field as a plain Go value.
func (doc *Document) Get(key string) (any, error) {
	st, err := doc.load()
	if err != nil {
		return nil, err
	}
	v, ok := st.Resolve()[key]
	if !ok {
		return nil, perrors.Wrapf(ErrNoSuchKey, "field %q", key)
	}
	return value.ToHost(v), nil
}

// Keys lists the top-level fields, sorted.
func (doc *Document) Keys() ([]string, error) {
	st, err := doc.load()
	if err != nil {
		return nil, err
	}
	return st.Resolve().Keys(), nil
}

// Copy is an independent document with the same snapshot and replica
// id. Edit only one of the two or use Fork: two replicas authoring
// under one id conflict when they meet.
func (doc *Document) Copy() *Document {
	return &Document{
		snapshot: slices.Clone(doc.snapshot),
		opts:     doc.opts,
	}
}

// Fork is Copy with a fresh replica id.
func (doc *Document) Fork() *Document {
	cp := doc.Copy()
	for cp.opts.Src == doc.opts.Src {
		cp.opts.Src = NewSource()
	}
	return cp
}

// Digest is equal for documents that applied the same changes.
func (doc *Document) Digest() (uint64, error) {
	st, err := doc.load()
	if err != nil {
		return 0, err
	}
	return st.Digest(), nil
}

// Dump is a readable listing of the change log.
func (doc *Document) Dump() (string, error) {
	st, err := doc.load()
	if err != nil {
		return "", err
	}
	return st.Dump(), nil
}

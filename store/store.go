// Package store keeps document snapshots in pebble, by name, together
// with a history of every version written.
package store

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/rtcdoc/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

/*
Keys:

	S name            current snapshot
	H name 0 ulid     past versions, oldest first

Values are zstd frames.
*/

const (
	keyCurrent = byte('S')
	keyHistory = byte('H')
)

var (
	ErrNotFound = errors.New("store: no such document")
	ErrBadName  = errors.New("store: document names are non-empty and have no zero bytes")
	ErrClosed   = errors.New("store: closed")
)

var StoreWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "store",
	Name:      "writes",
}, []string{"op"})

var StoreCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "store",
	Name:      "cache_hits",
})

var StoreBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "store",
	Name:      "bytes",
}, []string{"form"})

type Options struct {
	// FS is the pebble file system, vfs.Default unless set; tests use vfs.NewMem().
	FS vfs.FS
	// HistoryLimit is the number of versions kept per document, 0 keeps all.
	HistoryLimit int
	// NoSync skips fsync on writes.
	NoSync bool
	// CacheSize is the number of current snapshots kept decompressed
	// in memory; negative disables the cache.
	CacheSize int
	Logger    utils.Logger
}

func (o *Options) SetDefaults() {
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.CacheSize == 0 {
		o.CacheSize = 128
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

// Version is one entry of a document history.
type Version struct {
	ID   ulid.ULID
	Time time.Time
	Size int
}

// Store is safe for concurrent use.
type Store struct {
	db   *pebble.DB
	opts Options
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	// cache holds current snapshots by name, nil if disabled
	cache *lru.Cache[string, []byte]
	// wmu orders writes so the cache follows the commit order
	wmu    sync.Mutex
	docs   atomic.Int64
	closed atomic.Bool
}

func Open(dir string, opts Options) (st *Store, err error) {
	opts.SetDefaults()
	st = &Store{opts: opts}
	st.db, err = pebble.Open(dir, &pebble.Options{FS: opts.FS})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dir)
	}
	if st.enc, err = zstd.NewWriter(nil); err != nil {
		_ = st.db.Close()
		return nil, errors.Wrap(err, "zstd writer")
	}
	if st.dec, err = zstd.NewReader(nil); err != nil {
		_ = st.db.Close()
		return nil, errors.Wrap(err, "zstd reader")
	}
	if opts.CacheSize > 0 {
		st.cache, _ = lru.New[string, []byte](opts.CacheSize)
	}
	names, err := st.Names()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.docs.Store(int64(len(names)))
	opts.Logger.Info("store open", "dir", dir, "documents", len(names))
	return st, nil
}

func (st *Store) Close() error {
	if st.closed.Swap(true) {
		return nil
	}
	st.enc.Close()
	st.dec.Close()
	return st.db.Close()
}

func (st *Store) writeOpts() *pebble.WriteOptions {
	if st.opts.NoSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func checkName(name string) error {
	if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 {
		return ErrBadName
	}
	return nil
}

func currentKey(name string) []byte {
	return append([]byte{keyCurrent}, name...)
}

func historyPrefix(name string) []byte {
	key := append([]byte{keyHistory}, name...)
	return append(key, 0)
}

func historyKey(name string, id ulid.ULID) []byte {
	return append(historyPrefix(name), id[:]...)
}

// prefixEnd is the least key above every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Put stores a snapshot as the current version and appends it to the
// history, in one batch.
func (st *Store) Put(name string, snapshot []byte) (id ulid.ULID, err error) {
	if err = checkName(name); err != nil {
		return
	}
	if st.closed.Load() {
		return id, ErrClosed
	}
	st.wmu.Lock()
	defer st.wmu.Unlock()
	_, existed, err := st.get(currentKey(name))
	if err != nil {
		return id, err
	}
	packed := st.enc.EncodeAll(snapshot, nil)
	id = ulid.Make()
	batch := st.db.NewBatch()
	defer batch.Close()
	if err = batch.Set(currentKey(name), packed, nil); err != nil {
		return
	}
	if err = batch.Set(historyKey(name, id), packed, nil); err != nil {
		return
	}
	if st.opts.HistoryLimit > 0 {
		if err = st.prune(batch, name, st.opts.HistoryLimit-1); err != nil {
			return
		}
	}
	if err = batch.Commit(st.writeOpts()); err != nil {
		return id, errors.Wrapf(err, "put %q", name)
	}
	if !existed {
		st.docs.Add(1)
	}
	if st.cache != nil {
		st.cache.Add(name, bytes.Clone(snapshot))
	}
	StoreWrites.WithLabelValues("put").Inc()
	StoreBytes.WithLabelValues("raw").Add(float64(len(snapshot)))
	StoreBytes.WithLabelValues("zstd").Add(float64(len(packed)))
	return id, nil
}

// prune deletes all but the newest keep history entries.
func (st *Store) prune(batch *pebble.Batch, name string, keep int) error {
	versions, err := st.History(name)
	if err != nil {
		return err
	}
	for len(versions) > keep {
		if err = batch.Delete(historyKey(name, versions[0].ID), nil); err != nil {
			return err
		}
		versions = versions[1:]
	}
	return nil
}

func (st *Store) get(key []byte) (data []byte, ok bool, err error) {
	val, closer, err := st.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	data, err = st.dec.DecodeAll(val, nil)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decompress %x", key)
	}
	return data, true, nil
}

// Get returns the current snapshot.
func (st *Store) Get(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if st.closed.Load() {
		return nil, ErrClosed
	}
	if st.cache != nil {
		if data, ok := st.cache.Get(name); ok {
			StoreCacheHits.Inc()
			return bytes.Clone(data), nil
		}
	}
	data, ok, err := st.get(currentKey(name))
	if err == nil && !ok {
		err = errors.Wrapf(ErrNotFound, "%q", name)
	}
	return data, err
}

// GetVersion returns one past snapshot.
func (st *Store) GetVersion(name string, id ulid.ULID) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if st.closed.Load() {
		return nil, ErrClosed
	}
	data, ok, err := st.get(historyKey(name, id))
	if err == nil && !ok {
		err = errors.Wrapf(ErrNotFound, "%q version %s", name, id)
	}
	return data, err
}

// History lists the versions of a document, oldest first.
func (st *Store) History(name string) (versions []Version, err error) {
	if err = checkName(name); err != nil {
		return
	}
	if st.closed.Load() {
		return nil, ErrClosed
	}
	prefix := historyPrefix(name)
	it, err := st.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var id ulid.ULID
		if copy(id[:], it.Key()[len(prefix):]) != len(id) {
			continue
		}
		versions = append(versions, Version{
			ID:   id,
			Time: ulid.Time(id.Time()),
			Size: len(it.Value()),
		})
	}
	return versions, it.Error()
}

// Delete drops a document with its history.
func (st *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if st.closed.Load() {
		return ErrClosed
	}
	st.wmu.Lock()
	defer st.wmu.Unlock()
	_, existed, err := st.get(currentKey(name))
	if err != nil {
		return err
	}
	if !existed {
		return errors.Wrapf(ErrNotFound, "%q", name)
	}
	batch := st.db.NewBatch()
	defer batch.Close()
	if err = batch.Delete(currentKey(name), nil); err != nil {
		return err
	}
	prefix := historyPrefix(name)
	if err = batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return err
	}
	if err = batch.Commit(st.writeOpts()); err != nil {
		return errors.Wrapf(err, "delete %q", name)
	}
	st.docs.Add(-1)
	if st.cache != nil {
		st.cache.Remove(name)
	}
	StoreWrites.WithLabelValues("delete").Inc()
	return nil
}

// Names lists stored documents, sorted.
func (st *Store) Names() (names []string, err error) {
	if st.closed.Load() {
		return nil, ErrClosed
	}
	prefix := []byte{keyCurrent}
	it, err := st.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		names = append(names, string(it.Key()[1:]))
	}
	return names, it.Error()
}

// Len is the number of stored documents.
func (st *Store) Len() int {
	return int(st.docs.Load())
}

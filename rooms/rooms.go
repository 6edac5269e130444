// Package rooms serves named documents to many callers in one process.
// Every room owns one document; updates to a room are serialized,
// persisted to the store and fanned out to the room's subscribers.
package rooms

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/drpcorg/rtcdoc"
	"github.com/drpcorg/rtcdoc/store"
	"github.com/drpcorg/rtcdoc/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrClosed   = errors.New("rooms: closed")
	ErrOverflow = errors.New("rooms: subscriber fell behind")
)

var RoomsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "rtcdoc",
	Subsystem: "rooms",
	Name:      "open",
})

var RoomUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "rooms",
	Name:      "updates",
}, []string{"result"})

var FeedOverflows = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "rtcdoc",
	Subsystem: "rooms",
	Name:      "feed_overflows",
})

type Options struct {
	// Src is the replica id of edits made through the hub; 0 is random.
	Src uint64
	// FeedSize is the number of changes a subscriber may lag behind.
	FeedSize int
	Logger   utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Src == 0 {
		o.Src = rtcdoc.NewSource()
	}
	if o.FeedSize <= 0 {
		o.FeedSize = 1024
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelWarn)
	}
}

type Hub struct {
	store  *store.Store
	rooms  *xsync.MapOf[string, *Room]
	opts   Options
	closed atomic.Bool
}

func NewHub(st *store.Store, opts Options) *Hub {
	opts.SetDefaults()
	return &Hub{
		store: st,
		rooms: xsync.NewMapOf[string, *Room](),
		opts:  opts,
	}
}

// Room returns the named room, loading its document from the store or
// starting an empty one.
func (h *Hub) Room(name string) (*Room, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	room, loaded := h.rooms.LoadOrCompute(name, func() *Room {
		return &Room{name: name, hub: h, feeds: make(map[*Feed]struct{})}
	})
	if !loaded {
		RoomsOpen.Inc()
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if err := room.open(); err != nil {
		return nil, err
	}
	return room, nil
}

// Names lists the open rooms.
func (h *Hub) Names() (names []string) {
	h.rooms.Range(func(name string, _ *Room) bool {
		names = append(names, name)
		return true
	})
	return
}

// Drop closes a room and deletes its document from the store. A room
// that was open but never written has nothing stored; dropping it is
// not an error.
func (h *Hub) Drop(name string) error {
	room, held := h.rooms.LoadAndDelete(name)
	if held {
		RoomsOpen.Dec()
		room.mu.Lock()
		room.closeFeeds()
		room.doc = nil
		room.dropped = true
		room.mu.Unlock()
	}
	err := h.store.Delete(name)
	if held && errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Close ends every subscription; the store stays open.
func (h *Hub) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.rooms.Range(func(name string, room *Room) bool {
		room.mu.Lock()
		room.closeFeeds()
		room.mu.Unlock()
		h.rooms.Delete(name)
		RoomsOpen.Dec()
		return true
	})
	return nil
}

type Room struct {
	name string
	hub  *Hub

	mu      sync.Mutex
	doc     *rtcdoc.Document
	feeds   map[*Feed]struct{}
	dropped bool
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) docOptions() rtcdoc.Options {
	return rtcdoc.Options{Src: r.hub.opts.Src, Logger: r.hub.opts.Logger}
}

// open loads the document if it is not there yet; r.mu is held.
func (r *Room) open() (err error) {
	if r.dropped {
		return ErrClosed
	}
	if r.doc != nil {
		return nil
	}
	snapshot, err := r.hub.store.Get(r.name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.doc, err = rtcdoc.Create(nil, r.docOptions())
	case err == nil:
		r.doc, err = rtcdoc.Load(snapshot, r.docOptions())
	}
	if err != nil {
		return errors.Wrapf(err, "room %q", r.name)
	}
	r.hub.opts.Logger.Debug("room open", "room", r.name)
	return nil
}

// Update runs fn on a copy of the document. If fn succeeds the copy is
// persisted and becomes the room document, and the changes it made are
// sent to subscribers; otherwise the room is left as it was.
func (r *Room) Update(fn func(doc *rtcdoc.Document) error) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		RoomUpdates.WithLabelValues(result).Inc()
	}()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err = r.open(); err != nil {
		return err
	}
	before, err := r.doc.VersionVector()
	if err != nil {
		return err
	}
	next := r.doc.Copy()
	if err = fn(next); err != nil {
		return err
	}
	if bytes.Equal(next.Save(), r.doc.Save()) {
		return nil
	}
	if _, err = r.hub.store.Put(r.name, next.Save()); err != nil {
		return errors.Wrapf(err, "room %q", r.name)
	}
	r.doc = next
	changes, err := next.ChangesSince(before)
	if err != nil {
		return err
	}
	r.publish(changes)
	return nil
}

// Merge applies changes from elsewhere.
func (r *Room) Merge(changes [][]byte) error {
	return r.Update(func(doc *rtcdoc.Document) error {
		return doc.ApplyChanges(changes)
	})
}

// Snapshot of the room document.
func (r *Room) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.open(); err != nil {
		return nil, err
	}
	return r.doc.Save(), nil
}

// Document is a copy of the room document, safe to read and edit
// without the room.
func (r *Room) Document() (*rtcdoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.open(); err != nil {
		return nil, err
	}
	return r.doc.Copy(), nil
}

// Changes is the full change log of the room.
func (r *Room) Changes() ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.open(); err != nil {
		return nil, err
	}
	return r.doc.Changes()
}

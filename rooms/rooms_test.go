package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/drpcorg/rtcdoc"
	"github.com/drpcorg/rtcdoc/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T, opts Options) (*Hub, *store.Store) {
	st, err := store.Open("db", store.Options{FS: vfs.NewMem(), NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	hub := NewHub(st, opts)
	t.Cleanup(func() { _ = hub.Close() })
	return hub, st
}

func TestUpdatePersists(t *testing.T) {
	hub, st := newHub(t, Options{Src: 5})
	room, err := hub.Room("notes")
	require.NoError(t, err)

	require.NoError(t, room.Update(func(doc *rtcdoc.Document) error {
		return doc.Set("title", "hello")
	}))
	snap, err := st.Get("notes")
	require.NoError(t, err)
	doc, err := rtcdoc.Load(snap, rtcdoc.Options{Src: 5})
	require.NoError(t, err)
	title, err := doc.Get("title")
	require.NoError(t, err)
	assert.Equal(t, "hello", title)

	// a second hub over the same store sees the document
	other := NewHub(st, Options{Src: 6})
	defer other.Close()
	again, err := other.Room("notes")
	require.NoError(t, err)
	same, err := again.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, same)
}

func TestFailedUpdateLeavesRoom(t *testing.T) {
	hub, st := newHub(t, Options{})
	room, err := hub.Room("r")
	require.NoError(t, err)
	require.NoError(t, room.Update(func(doc *rtcdoc.Document) error {
		return doc.Set("a", 1)
	}))
	before, err := room.Snapshot()
	require.NoError(t, err)

	err = room.Update(func(doc *rtcdoc.Document) error {
		if err := doc.Set("b", 2); err != nil {
			return err
		}
		return doc.Set("c", []byte("nope"))
	})
	assert.ErrorIs(t, err, rtcdoc.ErrConversion)
	after, err := room.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	versions, err := st.History("r")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestMergeAndFeed(t *testing.T) {
	hub, _ := newHub(t, Options{})
	room, err := hub.Room("shared")
	require.NoError(t, err)
	feed, err := room.Subscribe()
	require.NoError(t, err)
	defer feed.Close()

	remote, err := rtcdoc.Create(map[string]any{"x": 1, "y": "two"}, rtcdoc.Options{Src: 99})
	require.NoError(t, err)
	changes, err := remote.Changes()
	require.NoError(t, err)
	require.NoError(t, room.Merge(changes))
	// merging again changes nothing and publishes nothing
	require.NoError(t, room.Merge(changes))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range changes {
		got, err := feed.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = feed.Next(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	doc, err := room.Document()
	require.NoError(t, err)
	want, err := remote.Digest()
	require.NoError(t, err)
	got, err := doc.Digest()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFeedOverflow(t *testing.T) {
	hub, _ := newHub(t, Options{FeedSize: 2})
	room, err := hub.Room("busy")
	require.NoError(t, err)
	feed, err := room.Subscribe()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, room.Update(func(doc *rtcdoc.Document) error {
			return doc.Set(fmt.Sprint("k", i), i)
		}))
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err = feed.Next(ctx)
		require.NoError(t, err)
	}
	_, err = feed.Next(ctx)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestConcurrentUpdates(t *testing.T) {
	hub, _ := newHub(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := hub.Room("counter")
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, room.Update(func(doc *rtcdoc.Document) error {
				return doc.Set(fmt.Sprint("worker", i), i)
			}))
		}(i)
	}
	wg.Wait()
	room, err := hub.Room("counter")
	require.NoError(t, err)
	doc, err := room.Document()
	require.NoError(t, err)
	keys, err := doc.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 8)
	assert.Equal(t, []string{"counter"}, hub.Names())
}

func TestDropAndClose(t *testing.T) {
	hub, st := newHub(t, Options{})
	room, err := hub.Room("gone")
	require.NoError(t, err)
	require.NoError(t, room.Update(func(doc *rtcdoc.Document) error {
		return doc.Set("a", 1)
	}))
	feed, err := room.Subscribe()
	require.NoError(t, err)

	require.NoError(t, hub.Drop("gone"))
	_, err = feed.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.Get("gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, room.Update(func(*rtcdoc.Document) error { return nil }), ErrClosed)

	require.NoError(t, hub.Close())
	_, err = hub.Room("new")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDropUnwrittenRoom(t *testing.T) {
	hub, _ := newHub(t, Options{})
	_, err := hub.Room("empty")
	require.NoError(t, err)
	require.NoError(t, hub.Drop("empty"))
	assert.Empty(t, hub.Names())

	// a name neither held nor stored is still not found
	assert.ErrorIs(t, hub.Drop("empty"), store.ErrNotFound)
}

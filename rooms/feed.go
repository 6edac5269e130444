package rooms

import (
	"context"
	"sync/atomic"
)

// Feed delivers the changes made to a room after Subscribe, in the
// order they were applied. A subscriber that lags more than
// Options.FeedSize changes behind is cut off with ErrOverflow and has
// to resync from Room.Changes.
type Feed struct {
	room       *Room
	ch         chan []byte
	overflowed atomic.Bool
	closed     bool
}

// Subscribe starts a feed of the room's new changes.
func (r *Room) Subscribe() (*Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.open(); err != nil {
		return nil, err
	}
	f := &Feed{room: r, ch: make(chan []byte, r.hub.opts.FeedSize)}
	r.feeds[f] = struct{}{}
	return f, nil
}

// publish is called with r.mu held.
func (r *Room) publish(changes [][]byte) {
	for f := range r.feeds {
		for _, change := range changes {
			select {
			case f.ch <- change:
				continue
			default:
			}
			f.overflowed.Store(true)
			FeedOverflows.Inc()
			r.hub.opts.Logger.Warn("feed overflow", "room", r.name)
			r.closeFeed(f)
			break
		}
	}
}

func (r *Room) closeFeed(f *Feed) {
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
	delete(r.feeds, f)
}

func (r *Room) closeFeeds() {
	for f := range r.feeds {
		r.closeFeed(f)
	}
}

// Next waits for the next change.
func (f *Feed) Next(ctx context.Context) ([]byte, error) {
	select {
	case change, ok := <-f.ch:
		if ok {
			return change, nil
		}
		if f.overflowed.Load() {
			return nil, ErrOverflow
		}
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the subscription.
func (f *Feed) Close() {
	f.room.mu.Lock()
	defer f.room.mu.Unlock()
	f.room.closeFeed(f)
}

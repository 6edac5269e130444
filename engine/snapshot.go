package engine

import (
	"errors"

	"github.com/drpcorg/rtcdoc/protocol"
	"github.com/drpcorg/rtcdoc/rdx"
)

// SnapshotVersion is the H record of the snapshots this code writes.
const SnapshotVersion = 1

var ErrBadSnapshot = errors.New("engine: bad snapshot")

/*
A snapshot is a replay log:

	H  version
	C {...}   applied changes, in application order
	Q { C{...} }   queued changes

Loading replays it; the replica id is not part of the snapshot.
*/

// Save serializes the state.
func (st *State) Save() []byte {
	ret := protocol.Record('H', rdx.ZipUint64(SnapshotVersion))
	for _, c := range st.log {
		ret = append(ret, c.Bytes()...)
	}
	for _, c := range st.queue {
		ret = protocol.Append(ret, 'Q', c.Bytes())
	}
	return ret
}

// Load rebuilds a state from Save output.
func Load(src uint64, data []byte) (*State, error) {
	st, err := Init(src)
	if err != nil {
		return nil, err
	}
	hdr, rest, err := protocol.TakeWary('H', data)
	if err != nil || rdx.UnzipUint64(hdr) != SnapshotVersion {
		return nil, ErrBadSnapshot
	}
	for len(rest) > 0 {
		lit, body, next, err := protocol.TakeAnyWary(rest)
		if err != nil {
			return nil, ErrBadSnapshot
		}
		raw := rest[:len(rest)-len(next)]
		switch lit {
		case 'C':
			c, err := DecodeChange(raw)
			if err != nil || !st.ready(c) {
				return nil, ErrBadSnapshot
			}
			if err = st.apply(c); err != nil {
				return nil, errors.Join(ErrBadSnapshot, err)
			}
		case 'Q':
			c, err := DecodeChange(body)
			if err != nil || st.vv.SeenID(c.ID) {
				return nil, ErrBadSnapshot
			}
			st.queue = append(st.queue, c)
		default:
			return nil, ErrBadSnapshot
		}
		rest = next
	}
	return st, nil
}

package rdx

import (
	"errors"
	"slices"
	"strings"

	"github.com/drpcorg/rtcdoc/protocol"
)

// VV is a version vector: the last change seq seen from each known replica.
type VV map[uint64]uint64

func (vv VV) Get(src uint64) (seq uint64) {
	return vv[src]
}

// Set the progress for the specified source
func (vv VV) Set(src, seq uint64) {
	vv[src] = seq
}

// Put the src-seq pair to the VV, returns whether it was
// unseen (i.e. made any difference)
func (vv VV) Put(src, seq uint64) bool {
	pre, ok := vv[src]
	if ok && pre >= seq {
		return false
	}
	vv[src] = seq
	return true
}

// Adds the id to the VV, returns whether it was unseen
func (vv VV) PutID(id ID) bool {
	return vv.Put(id.Src(), id.Seq())
}

// SeenID tells whether the change id is covered by the VV.
func (vv VV) SeenID(id ID) bool {
	return vv[id.Src()] >= id.Seq()
}

// Seen tells whether everything in bb is covered by vv.
func (vv VV) Seen(bb VV) bool {
	for src, seq := range bb {
		if seq > vv[src] {
			return false
		}
	}
	return true
}

// ProgressedOver tells whether vv knows anything b does not.
func (vv VV) ProgressedOver(b VV) bool {
	for src, seq := range vv {
		if seq > b[src] {
			return true
		}
	}
	return false
}

func (vv VV) Clone() VV {
	ret := make(VV, len(vv))
	for src, seq := range vv {
		ret[src] = seq
	}
	return ret
}

func (vv VV) IDs() (ids []ID) {
	for src, seq := range vv {
		ids = append(ids, NewID(src, seq))
	}
	slices.SortFunc(ids, ID.Compare)
	return
}

// TLV Vv record, nil for empty
func (vv VV) TLV() (ret []byte) {
	for _, id := range vv.IDs() {
		ret = protocol.Append(ret, 'V', id.ZipBytes())
	}
	return
}

var ErrBadVRecord = errors.New("rdx: bad V record")

// consumes: Vv record
func (vv VV) PutTLV(rec []byte) (err error) {
	rest := rec
	for len(rest) > 0 {
		var val []byte
		val, rest, err = protocol.TakeWary('V', rest)
		if err != nil {
			return ErrBadVRecord
		}
		if len(val) > 16 {
			return ErrBadVRecord
		}
		vv.PutID(IDFromZipBytes(val))
	}
	return nil
}

func (vv VV) String() string {
	ids := vv.IDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

// VVFromString parses the String() form; bad ids are skipped.
func VVFromString(vvs string) VV {
	vv := make(VV)
	for _, part := range strings.Split(vvs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id := IDFromString(part)
		if id != BadId {
			vv.PutID(id)
		}
	}
	return vv
}

func VVFromTLV(tlv []byte) (vv VV, err error) {
	vv = make(VV)
	err = vv.PutTLV(tlv)
	return
}

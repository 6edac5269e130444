package rdx

import (
	"errors"
	"strconv"
)

/*
ID names one change: the replica (actor) that authored it and that
replica's change counter. IDs of one source form a gapless sequence
1, 2, 3... which is what lets a version vector summarize a history.

Textual form is hex "src-seq", e.g. "1e-2f".
*/
type ID struct {
	src uint64
	seq uint64
}

// MaxSrc is the largest valid replica id.
const MaxSrc = (1 << 32) - 1

var ID0 ID = ID{}

var BadId = ID{^uint64(0), ^uint64(0)}

var ErrBadID = errors.New("rdx: bad id")

func NewID(src, seq uint64) ID {
	return ID{src, seq}
}

// Src is the replica id. That is normally a small number.
func (id ID) Src() uint64 {
	return id.src
}

// Seq is the per-replica change number, starting from 1.
func (id ID) Seq() uint64 {
	return id.seq
}

func (id ID) Less(other ID) bool {
	if id.src != other.src {
		return id.src < other.src
	}
	return id.seq < other.seq
}

func (id ID) Compare(other ID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	}
	return 0
}

func (id ID) ZipBytes() []byte {
	return ZipUint64Pair(id.src, id.seq)
}

func IDFromZipBytes(zip []byte) ID {
	src, seq := UnzipUint64Pair(zip)
	return ID{src, seq}
}

func (id ID) String() string {
	var buf [40]byte
	b := strconv.AppendUint(buf[:0], id.src, 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.seq, 16)
	return string(b)
}

// IDFromString parses "src-seq"; BadId on error.
func IDFromString(idstr string) ID {
	for i := 0; i < len(idstr); i++ {
		if idstr[i] != '-' {
			continue
		}
		src, err1 := strconv.ParseUint(idstr[:i], 16, 64)
		seq, err2 := strconv.ParseUint(idstr[i+1:], 16, 64)
		if err1 != nil || err2 != nil || src > MaxSrc {
			return BadId
		}
		return ID{src, seq}
	}
	return BadId
}

/*
Time is a Lamport stamp of a single op: the revision counter and the
source that issued it. Stamps are totally ordered, rev first, then src,
which is what every last-writer-wins decision in a document relies on.
An object is named by the stamp of the op that made it; the zero Time
names the document root.
*/
type Time struct {
	Rev int64
	Src uint64
}

var Time0 = Time{}

func (t Time) Compare(b Time) int {
	switch {
	case t.Rev < b.Rev:
		return -1
	case t.Rev > b.Rev:
		return 1
	case t.Src < b.Src:
		return -1
	case t.Src > b.Src:
		return 1
	}
	return 0
}

func (t Time) Less(b Time) bool {
	return t.Compare(b) < 0
}

func (t Time) IsZero() bool {
	return t == Time0
}

func (t Time) ZipBytes() []byte {
	return ZipIntUint64Pair(t.Rev, t.Src)
}

// TimeFromZipBytes is the reverse of ZipBytes; ok is false for
// malformed input.
func TimeFromZipBytes(zip []byte) (t Time, ok bool) {
	z, src, ok := UnzipUint64PairOK(zip)
	if !ok {
		return t, false
	}
	return Time{Rev: ZagZigUint64(z), Src: src}, true
}

func (t Time) String() string {
	var buf [40]byte
	b := strconv.AppendInt(buf[:0], t.Rev, 16)
	b = append(b, '@')
	b = strconv.AppendUint(b, t.Src, 16)
	return string(b)
}

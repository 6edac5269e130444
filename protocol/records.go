package protocol

// Records is a batch of TLV records: a document's change list, the ops of
// one change, the entries of a snapshot.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}

// Join glues the batch into one buffer.
func (recs Records) Join() []byte {
	return Concat(recs...)
}

// Clone deep-copies the batch so the caller may keep it after the
// source buffer is reused.
func (recs Records) Clone() Records {
	ret := make(Records, len(recs))
	for i, r := range recs {
		ret[i] = append([]byte(nil), r...)
	}
	return ret
}

// Protocol format is based on ToyTLV (MIT licence) written by Victor Grishchenko in 2024
// Original project: https://github.com/learn-decentralized-systems/toytlv

/*
Package protocol implements the ToyTLV record format every rtcdoc byte
format is made of: changes, ops, value payloads and document snapshots.

# Record format

A record is a one-letter type, a length and a body. The header takes one of
three forms, picked by the body length:

 1. Tiny (1 byte) for bodies of 0-9 bytes written with a lowercase type:
    [('0' + body_length)]. The type letter is not kept, so tiny records are
    only used where the position already tells the type.
 2. Short (2 bytes) for bodies up to 255 bytes: [lowercase_type, body_length].
 3. Long (5 bytes) for bodies up to 2GB:
    [uppercase_type, length_as_4byte_little_endian].

Types are the letters A-Z. Passing an uppercase letter to Append/Record
never produces the tiny form, so the type survives the round trip.

# Parsing

Take/TakeAny trust their input and signal problems with nil results.
TakeWary/TakeAnyWary return explicit errors and are meant for bytes that
came from another process (remote changes, stored snapshots).
*/
package protocol

import (
	"encoding/binary"
	"errors"
)

const CaseBit uint8 = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader reads a record header.
// lit is 'A'-'Z', '0' for a tiny record, '-' for garbage and 0 when
// the header itself is incomplete.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9':
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	case dlit >= 'a' && dlit <= 'z':
		if len(data) < 2 {
			return
		}
		lit = dlit - CaseBit
		hdrlen = 2
		bodylen = int(data[1])
	case dlit >= 'A' && dlit <= 'Z':
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// AppendHeader appends a header for a body of the given length.
// A lowercase lit allows the tiny form.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ CaseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("ToyTLV record type is A..Z")
	}
	if bodylen < 10 && (lit&CaseBit) != 0 {
		ret = append(into, byte('0'+bodylen))
	} else if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		ret = binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	} else {
		ret = append(into, biglit|CaseBit, byte(bodylen))
	}
	return ret
}

// Take cuts one record of the given type off the data.
// body is nil on error; rest is the untouched data if incomplete.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAny cuts one record of any type off the data.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	lit, hdrlen, bodylen := ProbeHeader(data)
	if lit == 0 || lit == '-' || hdrlen+bodylen > len(data) {
		return 0, nil, nil
	}
	return lit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeWary is Take for untrusted data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == '-' {
		return nil, nil, ErrBadRecord
	}
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if flit != lit && flit != '0' {
		return nil, nil, ErrBadRecord
	}
	body = data[hdrlen : hdrlen+bodylen]
	rest = data[hdrlen+bodylen:]
	return
}

// TakeAnyWary is TakeAny for untrusted data.
func TakeAnyWary(data []byte) (lit byte, body, rest []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil, ErrIncomplete
	}
	var hdrlen, bodylen int
	lit, hdrlen, bodylen = ProbeHeader(data)
	switch {
	case lit == '-':
		return 0, nil, nil, ErrBadRecord
	case lit == 0 || hdrlen+bodylen > len(data):
		return 0, nil, data, ErrIncomplete
	}
	return lit, data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}

// TotalLen sums the lengths of the inputs.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}

// Append appends a complete record made of the body pieces.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	res = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record makes a standalone record.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	return Append(ret, lit, body...)
}

// TinyRecord makes a record in the most compact form available.
func TinyRecord(lit byte, body []byte) (tiny []byte) {
	return Record((lit&^CaseBit)|CaseBit, body)
}

// Concat joins byte slices with a single allocation.
func Concat(msg ...[]byte) []byte {
	ret := make([]byte, 0, TotalLen(msg))
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// Split cuts a buffer into whole records. Fails on the first bad or
// truncated record.
func Split(data []byte) (recs Records, err error) {
	for len(data) > 0 {
		lit, hdrlen, bodylen := ProbeHeader(data)
		if lit == '-' {
			return recs, ErrBadRecord
		}
		if lit == 0 || hdrlen+bodylen > len(data) {
			return recs, ErrIncomplete
		}
		recs = append(recs, data[:hdrlen+bodylen])
		data = data[hdrlen+bodylen:]
	}
	return
}

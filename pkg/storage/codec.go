package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"

	"github.com/uhyunpark/itchmoe/pkg/fixed"
	"github.com/uhyunpark/itchmoe/pkg/moe"
)

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// keys:
//
//	w:r                 router weights
//	w:e:<1-byte expert> expert weights
//	run:<16-byte id>    RunMeta
//	rec:<16-byte id><8-byte seq> StoredRecord
const (
	prefixWeights = "w:"
	prefixRun     = "run:"
	prefixRecord  = "rec:"
)

func kRouter() []byte          { return []byte(prefixWeights + "r") }
func kExpert(e int) []byte     { return []byte{'w', ':', 'e', ':', byte(e)} }
func kRun(id uuid.UUID) []byte { return append([]byte(prefixRun), id[:]...) }

func kRecord(id uuid.UUID, seq uint64) []byte {
	k := recordPrefix(id)
	return append(k, seqKey(seq)...)
}

func recordPrefix(id uuid.UUID) []byte { return append([]byte(prefixRecord), id[:]...) }

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

// Weight tables are stored as big-endian raw Q8.8 values in declaration order.

func encodeRouter(r *moe.RouterWeights) []byte {
	buf := make([]byte, 0, 2*(moe.NumExperts*moe.NumFeatures+moe.NumExperts))
	for e := range r.W {
		buf = appendPoints(buf, r.W[e][:])
	}
	return appendPoints(buf, r.Bias[:])
}

func decodeRouter(b []byte, r *moe.RouterWeights) error {
	d := pointReader{buf: b}
	for e := range r.W {
		d.read(r.W[e][:])
	}
	d.read(r.Bias[:])
	return d.finish("router")
}

func encodeExpert(x *moe.ExpertWeights) []byte {
	buf := make([]byte, 0, 2*(moe.HiddenDim*moe.NumFeatures+2*moe.HiddenDim+1))
	for h := range x.W1 {
		buf = appendPoints(buf, x.W1[h][:])
	}
	buf = appendPoints(buf, x.B1[:])
	buf = appendPoints(buf, x.W2[:])
	return appendPoints(buf, []fixed.Point{x.B2})
}

func decodeExpert(b []byte, x *moe.ExpertWeights) error {
	d := pointReader{buf: b}
	for h := range x.W1 {
		d.read(x.W1[h][:])
	}
	d.read(x.B1[:])
	d.read(x.W2[:])
	var b2 [1]fixed.Point
	d.read(b2[:])
	x.B2 = b2[0]
	return d.finish("expert")
}

func appendPoints(buf []byte, ps []fixed.Point) []byte {
	for _, p := range ps {
		buf = binary.BigEndian.AppendUint16(buf, uint16(p.Raw()))
	}
	return buf
}

type pointReader struct {
	buf   []byte
	short bool
}

func (r *pointReader) read(dst []fixed.Point) {
	for i := range dst {
		if len(r.buf) < 2 {
			r.short = true
			return
		}
		dst[i] = fixed.FromRaw(int16(binary.BigEndian.Uint16(r.buf)))
		r.buf = r.buf[2:]
	}
}

func (r *pointReader) finish(what string) error {
	if r.short {
		return fmt.Errorf("decode %s weights: truncated", what)
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("decode %s weights: %d trailing bytes", what, len(r.buf))
	}
	return nil
}

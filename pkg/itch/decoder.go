// Package itch decodes and encodes ITCH 5.0 Add Order messages.
package itch

import "encoding/binary"

// Stats counts decoder activity. It belongs to a single Decoder.
type Stats struct {
	TotalMessages uint64
	AddOrders     uint64
}

// Rejected returns the number of non-empty buffers that did not decode.
func (s Stats) Rejected() uint64 { return s.TotalMessages - s.AddOrders }

// Decoder turns raw frames into AddOrder records. It is not safe for
// concurrent use.
type Decoder struct {
	stats Stats
}

func NewDecoder() *Decoder { return &Decoder{} }

// Decode parses buf into out and reports whether it was a valid Add Order.
// An empty buffer is rejected without touching the counters. Any other buffer
// increments TotalMessages. On rejection out is left unchanged.
func (d *Decoder) Decode(buf []byte, out *AddOrder) bool {
	if len(buf) == 0 {
		return false
	}
	d.stats.TotalMessages++

	if buf[0] != MsgAddOrder {
		return false
	}
	if len(buf) < AddOrderSize {
		return false
	}

	d.stats.AddOrders++

	out.StockLocate = binary.BigEndian.Uint16(buf[offStockLocate:])
	out.Tracking = binary.BigEndian.Uint16(buf[offTracking:])
	out.Timestamp = uint48(buf[offTimestamp:])
	out.OrderRef = binary.BigEndian.Uint64(buf[offOrderRef:])
	out.Side = Side(buf[offSide])
	out.Shares = binary.BigEndian.Uint32(buf[offShares:])
	copy(out.Stock[:], buf[offStock:offStock+8])
	out.Price = binary.BigEndian.Uint32(buf[offPrice:])
	return true
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() Stats { return d.stats }

// Reset zeroes the counters.
func (d *Decoder) Reset() { d.stats = Stats{} }

func uint48(b []byte) uint64 {
	_ = b[5]
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func putUint48(b []byte, v uint64) {
	_ = b[5]
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

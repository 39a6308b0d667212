package itch

import "encoding/binary"

// Encode packs o into a 36-byte Add Order frame. Timestamp bits above 48 are
// dropped.
func Encode(o *AddOrder) []byte {
	buf := make([]byte, AddOrderSize)
	EncodeTo(buf, o)
	return buf
}

// EncodeTo writes o into buf, which must hold at least AddOrderSize bytes.
func EncodeTo(buf []byte, o *AddOrder) {
	_ = buf[AddOrderSize-1]
	buf[0] = MsgAddOrder
	binary.BigEndian.PutUint16(buf[offStockLocate:], o.StockLocate)
	binary.BigEndian.PutUint16(buf[offTracking:], o.Tracking)
	putUint48(buf[offTimestamp:], o.Timestamp)
	binary.BigEndian.PutUint64(buf[offOrderRef:], o.OrderRef)
	buf[offSide] = byte(o.Side)
	binary.BigEndian.PutUint32(buf[offShares:], o.Shares)
	copy(buf[offStock:offStock+8], o.Stock[:])
	binary.BigEndian.PutUint32(buf[offPrice:], o.Price)
}

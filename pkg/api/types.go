package api

import (
	"strings"

	"github.com/uhyunpark/itchmoe/pkg/itch"
	"github.com/uhyunpark/itchmoe/pkg/pipeline"
	"github.com/uhyunpark/itchmoe/pkg/storage"
	"github.com/uhyunpark/itchmoe/pkg/trace"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// RunStats describes the run currently feeding the server
type RunStats struct {
	RunID         string    `json:"runId"`
	TotalMessages uint64    `json:"totalMessages"`
	AddOrders     uint64    `json:"addOrders"`
	Rejected      uint64    `json:"rejected"`
	Records       uint64    `json:"records"`
	Trades        uint64    `json:"trades"`
	MatchedQty    uint64    `json:"matchedQty"`
	Signals       SignalMix `json:"signals"`
	BestBid       string    `json:"bestBid"` // dollars, 4 places
	BestAsk       string    `json:"bestAsk"`
	Finished      bool      `json:"finished"`
}

type SignalMix struct {
	Hold uint64 `json:"hold"`
	Buy  uint64 `json:"buy"`
	Sell uint64 `json:"sell"`
}

// BookSnapshot represents current book state
type BookSnapshot struct {
	BestBid   string       `json:"bestBid"`
	BestAsk   string       `json:"bestAsk"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	Digest    string       `json:"digest"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel is one aggregated level
type PriceLevel struct {
	Price    string `json:"price"`    // dollars
	RawPrice uint32 `json:"rawPrice"` // 1/10000 dollar
	Size     uint64 `json:"size"`
}

// TraceRecord is one processed order
type TraceRecord struct {
	Seq        uint64     `json:"seq"`
	Stock      string     `json:"stock"`
	Side       string     `json:"side"` // "B" or "S"
	Price      string     `json:"price"`
	Shares     uint32     `json:"shares"`
	BestBid    uint32     `json:"bestBid"`
	BestAsk    uint32     `json:"bestAsk"`
	Action     string     `json:"action"` // "HOLD", "BUY", "SELL"
	Confidence float64    `json:"confidence"`
	Matched    bool       `json:"matched"`
	MatchPrice uint32     `json:"matchPrice,omitempty"`
	MatchQty   uint32     `json:"matchQty,omitempty"`
	Experts    [2]int     `json:"experts"`
	Gates      [2]float64 `json:"gates"`
	Combined   float64    `json:"combined"`
}

// RunInfo is a stored run
type RunInfo struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Started     int64     `json:"started"` // Unix milliseconds
	ElapsedMs   float64   `json:"elapsedMs"`
	Messages    uint64    `json:"messages"`
	AddOrders   uint64    `json:"addOrders"`
	Records     uint64    `json:"records"`
	Trades      uint64    `json:"trades"`
	Signals     SignalMix `json:"signals"`
	BestBid     string    `json:"bestBid"`
	BestAsk     string    `json:"bestAsk"`
	BookDigest  string    `json:"bookDigest"`
	TraceDigest string    `json:"traceDigest"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the base structure for all WebSocket messages
type WSMessage struct {
	Type string      `json:"type"` // "trace", "trade", "book"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trace", "trades:AAPL", "book"]
}

// TradeUpdate is broadcast when an order crosses
type TradeUpdate struct {
	Seq   uint64 `json:"seq"`
	Stock string `json:"stock"`
	Side  string `json:"side"` // side of the incoming order
	Price string `json:"price"`
	Size  uint32 `json:"size"`
}

// TopUpdate is broadcast after every order
type TopUpdate struct {
	Seq     uint64 `json:"seq"`
	BestBid string `json:"bestBid"`
	BestAsk string `json:"bestAsk"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// Conversions
// ==============================

func dollars(raw uint32) string {
	return itch.PriceToDecimal(raw).StringFixed(itch.PriceDecimals)
}

func signalMix(s [3]uint64) SignalMix {
	return SignalMix{Hold: s[0], Buy: s[1], Sell: s[2]}
}

func traceRecordFromRow(r trace.Row) TraceRecord {
	return TraceRecord{
		Seq:        r.OrderIdx,
		Stock:      trimStock(r.Stock),
		Side:       string(r.Side),
		Price:      dollars(r.Price),
		Shares:     r.Shares,
		BestBid:    r.BestBid,
		BestAsk:    r.BestAsk,
		Action:     r.Action.String(),
		Confidence: r.Confidence,
		Matched:    r.Matched,
		MatchPrice: r.MatchPrice,
		MatchQty:   r.MatchQty,
	}
}

func newTraceRecord(rec *pipeline.Record) TraceRecord {
	out := traceRecordFromRow(rec.Row())
	out.Experts = rec.Selected
	out.Gates = rec.Gates
	out.Combined = rec.Combined
	return out
}

func storedTraceRecord(rec *storage.StoredRecord) TraceRecord {
	out := traceRecordFromRow(rec.Row)
	out.Experts = rec.Selected
	out.Gates = rec.Gates
	out.Combined = rec.Combined
	return out
}

func newRunInfo(m *storage.RunMeta) RunInfo {
	return RunInfo{
		ID:          m.ID.String(),
		Source:      m.Source,
		Started:     m.Started.UnixMilli(),
		ElapsedMs:   float64(m.Elapsed.Microseconds()) / 1000,
		Messages:    m.Stats.TotalMessages,
		AddOrders:   m.Stats.AddOrders,
		Records:     m.Records,
		Trades:      m.Trades,
		Signals:     signalMix(m.Signals),
		BestBid:     dollars(m.FinalBestBid),
		BestAsk:     dollars(m.FinalBestAsk),
		BookDigest:  m.BookDigest.Hex(),
		TraceDigest: m.TraceDigest.Hex(),
	}
}

func trimStock(s string) string { return strings.TrimRight(s, " \x00") }

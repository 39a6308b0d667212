// Package orderbook is a price-level limit order book with single-level
// crossing. It tracks aggregate quantity per price and keeps no per-order
// identity.
package orderbook

import (
	"container/heap"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// MatchResult describes the outcome of one submission. It carries no maker
// reference.
type MatchResult struct {
	Matched  bool
	Price    uint32
	Quantity uint32
}

type PriceLevel struct {
	Price uint32
	Qty   uint64
}

// Book holds resting bids and asks. Every stored quantity is positive and a
// level disappears as soon as it is emptied.
type Book struct {
	mu sync.RWMutex

	bidHeap *bidHeap
	askHeap *askHeap

	bids map[uint32]uint64
	asks map[uint32]uint64
}

func New() *Book {
	b := &Book{
		bidHeap: &bidHeap{},
		askHeap: &askHeap{},
		bids:    make(map[uint32]uint64),
		asks:    make(map[uint32]uint64),
	}
	heap.Init(b.bidHeap)
	heap.Init(b.askHeap)
	return b
}

// AddOrder submits a limit order. A buy at or above the best ask trades
// against that level only, at the ask price; any remainder rests at the
// order's own price. Sells mirror this against the best bid. A zero quantity
// that crosses reports a match of 0 at the best price and leaves the level
// untouched; one that does not cross rests nothing.
func (b *Book) AddOrder(side Side, price, qty uint32) MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res MatchResult
	if side == Buy {
		if ask := b.askHeap.Peek(); len(b.asks) > 0 && price >= ask {
			traded := b.take(b.asks, ask, qty)
			if _, ok := b.asks[ask]; !ok {
				popTop(b.askHeap, ask, b.askHeap.Peek())
			}
			res = MatchResult{Matched: true, Price: ask, Quantity: traded}
			qty -= traded
		}
		if qty > 0 {
			b.rest(b.bids, b.bidHeap, price, qty)
		}
		return res
	}

	if bid := b.bidHeap.Peek(); len(b.bids) > 0 && price <= bid {
		traded := b.take(b.bids, bid, qty)
		if _, ok := b.bids[bid]; !ok {
			popTop(b.bidHeap, bid, b.bidHeap.Peek())
		}
		res = MatchResult{Matched: true, Price: bid, Quantity: traded}
		qty -= traded
	}
	if qty > 0 {
		b.rest(b.asks, b.askHeap, price, qty)
	}
	return res
}

// take removes up to qty from the level at price and returns what was taken.
func (b *Book) take(levels map[uint32]uint64, price uint32, qty uint32) uint32 {
	avail, ok := levels[price]
	if !ok || avail == 0 {
		panic("orderbook: best level has no quantity")
	}
	traded := qty
	if avail < uint64(qty) {
		traded = uint32(avail)
	}
	if left := avail - uint64(traded); left > 0 {
		levels[price] = left
	} else {
		delete(levels, price)
	}
	return traded
}

func (b *Book) rest(levels map[uint32]uint64, h heap.Interface, price uint32, qty uint32) {
	if _, ok := levels[price]; !ok {
		heap.Push(h, price)
	}
	levels[price] += uint64(qty)
}

// BestBid returns the highest bid price, or 0 when there are no bids.
func (b *Book) BestBid() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidHeap.Peek()
}

// BestAsk returns the lowest ask price, or 0 when there are no asks.
func (b *Book) BestAsk() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.askHeap.Peek()
}

// Top returns both best prices under one lock.
func (b *Book) Top() (bid, ask uint32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bidHeap.Peek(), b.askHeap.Peek()
}

// BidQty returns the resting quantity at price.
func (b *Book) BidQty(price uint32) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids[price]
}

// AskQty returns the resting quantity at price.
func (b *Book) AskQty(price uint32) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks[price]
}

// BidLevels returns bid levels, best (highest) first.
func (b *Book) BidLevels() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := collect(b.bids)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

// AskLevels returns ask levels, best (lowest) first.
func (b *Book) AskLevels() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := collect(b.asks)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

func collect(m map[uint32]uint64) []PriceLevel {
	levels := make([]PriceLevel, 0, len(m))
	for p, q := range m {
		levels = append(levels, PriceLevel{Price: p, Qty: q})
	}
	return levels
}

// Depth returns the number of bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// Digest hashes the sorted bid levels followed by the sorted ask levels with
// Keccak-256. Two books with the same levels produce the same digest.
func (b *Book) Digest() common.Hash {
	bids := b.BidLevels()
	asks := b.AskLevels()

	h := sha3.NewLegacyKeccak256()
	var buf [12]byte
	write := func(side byte, levels []PriceLevel) {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(levels)))
		h.Write([]byte{side})
		h.Write(buf[:4])
		for _, l := range levels {
			binary.BigEndian.PutUint32(buf[:4], l.Price)
			binary.BigEndian.PutUint64(buf[4:], l.Qty)
			h.Write(buf[:])
		}
	}
	write('B', bids)
	write('S', asks)
	return common.BytesToHash(h.Sum(nil))
}

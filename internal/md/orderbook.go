package md

import (
	"sort"
	"time"
)

type Level struct {
	Price float64
	Size  float64
}

// OrderBook keeps bids descending and asks ascending so index 0 is always the best level.
type OrderBook struct {
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

func NewOrderBook(bids, asks []Level, ts time.Time) OrderBook {
	b := make([]Level, len(bids))
	copy(b, bids)
	a := make([]Level, len(asks))
	copy(a, asks)
	sort.SliceStable(b, func(i, j int) bool { return b[i].Price > b[j].Price })
	sort.SliceStable(a, func(i, j int) bool { return a[i].Price < a[j].Price })
	return OrderBook{Bids: b, Asks: a, Timestamp: ts}
}

func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// Mid needs both sides.
func (b OrderBook) Mid() (float64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid + ask) / 2, true
}

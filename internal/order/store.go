package order

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOrder = errors.New("order: already exists")
	ErrUnknownOrder   = errors.New("order: not found")
)

// Store is the authoritative map of orders this process placed, keyed by venue
// transaction id. Aggregates are recomputed by a full scan after every mutation.
type Store struct {
	mu     sync.RWMutex
	orders map[string]*Order
	agg    Aggregates
}

func NewStore() *Store {
	return &Store{orders: map[string]*Order{}}
}

func (s *Store) Add(o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	cp := o
	s.orders[o.ID] = &cp
	s.recompute()
	return nil
}

func (s *Store) Get(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns copies ordered by creation time.
func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *Store) Aggregates() Aggregates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg
}

// Apply merges a single venue report.
func (s *Store) Apply(u Update) []Event {
	return s.ApplyBatch([]Update{u})
}

// ApplyBatch merges venue reports and recomputes aggregates once. Reports for
// ids this store does not know come back as EventIgnored and change nothing.
func (s *Store) ApplyBatch(updates []Update) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []Event
	for _, u := range updates {
		events = append(events, s.merge(u)...)
	}
	s.recompute()
	return events
}

func (s *Store) merge(u Update) []Event {
	o, ok := s.orders[u.ID]
	if !ok {
		return []Event{{Kind: EventIgnored, OrderID: u.ID, To: u.Status}}
	}
	if u.Status == Rejected {
		delete(s.orders, u.ID)
		return []Event{{Kind: EventRejected, OrderID: u.ID, From: o.Status, To: Rejected, Remark: u.Remark}}
	}

	var events []Event
	if u.Status != o.Status {
		events = append(events, Event{
			Kind:     EventStatusChanged,
			OrderID:  o.ID,
			From:     o.Status,
			To:       u.Status,
			Expected: CanTransition(o.Status, u.Status),
		})
	}
	if !u.Filled.Equal(o.Filled) {
		events = append(events, Event{
			Kind:    EventFilled,
			OrderID: o.ID,
			Delta:   u.Filled.Sub(o.Filled),
			Filled:  u.Filled,
		})
	}

	o.Status = u.Status
	o.Filled = u.Filled
	o.AvgPrice = u.AvgPrice
	if u.Sequence != 0 {
		o.Sequence = u.Sequence
	}
	o.Seen = true
	return events
}

// MarkPendingCancel records that a cancel was requested. Terminal orders are left alone.
func (s *Store) MarkPendingCancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.Status.IsTerminal() {
		return nil
	}
	o.Status = PendingCancel
	s.recompute()
	return nil
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return false
	}
	delete(s.orders, id)
	s.recompute()
	return true
}

// Recompute rebuilds the aggregates from scratch.
func (s *Store) Recompute() Aggregates {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recompute()
	return s.agg
}

func (s *Store) recompute() {
	agg := Aggregates{
		TotalBuy:         decimal.Zero,
		TotalSell:        decimal.Zero,
		BuyOpen:          decimal.Zero,
		SellOpen:         decimal.Zero,
		PendingCancelQty: decimal.Zero,
	}
	for _, o := range s.orders {
		remaining := o.Remaining()
		switch o.Side {
		case Buy:
			agg.TotalBuy = agg.TotalBuy.Add(o.Filled)
			if o.Status.IsOpen() {
				agg.BuyOpen = agg.BuyOpen.Add(remaining)
			}
		case Sell:
			agg.TotalSell = agg.TotalSell.Add(o.Filled)
			if o.Status.IsOpen() {
				agg.SellOpen = agg.SellOpen.Add(remaining)
			}
		}
		if o.Status == PendingCancel {
			agg.PendingCancelQty = agg.PendingCancelQty.Add(remaining)
		}
	}
	agg.Position = agg.TotalBuy.Sub(agg.TotalSell)
	s.agg = agg
}

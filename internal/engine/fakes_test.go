package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"trendbot/internal/md"
	"trendbot/internal/order"
	"trendbot/internal/risk"
	"trendbot/internal/strategy"
	"trendbot/internal/venue"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nullLog() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

type prepared struct {
	op      string
	orderID string
	side    order.Side
	price   decimal.Decimal
	qty     decimal.Decimal
}

// fakeVenue plays both the signer and the exchange.
type fakeVenue struct {
	mu        sync.Mutex
	seq       int
	payloads  map[string]prepared
	orders    map[string]order.Update
	placed    []prepared
	cancels   []string
	cancelAll int

	signErr    error
	sendErr    error
	rejectMsg  string
	ordersErr  error
	ordersCall int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{payloads: map[string]prepared{}, orders: map[string]order.Update{}}
}

func (f *fakeVenue) payload(p prepared) (venue.SignedPayload, error) {
	if f.signErr != nil {
		return venue.SignedPayload{}, f.signErr
	}
	f.seq++
	id := fmt.Sprintf("tx-%d", f.seq)
	f.payloads[id] = p
	return venue.SignedPayload{TransactionID: id, Raw: []byte(fmt.Sprintf(`{"transactionId":%q}`, id))}, nil
}

func (f *fakeVenue) PrepareOrder(ctx context.Context, pair string, side order.Side, price, quantity decimal.Decimal) (venue.SignedPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload(prepared{op: "new", side: side, price: price, qty: quantity})
}

func (f *fakeVenue) PrepareCancel(ctx context.Context, id string) (venue.SignedPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload(prepared{op: "cancel", orderID: id})
}

func (f *fakeVenue) PrepareCancelAll(ctx context.Context, pair string) (venue.SignedPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload(prepared{op: "cancel_all"})
}

func (f *fakeVenue) SendTransaction(ctx context.Context, payload venue.SignedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.rejectMsg != "" {
		return &venue.RejectionError{Message: f.rejectMsg}
	}
	p := f.payloads[payload.TransactionID]
	switch p.op {
	case "new":
		f.placed = append(f.placed, p)
		f.orders[payload.TransactionID] = order.Update{ID: payload.TransactionID, Status: order.PendingNew}
	case "cancel":
		f.cancels = append(f.cancels, p.orderID)
	case "cancel_all":
		f.cancelAll++
	}
	return nil
}

func (f *fakeVenue) Orders(ctx context.Context, account string) ([]order.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordersCall++
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	out := make([]order.Update, 0, len(f.orders))
	for _, u := range f.orders {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeVenue) set(u order.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[u.ID] = u
}

type fakeProvider struct {
	bars    []md.Bar
	book    md.OrderBook
	barsErr error
	bookErr error
	sinces  []time.Time
}

func (p *fakeProvider) Bars(ctx context.Context, since time.Time) ([]md.Bar, error) {
	p.sinces = append(p.sinces, since)
	return p.bars, p.barsErr
}

func (p *fakeProvider) OrderBook(ctx context.Context, depth int) (md.OrderBook, error) {
	return p.book, p.bookErr
}

type fixedStrategy struct {
	sig     strategy.Signal
	checked []int
}

func (s *fixedStrategy) Name() string { return "fixed" }

func (s *fixedStrategy) Check(bars []md.Bar, index int) strategy.Signal {
	s.checked = append(s.checked, index)
	return s.sig
}

type recordSink struct {
	decisions []Decision
}

func (r *recordSink) Append(d Decision) {
	r.decisions = append(r.decisions, d)
}

func book(bid, ask float64) md.OrderBook {
	return md.NewOrderBook([]md.Level{{Price: bid, Size: 5}}, []md.Level{{Price: ask, Size: 5}}, time.Time{})
}

type fixture struct {
	store      *order.Store
	venue      *fakeVenue
	reconciler *Reconciler
	now        time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store: order.NewStore(),
		venue: newFakeVenue(),
		now:   time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
	}
	f.reconciler = NewReconciler(ReconcilerConfig{
		Pair:          "ETH/USDT",
		UnitSize:      dec("0.5"),
		PriceDecimals: 2,
		QtyDecimals:   2,
	}, f.store, f.venue, f.venue, risk.Gate{Limits: risk.DefaultLimits(), Log: nullLog()}, nullLog(), func() time.Time { return f.now })
	return f
}

func (f *fixture) seed(id string, side order.Side, qty string, status order.Status) {
	if err := f.store.Add(order.Order{
		ID:        id,
		Pair:      "ETH/USDT",
		Side:      side,
		Price:     dec("100"),
		Quantity:  dec(qty),
		Status:    status,
		CreatedAt: f.now,
	}); err != nil {
		panic(err)
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trendbot/internal/md"
	"trendbot/internal/order"
	"trendbot/internal/risk"
	"trendbot/internal/strategy"
	"trendbot/internal/venue"
)

var (
	ErrNoQuote      = errors.New("engine: no quote on required side of the book")
	ErrSendRejected = errors.New("engine: venue rejected transaction")
)

type Action string

const (
	NoAction       Action = "no_action"
	OrderSubmitted Action = "order_submitted"
)

type Outcome struct {
	Action         Action
	Order          order.Order
	Cancels        int
	Target         decimal.Decimal
	PseudoPosition decimal.Decimal
	ToTrade        decimal.Decimal
}

type ReconcilerConfig struct {
	Pair          string
	UnitSize      decimal.Decimal
	PriceDecimals int32
	QtyDecimals   int32
}

// Reconciler moves live orders toward the exposure a signal asks for.
type Reconciler struct {
	cfg      ReconcilerConfig
	store    *order.Store
	signer   Signer
	exchange Exchange
	gate     risk.Gate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewReconciler(cfg ReconcilerConfig, store *order.Store, signer Signer, exchange Exchange, gate risk.Gate, log logrus.FieldLogger, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		cfg:      cfg,
		store:    store,
		signer:   signer,
		exchange: exchange,
		gate:     gate,
		log:      log,
		now:      now,
	}
}

// HandleSignal cancels working orders that oppose the signal, checks the pending
// throttle, then sends at most one order for target minus pseudo position. Cancels
// already sent stay in effect when the throttle trips.
func (r *Reconciler) HandleSignal(ctx context.Context, sig strategy.Signal, book md.OrderBook) (Outcome, error) {
	if sig == strategy.None {
		return Outcome{Action: NoAction}, nil
	}
	out := Outcome{
		Action: NoAction,
		Target: r.cfg.UnitSize.Mul(decimal.NewFromInt(int64(sig))),
	}
	opposing := order.Sell
	if sig == strategy.Short {
		opposing = order.Buy
	}

	var counts risk.PendingCounts
	for _, o := range r.store.Orders() {
		counts.Observe(o.Status)
		if o.Side != opposing || !o.Status.IsCancelable() {
			continue
		}
		if err := r.Cancel(ctx, o.ID); err != nil {
			r.log.WithError(err).WithField("order_id", o.ID).Warn("cancel opposing order failed")
			continue
		}
		out.Cancels++
	}

	if err := r.gate.CheckPending(counts); err != nil {
		return out, err
	}

	agg := r.store.Recompute()
	out.PseudoPosition = agg.PseudoPosition()
	out.ToTrade = out.Target.Sub(out.PseudoPosition)
	fields := logrus.Fields{
		"signal":    sig.String(),
		"target":    out.Target.String(),
		"position":  agg.Position.String(),
		"buy_open":  agg.BuyOpen.String(),
		"sell_open": agg.SellOpen.String(),
		"to_trade":  out.ToTrade.String(),
	}

	if out.ToTrade.IsZero() {
		r.log.WithFields(fields).Info("at target")
		return out, nil
	}
	if r.gate.IsDust(out.ToTrade) {
		r.log.WithFields(fields).Info("remaining quantity below dust")
		return out, nil
	}

	side := order.Buy
	price, ok := book.BestAsk()
	if out.ToTrade.IsNegative() {
		side = order.Sell
		price, ok = book.BestBid()
	}
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrNoQuote, side)
	}

	r.log.WithFields(fields).Info("reconciling to target")
	placed, err := r.Submit(ctx, side, out.ToTrade.Abs(), decimal.NewFromFloat(price), false)
	if err != nil {
		return out, err
	}
	out.Action = OrderSubmitted
	out.Order = placed
	return out, nil
}

// Submit signs, records and sends one limit order. The order is in the store as
// PENDING_NEW before it is sent. A venue rejection removes it again; a transport
// failure leaves it for the sync and the reaper, since the venue may have it.
func (r *Reconciler) Submit(ctx context.Context, side order.Side, qty, price decimal.Decimal, manual bool) (order.Order, error) {
	qty = qty.Round(r.cfg.QtyDecimals)
	price = price.Round(r.cfg.PriceDecimals)
	if err := r.gate.CheckOrder(risk.OrderIntent{Side: side, Quantity: qty, Price: price, Manual: manual}); err != nil {
		return order.Order{}, err
	}

	payload, err := r.signer.PrepareOrder(ctx, r.cfg.Pair, side, price, qty)
	if err != nil {
		return order.Order{}, fmt.Errorf("sign order: %w", err)
	}
	placed := order.Order{
		ID:        payload.TransactionID,
		Pair:      r.cfg.Pair,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Status:    order.PendingNew,
		CreatedAt: r.now(),
	}
	if err := r.store.Add(placed); err != nil {
		return order.Order{}, fmt.Errorf("record order %s: %w", placed.ID, err)
	}

	log := r.log.WithFields(logrus.Fields{
		"order_id": placed.ID,
		"side":     side,
		"qty":      qty.String(),
		"price":    price.String(),
		"manual":   manual,
	})
	if err := r.exchange.SendTransaction(ctx, payload); err != nil {
		var rej *venue.RejectionError
		if errors.As(err, &rej) {
			r.store.Remove(placed.ID)
			log.WithField("remark", rej.Message).Warn("order rejected on send")
			return placed, fmt.Errorf("%w: %s", ErrSendRejected, rej.Message)
		}
		log.WithError(err).Warn("send order failed, keeping as pending new")
		return placed, fmt.Errorf("send order: %w", err)
	}
	log.Info("order sent")
	return placed, nil
}

// Cancel requests cancellation and marks the order PENDING_CANCEL once the venue took it.
func (r *Reconciler) Cancel(ctx context.Context, id string) error {
	payload, err := r.signer.PrepareCancel(ctx, id)
	if err != nil {
		return fmt.Errorf("sign cancel: %w", err)
	}
	if err := r.exchange.SendTransaction(ctx, payload); err != nil {
		return fmt.Errorf("send cancel: %w", err)
	}
	r.log.WithField("order_id", id).Info("cancel sent")
	return r.store.MarkPendingCancel(id)
}

// CancelAll cancels every order on the pair at the venue, including ones this process did not place.
func (r *Reconciler) CancelAll(ctx context.Context) error {
	payload, err := r.signer.PrepareCancelAll(ctx, r.cfg.Pair)
	if err != nil {
		return fmt.Errorf("sign cancel all: %w", err)
	}
	if err := r.exchange.SendTransaction(ctx, payload); err != nil {
		return fmt.Errorf("send cancel all: %w", err)
	}
	marked := 0
	for _, o := range r.store.Orders() {
		if !o.Status.IsCancelable() {
			continue
		}
		if err := r.store.MarkPendingCancel(o.ID); err == nil {
			marked++
		}
	}
	r.log.WithFields(logrus.Fields{"pair": r.cfg.Pair, "marked": marked}).Info("cancel all sent")
	return nil
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trendbot/internal/indicator"
	"trendbot/internal/md"
	"trendbot/internal/order"
	"trendbot/internal/risk"
	"trendbot/internal/strategy"
)

type Options struct {
	Pair    string
	Account string
	RunID   string

	UnitSize      decimal.Decimal
	ManualOffset  decimal.Decimal
	PriceDecimals int32
	QtyDecimals   int32

	History       time.Duration
	RefreshWindow time.Duration
	// PollBars refreshes bars over REST every iteration; turn it off when a stream feeds CmdBar.
	PollBars  bool
	BookDepth int

	PollInterval time.Duration
	SignalSettle time.Duration
	StaleAfter   time.Duration
}

type Deps struct {
	Provider   md.Provider
	Strategy   strategy.Strategy
	Indicators *indicator.Engine
	Store      *order.Store
	Signer     Signer
	Exchange   Exchange
	Gate       risk.Gate
	Decisions  DecisionSink
	Commands   *Commands
	Log        logrus.FieldLogger
	Now        func() time.Time
}

// Engine is the control loop. It is the only writer of the bar series and the
// order store; other goroutines reach it through Commands.
type Engine struct {
	opts       Options
	provider   md.Provider
	strategy   strategy.Strategy
	indicators *indicator.Engine
	store      *order.Store
	reconciler *Reconciler
	syncer     *Syncer
	reaper     *Reaper
	decisions  DecisionSink
	commands   *Commands
	log        logrus.FieldLogger
	now        func() time.Time

	series    *md.Series
	debouncer strategy.Debouncer
	syncedAt  time.Time
	book      md.OrderBook
	haveBook  bool
	bootstrap bool
}

func New(opts Options, deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	decisions := deps.Decisions
	if decisions == nil {
		decisions = MultiSink{}
	}
	commands := deps.Commands
	if commands == nil {
		commands = NewCommands(16)
	}
	reconciler := NewReconciler(ReconcilerConfig{
		Pair:          opts.Pair,
		UnitSize:      opts.UnitSize,
		PriceDecimals: opts.PriceDecimals,
		QtyDecimals:   opts.QtyDecimals,
	}, deps.Store, deps.Signer, deps.Exchange, deps.Gate, log.WithField("component", "reconciler"), now)

	return &Engine{
		opts:       opts,
		provider:   deps.Provider,
		strategy:   deps.Strategy,
		indicators: deps.Indicators,
		store:      deps.Store,
		reconciler: reconciler,
		syncer:     NewSyncer(opts.Account, deps.Exchange, deps.Store, log.WithField("component", "sync")),
		reaper:     NewReaper(opts.StaleAfter, deps.Store, reconciler, log.WithField("component", "reaper")),
		decisions:  decisions,
		commands:   commands,
		log:        log,
		now:        now,
		series:     md.NewSeries(),
		debouncer:  strategy.Debouncer{Settle: opts.SignalSettle},
		bootstrap:  true,
	}
}

func (e *Engine) Commands() *Commands {
	return e.commands
}

func (e *Engine) Series() *md.Series {
	return e.series
}

// Run steps immediately and then once per poll interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	defer e.commands.Close()

	e.log.WithFields(logrus.Fields{
		"pair":     e.opts.Pair,
		"account":  e.opts.Account,
		"strategy": e.strategy.Name(),
		"interval": e.opts.PollInterval.String(),
	}).Info("control loop started")

	for {
		e.Step(ctx)
		select {
		case <-ctx.Done():
			e.log.Info("control loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step runs one iteration. Each stage logs its own failures; a failed market data
// refresh skips signal evaluation but the order sync and reaper still run. A failed
// sync keeps the store as it was and the reaper never drops orders on its account.
func (e *Engine) Step(ctx context.Context) {
	now := e.now()

	operator := e.drainCommands()
	marketOK := e.refreshMarket(ctx, now)
	e.indicators.Update(e.series)

	if err := e.syncer.SyncOnce(ctx); err == nil {
		e.syncedAt = now
	}
	e.reaper.Reap(ctx, now, e.syncedAt)

	for _, cmd := range operator {
		e.handleCommand(ctx, cmd, marketOK, now)
	}

	if marketOK && e.debouncer.Ready(now) {
		e.evaluate(ctx, now)
	}

	if marketOK {
		e.logPnL()
	}
}

// drainCommands folds streamed bars in right away and hands back operator commands,
// which need a fresh book and run after the sync.
func (e *Engine) drainCommands() []Command {
	var operator []Command
	for _, cmd := range e.commands.Drain() {
		if cmd.Kind == CmdBar {
			e.series.Update(cmd.Bar)
			continue
		}
		operator = append(operator, cmd)
	}
	return operator
}

func (e *Engine) refreshMarket(ctx context.Context, now time.Time) bool {
	if e.bootstrap || e.opts.PollBars {
		window := e.opts.RefreshWindow
		if e.bootstrap {
			window = e.opts.History
		}
		bars, err := e.provider.Bars(ctx, now.Add(-window))
		if err != nil {
			e.log.WithError(err).Warn("bar refresh failed")
			return false
		}
		appended, replaced := e.series.UpdateAll(bars)
		e.log.WithFields(logrus.Fields{
			"rows":     len(bars),
			"appended": appended,
			"replaced": replaced,
			"bars":     e.series.Len(),
		}).Debug("bars refreshed")
		e.bootstrap = false
	}

	book, err := e.provider.OrderBook(ctx, e.opts.BookDepth)
	if err != nil {
		e.log.WithError(err).Warn("order book refresh failed")
		e.haveBook = false
		return false
	}
	e.book = book
	e.haveBook = true
	return true
}

func (e *Engine) evaluate(ctx context.Context, now time.Time) {
	index := e.series.Len() - 2
	bars := e.series.Bars()
	sig := e.strategy.Check(bars, index)

	decision := Decision{
		RunID:     e.opts.RunID,
		Timestamp: now.UTC(),
		Pair:      e.opts.Pair,
		Strategy:  e.strategy.Name(),
		Signal:    sig,
	}
	if index >= 0 {
		bar := bars[index]
		decision.BarTime = bar.Start
		decision.Close = bar.Close
		decision.MACD = bar.MACD
		decision.MACDSignal = bar.MACDSignal
		e.log.WithFields(logrus.Fields{
			"index":  index,
			"bar":    bar.Start.Format(time.RFC3339),
			"close":  bar.Close,
			"diff":   bar.MACD - bar.MACDSignal,
			"signal": sig.String(),
		}).Info("signal checked")
	}

	if sig == strategy.None {
		decision.Result = "hold"
		e.decisions.Append(decision)
		return
	}

	outcome, err := e.reconciler.HandleSignal(ctx, sig, e.book)
	decision.Target = outcome.Target
	decision.Pseudo = outcome.PseudoPosition
	decision.ToTrade = outcome.ToTrade
	decision.Cancels = outcome.Cancels
	fillOrder(&decision, outcome.Order)
	switch {
	case err != nil:
		decision.Result = resultFor(err)
		decision.RejectReason = err.Error()
		e.log.WithError(err).WithField("signal", sig.String()).Warn("reconcile failed")
	default:
		decision.Result = string(outcome.Action)
	}
	e.decisions.Append(decision)
}

func (e *Engine) handleCommand(ctx context.Context, cmd Command, marketOK bool, now time.Time) {
	log := e.log.WithField("command", cmd.Kind.String())
	decision := Decision{
		RunID:     e.opts.RunID,
		Timestamp: now.UTC(),
		Pair:      e.opts.Pair,
		Manual:    cmd.Kind.String(),
	}

	switch cmd.Kind {
	case CmdStatus:
		e.logStatus()
		return
	case CmdCancelAll:
		if err := e.reconciler.CancelAll(ctx); err != nil {
			log.WithError(err).Warn("cancel all failed")
			decision.Result = "order_failed"
			decision.RejectReason = err.Error()
		} else {
			decision.Result = "cancel_all_sent"
		}
		e.decisions.Append(decision)
		return
	case CmdManualBuy, CmdManualSell:
	default:
		log.Warn("unknown command")
		return
	}

	if !marketOK {
		log.Warn("manual order skipped, no market data")
		return
	}
	side := order.Buy
	price, ok := e.book.BestAsk()
	offset := e.opts.ManualOffset
	if cmd.Kind == CmdManualSell {
		side = order.Sell
		price, ok = e.book.BestBid()
		offset = offset.Neg()
	}
	if !ok {
		log.Warn("manual order skipped, empty book side")
		return
	}

	placed, err := e.reconciler.Submit(ctx, side, e.opts.UnitSize, decimal.NewFromFloat(price).Add(offset), true)
	fillOrder(&decision, placed)
	if err != nil {
		log.WithError(err).Warn("manual order failed")
		decision.Result = resultFor(err)
		decision.RejectReason = err.Error()
	} else {
		decision.Result = string(OrderSubmitted)
	}
	e.decisions.Append(decision)
}

func fillOrder(d *Decision, o order.Order) {
	if o.ID == "" {
		return
	}
	d.OrderID = o.ID
	d.Side = string(o.Side)
	d.Qty = o.Quantity
	d.Price = o.Price
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, risk.ErrTooManyPendingNew), errors.Is(err, risk.ErrTooManyPending),
		errors.Is(err, risk.ErrKillSwitch), errors.Is(err, risk.ErrMaxOrderQty),
		errors.Is(err, risk.ErrInvalidQuantity):
		return "rejected"
	case errors.Is(err, ErrNoQuote):
		return "no_quote"
	default:
		return "order_failed"
	}
}

func (e *Engine) logPnL() {
	agg := e.store.Aggregates()
	pnl, ok := UnrealizedPnL(e.store.Orders(), e.book)
	if !ok {
		return
	}
	e.log.WithFields(logrus.Fields{
		"position":  agg.Position.String(),
		"buy_open":  agg.BuyOpen.String(),
		"sell_open": agg.SellOpen.String(),
		"pnl":       pnl.StringFixed(4),
	}).Info("pnl")
}

func (e *Engine) logStatus() {
	agg := e.store.Aggregates()
	fields := logrus.Fields{
		"orders":          e.store.Len(),
		"position":        agg.Position.String(),
		"total_buy":       agg.TotalBuy.String(),
		"total_sell":      agg.TotalSell.String(),
		"buy_open":        agg.BuyOpen.String(),
		"sell_open":       agg.SellOpen.String(),
		"pending_cancel":  agg.PendingCancelQty.String(),
		"pseudo_position": agg.PseudoPosition().String(),
		"bars":            e.series.Len(),
	}
	if e.haveBook {
		if pnl, ok := UnrealizedPnL(e.store.Orders(), e.book); ok {
			fields["pnl"] = pnl.StringFixed(4)
		}
	}
	e.log.WithFields(fields).Info("status")
}

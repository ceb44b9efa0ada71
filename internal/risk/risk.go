package risk

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trendbot/internal/order"
)

var (
	ErrTooManyPendingNew = errors.New("risk: too many pending new/cancel orders")
	ErrTooManyPending    = errors.New("risk: too many pending orders")
	ErrKillSwitch        = errors.New("risk: kill switch enabled")
	ErrMaxOrderQty       = errors.New("risk: max order quantity exceeded")
	ErrInvalidQuantity   = errors.New("risk: invalid quantity")
)

type Limits struct {
	// MaxPendingNew bounds orders in PENDING_NEW or PENDING_CANCEL.
	MaxPendingNew int
	// MaxPending bounds orders that are pending or working.
	MaxPending int
	// Dust is the smallest quantity worth sending.
	Dust decimal.Decimal
	// MaxOrderQty of zero disables the check.
	MaxOrderQty decimal.Decimal
	KillSwitch  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxPendingNew: 1,
		MaxPending:    3,
		Dust:          decimal.RequireFromString("0.1"),
	}
}

// PendingCounts is taken while scanning orders, on statuses as they were before
// any cancel issued in the same pass.
type PendingCounts struct {
	PendingNewOrCancel int
	Pending            int
}

func (c *PendingCounts) Observe(s order.Status) {
	switch s {
	case order.PendingNew, order.PendingCancel:
		c.PendingNewOrCancel++
		c.Pending++
	case order.New, order.PartiallyFilled:
		c.Pending++
	}
}

type OrderIntent struct {
	Side     order.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Manual   bool
}

type Gate struct {
	Limits Limits
	Log    logrus.FieldLogger
}

func (g Gate) log() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

func (g Gate) CheckPending(c PendingCounts) error {
	if c.PendingNewOrCancel > g.Limits.MaxPendingNew {
		g.log().WithFields(logrus.Fields{
			"reason": "too_many_pending_new",
			"count":  c.PendingNewOrCancel,
			"max":    g.Limits.MaxPendingNew,
		}).Info("risk rejected")
		return ErrTooManyPendingNew
	}
	if c.Pending > g.Limits.MaxPending {
		g.log().WithFields(logrus.Fields{
			"reason": "too_many_pending",
			"count":  c.Pending,
			"max":    g.Limits.MaxPending,
		}).Info("risk rejected")
		return ErrTooManyPending
	}
	return nil
}

// IsDust reports whether qty is too small to trade, regardless of sign.
func (g Gate) IsDust(qty decimal.Decimal) bool {
	return qty.Abs().LessThan(g.Limits.Dust)
}

func (g Gate) CheckOrder(intent OrderIntent) error {
	fields := logrus.Fields{
		"side":   intent.Side,
		"qty":    intent.Quantity.String(),
		"price":  intent.Price.String(),
		"manual": intent.Manual,
	}
	if g.Limits.KillSwitch {
		g.log().WithFields(fields).WithField("reason", "kill_switch_enabled").Info("risk rejected")
		return ErrKillSwitch
	}
	if !intent.Quantity.IsPositive() || !intent.Price.IsPositive() {
		g.log().WithFields(fields).WithField("reason", "invalid_quantity").Info("risk rejected")
		return ErrInvalidQuantity
	}
	if g.Limits.MaxOrderQty.IsPositive() && intent.Quantity.GreaterThan(g.Limits.MaxOrderQty) {
		g.log().WithFields(fields).WithFields(logrus.Fields{
			"reason": "max_order_qty_exceeded",
			"max":    g.Limits.MaxOrderQty.String(),
		}).Info("risk rejected")
		return ErrMaxOrderQty
	}
	g.log().WithFields(fields).Debug("risk approved")
	return nil
}

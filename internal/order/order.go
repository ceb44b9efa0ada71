package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        string
	Pair      string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	AvgPrice  decimal.Decimal
	Status    Status
	Sequence  int64
	CreatedAt time.Time
	// Seen is set once the venue has reported the order.
	Seen bool
}

func (o Order) Remaining() decimal.Decimal {
	r := o.Quantity.Sub(o.Filled)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Update is a venue report for one order, already mapped to local statuses.
type Update struct {
	ID       string
	Status   Status
	Filled   decimal.Decimal
	AvgPrice decimal.Decimal
	Sequence int64
	Remark   string
}

type Aggregates struct {
	TotalBuy         decimal.Decimal
	TotalSell        decimal.Decimal
	Position         decimal.Decimal
	BuyOpen          decimal.Decimal
	SellOpen         decimal.Decimal
	PendingCancelQty decimal.Decimal
}

// PseudoPosition is the position once every open order fills.
func (a Aggregates) PseudoPosition() decimal.Decimal {
	return a.Position.Add(a.BuyOpen).Sub(a.SellOpen)
}

type EventKind string

const (
	EventIgnored       EventKind = "ignored"
	EventRejected      EventKind = "rejected"
	EventStatusChanged EventKind = "status_changed"
	EventFilled        EventKind = "filled"
)

type Event struct {
	Kind    EventKind
	OrderID string
	From    Status
	To      Status
	// Expected is false when the venue moved the order outside the lifecycle table.
	Expected bool
	Delta    decimal.Decimal
	Filled   decimal.Decimal
	Remark   string
}

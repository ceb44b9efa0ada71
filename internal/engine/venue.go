package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"trendbot/internal/order"
	"trendbot/internal/venue"
)

// Signer prepares signed transactions. *venue.Signer satisfies it.
type Signer interface {
	PrepareOrder(ctx context.Context, pair string, side order.Side, price, quantity decimal.Decimal) (venue.SignedPayload, error)
	PrepareCancel(ctx context.Context, transactionID string) (venue.SignedPayload, error)
	PrepareCancelAll(ctx context.Context, pair string) (venue.SignedPayload, error)
}

// Exchange sends signed transactions and reports order state. *venue.Exchange satisfies it.
type Exchange interface {
	SendTransaction(ctx context.Context, payload venue.SignedPayload) error
	Orders(ctx context.Context, account string) ([]order.Update, error)
}

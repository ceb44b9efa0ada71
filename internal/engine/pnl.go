package engine

import (
	"github.com/shopspring/decimal"

	"trendbot/internal/md"
	"trendbot/internal/order"
)

// UnrealizedPnL marks every filled quantity against the book mid.
func UnrealizedPnL(orders []order.Order, book md.OrderBook) (decimal.Decimal, bool) {
	midF, ok := book.Mid()
	if !ok {
		return decimal.Zero, false
	}
	mid := decimal.NewFromFloat(midF)
	total := decimal.Zero
	for _, o := range orders {
		if !o.Filled.IsPositive() {
			continue
		}
		switch o.Side {
		case order.Sell:
			total = total.Add(o.AvgPrice.Sub(mid).Mul(o.Filled))
		case order.Buy:
			total = total.Add(mid.Sub(o.AvgPrice).Mul(o.Filled))
		}
	}
	return total, true
}

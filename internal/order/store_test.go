package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrder(id string, side Side, qty string, status Status) Order {
	return Order{
		ID:        id,
		Pair:      "ETH/USDT",
		Side:      side,
		Price:     d("100"),
		Quantity:  d(qty),
		Status:    status,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyIgnoresUnknownOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Buy, "0.5", PendingNew)))
	before := s.Aggregates()

	events := s.Apply(Update{ID: "foreign", Status: Filled, Filled: d("3")})
	require.Len(t, events, 1)
	assert.Equal(t, EventIgnored, events[0].Kind)
	assert.Equal(t, 1, s.Len())
	assert.True(t, before.Position.Equal(s.Aggregates().Position))
	assert.True(t, before.BuyOpen.Equal(s.Aggregates().BuyOpen))
}

func TestApplyRejectedDeletesOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Buy, "0.5", PendingNew)))

	events := s.Apply(Update{ID: "a", Status: Rejected, Remark: "insufficient balance"})
	require.Len(t, events, 1)
	assert.Equal(t, EventRejected, events[0].Kind)
	assert.Equal(t, "insufficient balance", events[0].Remark)

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.True(t, s.Aggregates().BuyOpen.IsZero())
}

func TestApplyMergesFillsAndEmitsEvents(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Buy, "1.0", PendingNew)))

	events := s.Apply(Update{ID: "a", Status: PartiallyFilled, Filled: d("0.4"), AvgPrice: d("99.5"), Sequence: 42})
	require.Len(t, events, 2)
	assert.Equal(t, EventStatusChanged, events[0].Kind)
	assert.Equal(t, PendingNew, events[0].From)
	assert.Equal(t, PartiallyFilled, events[0].To)
	assert.False(t, events[0].Expected, "PENDING_NEW -> PARTIALLY_FILLED skips NEW")
	assert.Equal(t, EventFilled, events[1].Kind)
	assert.True(t, events[1].Delta.Equal(d("0.4")))

	o, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, o.Seen)
	assert.Equal(t, int64(42), o.Sequence)
	assert.True(t, o.AvgPrice.Equal(d("99.5")))

	agg := s.Aggregates()
	assert.True(t, agg.Position.Equal(d("0.4")))
	assert.True(t, agg.BuyOpen.Equal(d("0.6")))

	// same report again changes nothing
	assert.Empty(t, s.Apply(Update{ID: "a", Status: PartiallyFilled, Filled: d("0.4"), AvgPrice: d("99.5")}))
}

func TestAggregatesFullScan(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("b1", Buy, "1.0", PendingNew)))
	require.NoError(t, s.Add(newOrder("b2", Buy, "0.5", PendingNew)))
	require.NoError(t, s.Add(newOrder("s1", Sell, "2.0", PendingNew)))
	require.NoError(t, s.Add(newOrder("s2", Sell, "0.3", PendingNew)))

	s.ApplyBatch([]Update{
		{ID: "b1", Status: Filled, Filled: d("1.0"), AvgPrice: d("100")},
		{ID: "b2", Status: New},
		{ID: "s1", Status: PartiallyFilled, Filled: d("0.5"), AvgPrice: d("101")},
		{ID: "s2", Status: New},
	})
	require.NoError(t, s.MarkPendingCancel("s2"))

	agg := s.Aggregates()
	assert.True(t, agg.TotalBuy.Equal(d("1.0")))
	assert.True(t, agg.TotalSell.Equal(d("0.5")))
	assert.True(t, agg.Position.Equal(d("0.5")))
	assert.True(t, agg.BuyOpen.Equal(d("0.5")))
	assert.True(t, agg.SellOpen.Equal(d("1.5")), "pending cancel excluded from open exposure")
	assert.True(t, agg.PendingCancelQty.Equal(d("0.3")))
	assert.True(t, agg.PseudoPosition().Equal(d("-0.5")))
}

func TestMarkPendingCancel(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Sell, "1", New)))
	require.NoError(t, s.Add(newOrder("f", Sell, "1", Filled)))

	require.NoError(t, s.MarkPendingCancel("a"))
	o, _ := s.Get("a")
	assert.Equal(t, PendingCancel, o.Status)

	require.NoError(t, s.MarkPendingCancel("f"))
	o, _ = s.Get("f")
	assert.Equal(t, Filled, o.Status)

	require.ErrorIs(t, s.MarkPendingCancel("missing"), ErrUnknownOrder)
}

func TestAddDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Buy, "1", PendingNew)))
	require.ErrorIs(t, s.Add(newOrder("a", Buy, "1", PendingNew)), ErrDuplicateOrder)
}

func TestRemove(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(newOrder("a", Buy, "1", PendingNew)))
	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.True(t, s.Aggregates().BuyOpen.IsZero())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(PendingNew, New))
	assert.True(t, CanTransition(New, PendingCancel))
	assert.True(t, CanTransition(PendingCancel, Filled))
	assert.True(t, CanTransition(Filled, Filled))
	assert.False(t, CanTransition(Filled, New))
	assert.False(t, CanTransition(Canceled, PartiallyFilled))
}

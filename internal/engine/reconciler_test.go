package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/order"
	"trendbot/internal/risk"
	"trendbot/internal/strategy"
)

func TestHandleSignalNoneDoesNothing(t *testing.T) {
	f := newFixture()
	f.seed("s1", order.Sell, "0.5", order.New)

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.None, book(99, 101))
	require.NoError(t, err)
	assert.Equal(t, NoAction, out.Action)
	assert.Empty(t, f.venue.cancels)
	assert.Empty(t, f.venue.placed)
}

func TestHandleSignalBuysUnitAtBestAsk(t *testing.T) {
	f := newFixture()

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99.5, 100.25))
	require.NoError(t, err)
	require.Equal(t, OrderSubmitted, out.Action)
	require.Len(t, f.venue.placed, 1)
	assert.Equal(t, order.Buy, f.venue.placed[0].side)
	assert.True(t, f.venue.placed[0].qty.Equal(dec("0.5")))
	assert.True(t, f.venue.placed[0].price.Equal(dec("100.25")))

	o, ok := f.store.Get(out.Order.ID)
	require.True(t, ok)
	assert.Equal(t, order.PendingNew, o.Status)
	assert.True(t, f.store.Aggregates().BuyOpen.Equal(dec("0.5")))
}

func TestHandleSignalFlipAfterFill(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	out, err := f.reconciler.HandleSignal(ctx, strategy.Long, book(99, 101))
	require.NoError(t, err)
	buyID := out.Order.ID

	f.store.Apply(order.Update{ID: buyID, Status: order.Filled, Filled: dec("0.5"), AvgPrice: dec("100")})
	assert.True(t, f.store.Aggregates().Position.Equal(dec("0.5")))

	out, err = f.reconciler.HandleSignal(ctx, strategy.Short, book(99, 101))
	require.NoError(t, err)
	require.Equal(t, OrderSubmitted, out.Action)
	assert.Equal(t, 0, out.Cancels, "filled buy is not cancelable")
	assert.True(t, out.ToTrade.Equal(dec("-1")))

	require.Len(t, f.venue.placed, 2)
	sell := f.venue.placed[1]
	assert.Equal(t, order.Sell, sell.side)
	assert.True(t, sell.qty.Equal(dec("1")))
	assert.True(t, sell.price.Equal(dec("99")))
}

func TestHandleSignalCancelsOpposingOrders(t *testing.T) {
	f := newFixture()
	f.seed("s1", order.Sell, "0.5", order.New)
	f.seed("s2", order.Sell, "0.5", order.PartiallyFilled)
	f.seed("s3", order.Sell, "0.5", order.Filled)
	f.seed("b1", order.Buy, "0.2", order.New)

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Cancels)
	assert.ElementsMatch(t, []string{"s1", "s2"}, f.venue.cancels)

	for _, id := range []string{"s1", "s2"} {
		o, _ := f.store.Get(id)
		assert.Equal(t, order.PendingCancel, o.Status, id)
	}
	b1, _ := f.store.Get("b1")
	assert.Equal(t, order.New, b1.Status)

	// pseudo = 0 + 0.2 - 0 after the sells drop out of open exposure
	assert.True(t, out.PseudoPosition.Equal(dec("0.2")))
	assert.True(t, out.ToTrade.Equal(dec("0.3")))
	require.Len(t, f.venue.placed, 1)
	assert.True(t, f.venue.placed[0].qty.Equal(dec("0.3")))
}

func TestHandleSignalThrottleKeepsIssuedCancels(t *testing.T) {
	f := newFixture()
	f.seed("s1", order.Sell, "0.5", order.PendingNew)
	f.seed("s2", order.Sell, "0.5", order.PendingCancel)

	_, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.ErrorIs(t, err, risk.ErrTooManyPendingNew)
	assert.Equal(t, []string{"s1"}, f.venue.cancels)
	s1, _ := f.store.Get("s1")
	assert.Equal(t, order.PendingCancel, s1.Status)
	assert.Empty(t, f.venue.placed)
}

func TestHandleSignalThrottleTooManyPending(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"b1", "b2", "b3", "b4"} {
		f.seed(id, order.Buy, "0.1", order.New)
	}

	_, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.ErrorIs(t, err, risk.ErrTooManyPending)
	assert.Empty(t, f.venue.cancels)
	assert.Empty(t, f.venue.placed)
}

func TestHandleSignalAtTargetAndDust(t *testing.T) {
	f := newFixture()
	f.seed("b1", order.Buy, "0.5", order.New)
	f.store.Apply(order.Update{ID: "b1", Status: order.Filled, Filled: dec("0.5"), AvgPrice: dec("100")})

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.NoError(t, err)
	assert.Equal(t, NoAction, out.Action)
	assert.True(t, out.ToTrade.IsZero())

	g := newFixture()
	g.seed("b1", order.Buy, "0.45", order.New)
	g.store.Apply(order.Update{ID: "b1", Status: order.Filled, Filled: dec("0.45"), AvgPrice: dec("100")})

	out, err = g.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.NoError(t, err)
	assert.Equal(t, NoAction, out.Action)
	assert.True(t, out.ToTrade.Equal(dec("0.05")))
	assert.Empty(t, g.venue.placed)
}

func TestHandleSignalAtTargetStillCancelsOpposing(t *testing.T) {
	f := newFixture()
	f.seed("b1", order.Buy, "0.5", order.New)
	f.store.Apply(order.Update{ID: "b1", Status: order.Filled, Filled: dec("0.5"), AvgPrice: dec("100")})
	f.seed("s1", order.Sell, "0.3", order.New)

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.NoError(t, err)
	assert.Equal(t, NoAction, out.Action)
	assert.Equal(t, 1, out.Cancels)
	assert.Equal(t, []string{"s1"}, f.venue.cancels)
	s1, _ := f.store.Get("s1")
	assert.Equal(t, order.PendingCancel, s1.Status)
	assert.True(t, out.PseudoPosition.Equal(dec("0.5")))
	assert.True(t, out.ToTrade.IsZero())
	assert.Empty(t, f.venue.placed)
}

func TestHandleSignalNoQuote(t *testing.T) {
	f := newFixture()
	empty := book(99, 101)
	empty.Asks = nil

	_, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, empty)
	require.ErrorIs(t, err, ErrNoQuote)
	assert.Empty(t, f.venue.placed)
	assert.Zero(t, f.store.Len())
}

func TestSubmitRejectedRemovesOrder(t *testing.T) {
	f := newFixture()
	f.venue.rejectMsg = "insufficient balance"

	_, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.ErrorIs(t, err, ErrSendRejected)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Zero(t, f.store.Len())
}

func TestSubmitTransportFailureKeepsPendingNew(t *testing.T) {
	f := newFixture()
	f.venue.sendErr = errors.New("connection reset")

	placed, err := f.reconciler.Submit(context.Background(), order.Sell, dec("0.5"), dec("99"), false)
	require.Error(t, err)
	o, ok := f.store.Get(placed.ID)
	require.True(t, ok)
	assert.Equal(t, order.PendingNew, o.Status)
	assert.False(t, o.Seen)
}

func TestSubmitRoundsToTwoDecimals(t *testing.T) {
	f := newFixture()

	placed, err := f.reconciler.Submit(context.Background(), order.Buy, dec("0.33333"), dec("101.23456"), true)
	require.NoError(t, err)
	assert.True(t, placed.Quantity.Equal(dec("0.33")))
	assert.True(t, placed.Price.Equal(dec("101.23")))
}

func TestCancelFailureLeavesStatus(t *testing.T) {
	f := newFixture()
	f.seed("s1", order.Sell, "0.5", order.New)
	f.venue.sendErr = errors.New("timeout")

	out, err := f.reconciler.HandleSignal(context.Background(), strategy.Long, book(99, 101))
	require.Error(t, err, "the follow-up send fails too")
	assert.Equal(t, 0, out.Cancels)
	s1, _ := f.store.Get("s1")
	assert.Equal(t, order.New, s1.Status)
}

func TestCancelAllMarksOpenOrders(t *testing.T) {
	f := newFixture()
	f.seed("b1", order.Buy, "0.5", order.New)
	f.seed("s1", order.Sell, "0.5", order.Filled)

	require.NoError(t, f.reconciler.CancelAll(context.Background()))
	assert.Equal(t, 1, f.venue.cancelAll)
	b1, _ := f.store.Get("b1")
	assert.Equal(t, order.PendingCancel, b1.Status)
	s1, _ := f.store.Get("s1")
	assert.Equal(t, order.Filled, s1.Status)
}

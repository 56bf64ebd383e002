package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
)

type fakeGateway struct {
	mu          sync.Mutex
	buyCalls    int
	sellCalls   int
	cancelCalls int
	result      *domain.OrderResult
	err         error
	block       chan struct{} // when set, submissions wait on it
}

func (g *fakeGateway) submit() (*domain.OrderResult, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.err
}

func (g *fakeGateway) SubmitBuy(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error) {
	g.mu.Lock()
	g.buyCalls++
	g.mu.Unlock()
	return g.submit()
}

func (g *fakeGateway) SubmitSell(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error) {
	g.mu.Lock()
	g.sellCalls++
	g.mu.Unlock()
	return g.submit()
}

func (g *fakeGateway) Cancel(ctx context.Context, orderID int64, assetID string, orderType domain.OrderType) (string, error) {
	g.mu.Lock()
	g.cancelCalls++
	g.mu.Unlock()
	return "cancelled", g.err
}

type fakeLedger struct {
	mu       sync.Mutex
	pending  []domain.Order
	matched  []domain.MatchedOrder
	reduced  []float64
	resolved []int64
}

func (l *fakeLedger) RecordPending(order domain.Order) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, order)
	return "key", nil
}

func (l *fakeLedger) RecordFills(trades []domain.MatchedOrder, orderType domain.OrderType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matched = append(l.matched, trades...)
	return nil
}

func (l *fakeLedger) ResolvePending(orderID int64, assetID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = append(l.resolved, orderID)
	for i, o := range l.pending {
		if o.OrderID == orderID && o.AssetID == assetID {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) ReduceMatched(assetID string, shares float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reduced = append(l.reduced, shares)
	return nil
}

func (l *fakeLedger) Pending() ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Order(nil), l.pending...), nil
}

func (l *fakeLedger) Matched() ([]domain.MatchedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.MatchedOrder(nil), l.matched...), nil
}

func (l *fakeLedger) MatchedPrefix() string { return "orders/u1/MatchedOrders/" }

func TestBuySettlesAndMirrors(t *testing.T) {
	gw := &fakeGateway{result: &domain.OrderResult{
		OrderID: 7,
		AssetID: "a1",
		PendingOrder: &domain.Order{
			AssetID: "a1", ShareAmount: 2, PricePerShare: 1200,
		},
		FilledTrades: []domain.MatchedOrder{
			{OrderID: 7, AssetID: "a1", Shares: 3, Price: 1200, OrderType: domain.OrderTypeBuy},
		},
	}}
	led := &fakeLedger{}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(5)
	require.NoError(t, c.Buy(context.Background(), 1200))

	require.Equal(t, StateSettled, c.State())
	require.Zero(t, c.Amount(), "settled submission clears the staged amount")
	require.Len(t, led.pending, 1)
	require.Equal(t, int64(7), led.pending[0].OrderID, "pending record carries the backend orderId")
	require.Len(t, led.matched, 1)
	require.Empty(t, led.reduced)
}

func TestBuyUnfilledLeavesPositionUnchanged(t *testing.T) {
	gw := &fakeGateway{result: &domain.OrderResult{
		OrderID:      8,
		AssetID:      "b1",
		PendingOrder: &domain.Order{AssetID: "b1", ShareAmount: 10, PricePerShare: 5000},
	}}
	led := &fakeLedger{}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("b1")
	c.SetAmount(10)
	require.NoError(t, c.Buy(context.Background(), 5000))

	require.Len(t, led.pending, 1, "unfilled buy records exactly one pending order")
	require.Empty(t, led.matched, "no fills means no matched records")

	held, err := c.Position("b1")
	require.NoError(t, err)
	require.Zero(t, held, "position changes only on fills")
}

func TestBuyFailureKeepsAmountAndLedger(t *testing.T) {
	gw := &fakeGateway{err: errors.Wrap(domain.ErrNetwork, "backend down")}
	led := &fakeLedger{}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(5)
	err := c.Buy(context.Background(), 1200)
	require.ErrorIs(t, err, domain.ErrNetwork)

	require.Equal(t, StateFailed, c.State())
	require.Equal(t, 5.0, c.Amount(), "failed submission keeps the staged amount")
	require.ErrorIs(t, c.LastErr(), domain.ErrNetwork)
	require.Empty(t, led.pending, "nothing is recorded optimistically")
	require.Empty(t, led.matched)
}

func TestSellGateBlocksBeforeGateway(t *testing.T) {
	gw := &fakeGateway{}
	led := &fakeLedger{matched: []domain.MatchedOrder{
		{AssetID: "a1", OrderType: domain.OrderTypeBuy, Shares: 5},
	}}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(10)
	err := c.Sell(context.Background(), 1000)
	require.ErrorIs(t, err, domain.ErrInsufficientPosition)
	require.Equal(t, StateFailed, c.State())
	require.Zero(t, gw.sellCalls, "gated sell must not reach the gateway")
	require.Empty(t, led.reduced)
}

func TestSellReducesMatchedByFilledAmount(t *testing.T) {
	gw := &fakeGateway{result: &domain.OrderResult{
		OrderID: 9,
		AssetID: "a1",
		PendingOrder: &domain.Order{
			AssetID: "a1", OrderType: domain.OrderTypeSell, ShareAmount: 2, PricePerShare: 1000,
		},
		FilledTrades: []domain.MatchedOrder{
			{OrderID: 9, AssetID: "a1", OrderType: domain.OrderTypeSell, Shares: 3, Price: 1000},
		},
	}}
	led := &fakeLedger{matched: []domain.MatchedOrder{
		{AssetID: "a1", OrderType: domain.OrderTypeBuy, Shares: 8},
	}}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(5)
	require.NoError(t, c.Sell(context.Background(), 1000))

	require.Equal(t, []float64{3}, led.reduced, "reduction is by filled shares, not the staged amount")
	require.Len(t, led.matched, 1, "sell fills are never appended to the matched partition")
	require.Len(t, led.pending, 1, "unfilled remainder goes pending")
	require.Equal(t, StateSettled, c.State())
}

func TestFullyFilledSellLeavesZeroPosition(t *testing.T) {
	store, err := ledger.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	mirror := ledger.NewMirror("u1", store)
	t.Cleanup(mirror.Close)

	require.NoError(t, mirror.RecordFills([]domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 50, Price: 1000},
	}, domain.OrderTypeBuy))

	gw := &fakeGateway{result: &domain.OrderResult{
		OrderID: 2,
		AssetID: "a1",
		FilledTrades: []domain.MatchedOrder{
			{OrderID: 2, AssetID: "a1", OrderType: domain.OrderTypeSell, Shares: 50, Price: 1000},
		},
	}}
	c := NewController(gw, mirror, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(50)
	require.NoError(t, c.Sell(context.Background(), 1000))

	held, err := c.Position("a1")
	require.NoError(t, err)
	require.Zero(t, held, "selling the whole holding lands on zero, never negative")
}

func TestPendingSellKeepsPosition(t *testing.T) {
	store, err := ledger.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	mirror := ledger.NewMirror("u1", store)
	t.Cleanup(mirror.Close)

	require.NoError(t, mirror.RecordFills([]domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 50, Price: 1000},
	}, domain.OrderTypeBuy))

	gw := &fakeGateway{result: &domain.OrderResult{
		OrderID: 2,
		AssetID: "a1",
		PendingOrder: &domain.Order{
			AssetID: "a1", OrderType: domain.OrderTypeSell, ShareAmount: 30, PricePerShare: 1000,
		},
	}}
	c := NewController(gw, mirror, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(30)
	require.NoError(t, c.Sell(context.Background(), 1000))

	held, err := c.Position("a1")
	require.NoError(t, err)
	require.Equal(t, 50.0, held, "an unfilled sell changes nothing until it matches")

	pending, err := mirror.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSecondSubmissionWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{result: &domain.OrderResult{OrderID: 1, AssetID: "a1"}, block: block}
	led := &fakeLedger{}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(1)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Buy(context.Background(), 1000) }()

	require.Eventually(t, func() bool { return c.State() == StateSubmitting },
		time.Second, time.Millisecond)
	require.ErrorIs(t, c.Buy(context.Background(), 1000), ErrBusy)

	close(block)
	require.NoError(t, <-firstDone)
}

func TestValidationFailureStaysIdle(t *testing.T) {
	gw := &fakeGateway{err: errors.Wrap(domain.ErrValidation, "share amount 0 is not a positive finite number")}
	led := &fakeLedger{}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(-3)
	err := c.Buy(context.Background(), 1000)
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Equal(t, StateIdle, c.State(), "nothing was submitted, so there is no terminal state")
	require.Equal(t, -3.0, c.Amount(), "staged amount untouched for correction")
	require.ErrorIs(t, c.LastErr(), domain.ErrValidation)
	require.Empty(t, led.pending)

	// The controller accepts a corrected submission immediately.
	gw.mu.Lock()
	gw.err = nil
	gw.result = &domain.OrderResult{OrderID: 1, AssetID: "a1"}
	gw.mu.Unlock()
	c.SetAmount(2)
	require.NoError(t, c.Buy(context.Background(), 1000))
	require.Equal(t, StateSettled, c.State())
}

func TestAckReturnsToIdle(t *testing.T) {
	gw := &fakeGateway{err: errors.Wrap(domain.ErrNetwork, "down")}
	c := NewController(gw, &fakeLedger{}, "0xabc")
	defer c.Close()

	c.SelectAsset("a1")
	c.SetAmount(1)
	_ = c.Buy(context.Background(), 1000)
	require.Equal(t, StateFailed, c.State())

	c.Ack()
	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.LastErr())
}

func TestCancelResolvesLocalOn404(t *testing.T) {
	gw := &fakeGateway{err: errors.Wrap(domain.ErrNotFound, "gone")}
	led := &fakeLedger{pending: []domain.Order{
		{OrderID: 4, AssetID: "a1", OrderType: domain.OrderTypeBuy},
	}}
	c := NewController(gw, led, "0xabc")
	defer c.Close()

	require.NoError(t, c.Cancel(context.Background(), 4, "a1", domain.OrderTypeBuy))
	require.Empty(t, led.pending, "local pending record resolved despite backend 404")
}

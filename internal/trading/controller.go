// Package trading drives the order entry workflow: one controller per user
// and view, walking a small state machine around the gateway and the ledger
// mirror.
package trading

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/internal/position"
	"github.com/assetdesk/tradefront/pkg/logger"
	"github.com/assetdesk/tradefront/pkg/sigchan"
)

// State is the controller's submission state. Exactly one submission runs at
// a time; a second one while Submitting is rejected.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSettled    State = "settled"
	StateFailed     State = "failed"
)

// Gateway is the slice of the backend client the controller uses.
type Gateway interface {
	SubmitBuy(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error)
	SubmitSell(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error)
	Cancel(ctx context.Context, orderID int64, assetID string, orderType domain.OrderType) (string, error)
}

// Ledger is the slice of the order mirror the controller uses.
type Ledger interface {
	RecordPending(order domain.Order) (string, error)
	RecordFills(trades []domain.MatchedOrder, orderType domain.OrderType) error
	ResolvePending(orderID int64, assetID string) (bool, error)
	ReduceMatched(assetID string, shares float64) error
	Pending() ([]domain.Order, error)
	Matched() ([]domain.MatchedOrder, error)
	MatchedPrefix() string
}

// ErrBusy is returned when a submission is started while one is in flight.
var ErrBusy = errors.New("trading: submission already in flight")

// Controller owns the entry form state for one user. The ledger is only
// written from backend results; nothing is recorded optimistically, so a
// failed submission leaves the ledger exactly as it was.
type Controller struct {
	gateway Gateway
	ledger  Ledger
	owner   string
	log     *logrus.Entry

	mu      sync.Mutex
	state   State
	assetID string
	amount  float64
	lastErr error

	refresh  *sigchan.Chan
	onChange func(map[string]float64)
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewController builds a controller for owner backed by gw and led.
func NewController(gw Gateway, led Ledger, owner string) *Controller {
	return &Controller{
		gateway: gw,
		ledger:  led,
		owner:   owner,
		state:   StateIdle,
		log:     logger.WithField("component", "trading").WithField("owner", owner),
		refresh: sigchan.New(1),
		stopped: make(chan struct{}),
	}
}

// SelectAsset points the controller at an asset and resets transient state.
func (c *Controller) SelectAsset(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assetID = assetID
	c.amount = 0
	c.lastErr = nil
	if c.state != StateSubmitting {
		c.state = StateIdle
	}
}

// SetAmount stages the share amount for the next submission.
func (c *Controller) SetAmount(shares float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amount = shares
}

// Amount returns the staged share amount.
func (c *Controller) Amount() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amount
}

// State returns the current submission state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastErr returns the error of the last failed submission, nil otherwise.
func (c *Controller) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Ack acknowledges a terminal state and returns the controller to Idle.
// Acknowledging while Idle or Submitting is a no-op.
func (c *Controller) Ack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSettled || c.state == StateFailed {
		c.state = StateIdle
		c.lastErr = nil
	}
}

// beginSubmit transitions Idle to Submitting, capturing the staged form.
func (c *Controller) beginSubmit() (assetID string, shares float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return "", 0, ErrBusy
	}
	c.state = StateSubmitting
	c.lastErr = nil
	return c.assetID, c.amount, nil
}

// settle leaves Submitting. A settled submission clears the staged amount; a
// failed one keeps it so the user can correct and resubmit. Local validation
// failures return straight to Idle: nothing was submitted, so there is no
// terminal state to acknowledge.
func (c *Controller) settle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(err, domain.ErrValidation) {
		c.state = StateIdle
		c.lastErr = err
		return
	}
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		return
	}
	c.state = StateSettled
	c.amount = 0
}

// Buy submits a buy for the staged amount at price and mirrors the result.
func (c *Controller) Buy(ctx context.Context, price domain.Milli) error {
	assetID, shares, err := c.beginSubmit()
	if err != nil {
		return err
	}
	result, err := c.gateway.SubmitBuy(ctx, assetID, shares, price, c.owner)
	if err == nil {
		err = c.mirror(result, domain.OrderTypeBuy)
	}
	c.settle(err)
	return err
}

// Sell submits a sell for the staged amount at price. The staged amount is
// checked against the position derived from the matched ledger before any
// request leaves the process.
func (c *Controller) Sell(ctx context.Context, price domain.Milli) error {
	assetID, shares, err := c.beginSubmit()
	if err != nil {
		return err
	}
	held, err := c.Position(assetID)
	if err == nil && shares > held {
		err = errors.Wrapf(domain.ErrInsufficientPosition,
			"sell %v shares of %s with only %v held", shares, assetID, held)
	}
	var result *domain.OrderResult
	if err == nil {
		result, err = c.gateway.SubmitSell(ctx, assetID, shares, price, c.owner)
	}
	if err == nil {
		err = c.mirror(result, domain.OrderTypeSell)
	}
	c.settle(err)
	return err
}

// mirror records a backend result into the ledger: the unmatched remainder as
// a pending order, and the filled portion into the matched partition. Buy
// fills are appended; sell fills instead consume the existing matched records
// by the filled share count. Exactly one of the two mechanisms runs, so a
// filled sell is deducted once, and a sell that went wholly pending touches
// the matched partition not at all.
func (c *Controller) mirror(result *domain.OrderResult, side domain.OrderType) error {
	if result == nil {
		return nil
	}
	if result.PendingOrder != nil {
		pending := *result.PendingOrder
		pending.OrderID = result.OrderID
		if pending.AssetID == "" {
			pending.AssetID = result.AssetID
		}
		if pending.OrderType == "" {
			pending.OrderType = side
		}
		if _, err := c.ledger.RecordPending(pending); err != nil {
			return errors.Wrap(err, "record pending")
		}
	}
	switch side {
	case domain.OrderTypeBuy:
		if err := c.ledger.RecordFills(result.FilledTrades, side); err != nil {
			return errors.Wrap(err, "record fills")
		}
	case domain.OrderTypeSell:
		filled := 0.0
		for _, trade := range result.FilledTrades {
			filled += trade.Shares
		}
		if filled > 0 {
			if err := c.ledger.ReduceMatched(result.AssetID, filled); err != nil {
				return errors.Wrap(err, "reduce matched")
			}
		}
	}
	c.refresh.Emit()
	return nil
}

// Cancel removes a pending order, backend first, then the local mirror. A
// backend 404 means the order settled or was cancelled elsewhere; the local
// record is still resolved in that case.
func (c *Controller) Cancel(ctx context.Context, orderID int64, assetID string, orderType domain.OrderType) error {
	_, err := c.gateway.Cancel(ctx, orderID, assetID, orderType)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	removed, rerr := c.ledger.ResolvePending(orderID, assetID)
	if rerr != nil {
		return errors.Wrap(rerr, "resolve pending")
	}
	if !removed {
		c.log.Warnf("cancel of orderId=%d found no local pending record", orderID)
	}
	c.refresh.Emit()
	return nil
}

// Position derives the held share count for assetID from the matched ledger.
func (c *Controller) Position(assetID string) (float64, error) {
	matched, err := c.ledger.Matched()
	if err != nil {
		return 0, errors.Wrap(err, "load matched orders")
	}
	return position.Derive(assetID, matched), nil
}

// Watch subscribes to matched-ledger changes on store and invokes onChange
// with freshly derived per-asset positions, debounced so a burst of fills
// triggers one recompute. Stop with Close.
func (c *Controller) Watch(store ledger.Store, debounce time.Duration, onChange func(map[string]float64)) func() {
	c.onChange = onChange
	cancel := store.Subscribe(c.ledger.MatchedPrefix(), func(ledger.Event) {
		c.refresh.Emit()
	})
	go c.watchLoop(debounce)
	return func() {
		cancel()
		c.Close()
	}
}

func (c *Controller) watchLoop(debounce time.Duration) {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	for {
		select {
		case <-c.stopped:
			return
		case <-c.refresh.C():
		}
		time.Sleep(debounce)
		c.refresh.Drain()
		matched, err := c.ledger.Matched()
		if err != nil {
			c.log.Warnf("position refresh failed: %v", err)
			continue
		}
		if c.onChange != nil {
			c.onChange(position.DeriveAll(matched))
		}
	}
}

// Close stops the watch loop.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

package ledger

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/pkg/logger"
)

const sharesEpsilon = 1e-9

// Mirror is the sole writer of one user's order partitions. Every mutation is
// funneled through a FIFO queue drained by a single goroutine, so mutations
// apply in the order their triggering requests were initiated, not the order
// backend responses happen to arrive. The underlying store has no native
// locking; this queue is the serialization point.
type Mirror struct {
	uid   string
	store Store
	ops   chan mirrorOp
	quit  chan struct{}
	done  chan struct{}
	log   *logrus.Entry

	closeOnce sync.Once
}

type mirrorOp struct {
	fn    func() error
	reply chan error
}

// NewMirror starts the mutation worker for uid.
func NewMirror(uid string, store Store) *Mirror {
	m := &Mirror{
		uid:   uid,
		store: store,
		ops:   make(chan mirrorOp, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   logger.WithField("component", "ledger").WithField("uid", uid),
	}
	go m.run()
	return m
}

func (m *Mirror) run() {
	defer close(m.done)
	for {
		select {
		case op := <-m.ops:
			op.reply <- op.fn()
		case <-m.quit:
			// Apply whatever was already queued before stopping.
			for {
				select {
				case op := <-m.ops:
					op.reply <- op.fn()
				default:
					return
				}
			}
		}
	}
}

// do enqueues a mutation and blocks until it has been applied. Enqueue order
// is initiation order because callers invoke do at initiation time.
func (m *Mirror) do(fn func() error) error {
	op := mirrorOp{fn: fn, reply: make(chan error, 1)}
	select {
	case m.ops <- op:
	case <-m.quit:
		return ErrClosed
	}
	select {
	case err := <-op.reply:
		return err
	case <-m.done:
		return ErrClosed
	}
}

// Close stops the worker after draining queued mutations.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() { close(m.quit) })
	<-m.done
}

func (m *Mirror) pendingPrefix() string   { return "orders/" + m.uid + "/pendingOrders/" }
func (m *Mirror) matchedPrefix() string   { return "orders/" + m.uid + "/MatchedOrders/" }
func (m *Mirror) completedPrefix() string { return "orders/" + m.uid + "/CompletedOrders/" }

// MatchedPrefix exposes the matched partition path for subscriptions.
func (m *Mirror) MatchedPrefix() string { return m.matchedPrefix() }

// CompletedPrefix exposes the completed partition path for subscriptions.
func (m *Mirror) CompletedPrefix() string { return m.completedPrefix() }

// RecordPending appends an order to the pending partition under a locally
// generated key and returns that key.
func (m *Mirror) RecordPending(order domain.Order) (string, error) {
	if order.Timestamp == 0 {
		order.Timestamp = time.Now().UnixMilli()
	}
	key := NewKey()
	err := m.do(func() error {
		return m.store.Put(m.pendingPrefix()+key, order)
	})
	if err != nil {
		return "", err
	}
	m.log.Infof("pending recorded: orderId=%d asset=%s %s %v @ %s",
		order.OrderID, order.AssetID, order.OrderType, order.ShareAmount, order.PricePerShare)
	return key, nil
}

// RecordFills appends filled trades to the matched partition, stamping the
// side and a local timestamp where the backend left them blank.
func (m *Mirror) RecordFills(trades []domain.MatchedOrder, orderType domain.OrderType) error {
	if len(trades) == 0 {
		return nil
	}
	// The whole batch is checked before anything is written, so a bad trade
	// mid-batch cannot leave a partial append behind.
	for _, trade := range trades {
		if trade.Shares <= 0 {
			return errors.Wrapf(domain.ErrValidation, "fill with non-positive shares %v", trade.Shares)
		}
	}
	now := time.Now().UnixMilli()
	return m.do(func() error {
		for _, trade := range trades {
			if trade.OrderType == "" {
				trade.OrderType = orderType
			}
			if trade.Timestamp == 0 {
				trade.Timestamp = now
			}
			if err := m.store.Put(m.matchedPrefix()+NewKey(), trade); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolvePending removes the pending record matching orderID and assetID and
// archives it into the completed partition. Returns false when no record
// matches, which callers treat as already resolved rather than an error.
func (m *Mirror) ResolvePending(orderID int64, assetID string) (bool, error) {
	removed := false
	err := m.do(func() error {
		records, err := m.store.List(m.pendingPrefix())
		if err != nil {
			return err
		}
		for _, rec := range records {
			var order domain.Order
			if err := json.Unmarshal(rec.Value, &order); err != nil {
				m.log.Warnf("skipping undecodable pending record %s: %v", rec.Key, err)
				continue
			}
			if order.OrderID != orderID || order.AssetID != assetID {
				continue
			}
			if err := m.store.Delete(rec.Key); err != nil {
				return err
			}
			if err := m.store.Put(m.completedPrefix()+NewKey(), order); err != nil {
				return err
			}
			removed = true
			return nil
		}
		return nil
	})
	return removed, err
}

// ReduceMatched subtracts shares from the matched records of assetID, walking
// them in insertion order. Records drained to zero are deleted. If the
// records cannot cover the full amount the whole reduction is aborted before
// any write: that situation means the position gate was bypassed, so the
// mirror reports it instead of guessing a partial state.
func (m *Mirror) ReduceMatched(assetID string, shares float64) error {
	if shares <= 0 {
		return errors.Wrapf(domain.ErrValidation, "reduce by non-positive shares %v", shares)
	}
	return m.do(func() error {
		records, err := m.store.List(m.matchedPrefix())
		if err != nil {
			return err
		}

		type entry struct {
			key   string
			trade domain.MatchedOrder
		}
		var matched []entry
		total := 0.0
		for _, rec := range records {
			var trade domain.MatchedOrder
			if err := json.Unmarshal(rec.Value, &trade); err != nil {
				m.log.Warnf("skipping undecodable matched record %s: %v", rec.Key, err)
				continue
			}
			if trade.AssetID != assetID {
				continue
			}
			matched = append(matched, entry{key: rec.Key, trade: trade})
			total += trade.Shares
		}
		if total+sharesEpsilon < shares {
			m.log.Errorf("matched underflow: asset=%s have=%v want=%v", assetID, total, shares)
			return errors.Wrapf(domain.ErrInsufficientPosition,
				"reduce %v shares of %s with only %v matched", shares, assetID, total)
		}

		remaining := shares
		for _, e := range matched {
			if remaining <= sharesEpsilon {
				break
			}
			take := e.trade.Shares
			if take > remaining {
				take = remaining
			}
			remaining -= take
			left := e.trade.Shares - take
			if left <= sharesEpsilon {
				if err := m.store.Delete(e.key); err != nil {
					return err
				}
				continue
			}
			e.trade.Shares = left
			if err := m.store.Put(e.key, e.trade); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pending returns a snapshot of the pending partition in insertion order.
func (m *Mirror) Pending() ([]domain.Order, error) {
	return listOrders(m.store, m.pendingPrefix(), m.log)
}

// Completed returns a snapshot of the completed partition.
func (m *Mirror) Completed() ([]domain.Order, error) {
	return listOrders(m.store, m.completedPrefix(), m.log)
}

// Matched returns a snapshot of the matched partition in insertion order.
func (m *Mirror) Matched() ([]domain.MatchedOrder, error) {
	records, err := m.store.List(m.matchedPrefix())
	if err != nil {
		return nil, err
	}
	trades := make([]domain.MatchedOrder, 0, len(records))
	for _, rec := range records {
		var trade domain.MatchedOrder
		if err := json.Unmarshal(rec.Value, &trade); err != nil {
			m.log.Warnf("skipping undecodable matched record %s: %v", rec.Key, err)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func listOrders(store Store, prefix string, log *logrus.Entry) ([]domain.Order, error) {
	records, err := store.List(prefix)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		var order domain.Order
		if err := json.Unmarshal(rec.Value, &order); err != nil {
			log.Warnf("skipping undecodable order record %s: %v", rec.Key, err)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

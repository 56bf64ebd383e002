// Package pricefeed polls the backend price history and maintains the latest
// snapshot for a single asset.
package pricefeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/pkg/logger"
)

// Fetcher is the slice of the gateway the poller needs.
type Fetcher interface {
	PriceHistory(ctx context.Context, assetID string) ([]domain.PricePoint, error)
}

// Snapshot is one successfully fetched series. CurrentPrice is the last point
// of the series, which the backend defines as the live price.
type Snapshot struct {
	AssetID      string
	Series       []domain.PricePoint
	CurrentPrice domain.Milli
	FetchedAt    time.Time
}

// Poller refreshes an asset's price series on an interval. Responses are
// applied only if no newer fetch has completed first: each fetch is tagged
// with a sequence number at initiation, and a response whose tag is below the
// highest applied one is dropped.
type Poller struct {
	fetcher Fetcher
	log     *logrus.Entry

	seq atomic.Uint64

	mu      sync.RWMutex
	applied uint64
	current *Snapshot
}

// NewPoller builds a poller around fetcher.
func NewPoller(fetcher Fetcher) *Poller {
	return &Poller{
		fetcher: fetcher,
		log:     logger.WithField("component", "pricefeed"),
	}
}

// FetchLatest fetches the series once and applies it if still fresh. On a
// fetch error the previous snapshot is retained and the error returned.
func (p *Poller) FetchLatest(ctx context.Context, assetID string) (*Snapshot, error) {
	tag := p.seq.Add(1)
	snap, err := p.fetch(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !p.apply(tag, snap) {
		p.log.Debugf("dropping stale price response for %s (tag %d)", assetID, tag)
		return p.Current(), nil
	}
	return snap, nil
}

// fetch builds a snapshot without installing it.
func (p *Poller) fetch(ctx context.Context, assetID string) (*Snapshot, error) {
	series, err := p.fetcher.PriceHistory(ctx, assetID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch price history for %s", assetID)
	}
	return &Snapshot{
		AssetID:      assetID,
		Series:       series,
		CurrentPrice: series[len(series)-1].PricePerShare,
		FetchedAt:    time.Now(),
	}, nil
}

// apply installs snap unless a later-initiated fetch already did.
func (p *Poller) apply(tag uint64, snap *Snapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tag <= p.applied {
		return false
	}
	p.applied = tag
	p.current = snap
	return true
}

// Current returns the most recently applied snapshot, or nil before the first
// successful fetch.
func (p *Poller) Current() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Start polls assetID every interval, invoking onUpdate with each applied
// snapshot. A failed poll is logged and the loop continues with the previous
// snapshot intact. The returned stop function cancels the loop; a fetch in
// flight at stop time is discarded whole, never installed into Current.
func (p *Poller) Start(assetID string, interval time.Duration, onUpdate func(*Snapshot)) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			tag := p.seq.Add(1)
			snap, err := p.fetch(ctx, assetID)
			if stopped.Load() {
				return
			}
			switch {
			case err != nil:
				p.log.Warnf("price poll failed for %s: %v", assetID, err)
			default:
				if p.apply(tag, snap) && onUpdate != nil {
					onUpdate(snap)
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		stopped.Store(true)
		cancel()
	}
}

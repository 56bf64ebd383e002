// Package archive keeps a durable history of completed orders in sqlite. The
// realtime store holds only the live tree; once an order reaches the
// completed partition it is copied here so history survives store compaction
// and resets.
package archive

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/pkg/logger"
)

// Archive is an append-mostly completed-order log.
type Archive struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open opens (or creates) the archive at path and runs migrations.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent feeders.
	db.SetMaxOpenConns(1)
	a := &Archive{db: db, log: logger.WithField("component", "archive")}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS completed_orders (
    record_key    TEXT PRIMARY KEY,
    uid           TEXT NOT NULL,
    order_id      INTEGER NOT NULL,
    asset_id      TEXT NOT NULL,
    order_type    TEXT NOT NULL,
    share_amount  REAL NOT NULL,
    price_milli   INTEGER NOT NULL,
    ts            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completed_uid_ts ON completed_orders (uid, ts);
`
	if _, err := a.db.Exec(schema); err != nil {
		return errors.Wrap(err, "migrate archive")
	}
	return nil
}

// Record stores one completed order under its ledger record key. Re-recording
// the same key is a no-op, so the subscription feeder can replay safely.
func (a *Archive) Record(recordKey, uid string, order domain.Order) error {
	_, err := a.db.Exec(`
INSERT OR IGNORE INTO completed_orders
    (record_key, uid, order_id, asset_id, order_type, share_amount, price_milli, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recordKey, uid, order.OrderID, order.AssetID, string(order.OrderType),
		order.ShareAmount, int64(order.PricePerShare), order.Timestamp)
	if err != nil {
		return errors.Wrapf(err, "archive order %d", order.OrderID)
	}
	return nil
}

// History returns uid's completed orders, oldest first.
func (a *Archive) History(uid string) ([]domain.Order, error) {
	rows, err := a.db.Query(`
SELECT order_id, asset_id, order_type, share_amount, price_milli, ts
FROM completed_orders WHERE uid = ? ORDER BY ts, record_key`, uid)
	if err != nil {
		return nil, errors.Wrapf(err, "query history for %s", uid)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side string
		var price int64
		if err := rows.Scan(&o.OrderID, &o.AssetID, &side, &o.ShareAmount, &price, &o.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan archived order")
		}
		o.OrderType = domain.OrderType(side)
		o.PricePerShare = domain.Milli(price)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Follow subscribes to uid's completed partition on store and archives every
// record as it appears. Existing records are replayed first so an archive
// opened late still catches up. The returned cancel stops the feed.
func (a *Archive) Follow(store ledger.Store, uid string) (func(), error) {
	prefix := "orders/" + uid + "/CompletedOrders/"

	ingest := func(path string) {
		var order domain.Order
		found, err := store.Get(path, &order)
		if err != nil || !found {
			if err != nil {
				a.log.Warnf("archive read of %s failed: %v", path, err)
			}
			return
		}
		key := strings.TrimPrefix(path, prefix)
		if err := a.Record(key, uid, order); err != nil {
			a.log.Errorf("archive write of %s failed: %v", path, err)
		}
	}

	records, err := store.List(prefix)
	if err != nil {
		return nil, errors.Wrap(err, "replay completed orders")
	}
	for _, rec := range records {
		var order domain.Order
		if err := json.Unmarshal(rec.Value, &order); err != nil {
			a.log.Warnf("skipping undecodable completed record %s: %v", rec.Key, err)
			continue
		}
		if err := a.Record(strings.TrimPrefix(rec.Key, prefix), uid, order); err != nil {
			return nil, err
		}
	}

	cancel := store.Subscribe(prefix, func(ev ledger.Event) {
		if ev.Kind != ledger.EventPut {
			return
		}
		// Subscribe callbacks must not block; archive writes go to a
		// goroutine.
		go ingest(ev.Path)
	})
	return cancel, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

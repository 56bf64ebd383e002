package ledger

import (
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
)

func newTestMirror(t *testing.T) (*Mirror, *BadgerStore) {
	t.Helper()
	store, err := OpenBadgerInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	m := NewMirror("u1", store)
	t.Cleanup(m.Close)
	return m, store
}

func TestRecordPendingAndResolve(t *testing.T) {
	m, _ := newTestMirror(t)

	if _, err := m.RecordPending(domain.Order{OrderID: 101, AssetID: "a1", OrderType: domain.OrderTypeBuy, ShareAmount: 5}); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	if _, err := m.RecordPending(domain.Order{OrderID: 102, AssetID: "a1", OrderType: domain.OrderTypeBuy, ShareAmount: 3}); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}

	pending, err := m.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].OrderID != 101 || pending[1].OrderID != 102 {
		t.Fatalf("pending snapshot not in insertion order: %+v", pending)
	}
	if pending[0].Timestamp == 0 {
		t.Fatal("timestamp was not stamped")
	}

	removed, err := m.ResolvePending(101, "a1")
	if err != nil || !removed {
		t.Fatalf("ResolvePending got removed=%v err=%v", removed, err)
	}
	pending, _ = m.Pending()
	if len(pending) != 1 || pending[0].OrderID != 102 {
		t.Fatalf("pending after resolve: %+v", pending)
	}

	completed, err := m.Completed()
	if err != nil {
		t.Fatalf("Completed: %v", err)
	}
	if len(completed) != 1 || completed[0].OrderID != 101 {
		t.Fatalf("resolved order was not archived: %+v", completed)
	}
}

func TestResolvePendingTwice(t *testing.T) {
	m, _ := newTestMirror(t)
	if _, err := m.RecordPending(domain.Order{OrderID: 8, AssetID: "a1", OrderType: domain.OrderTypeBuy, ShareAmount: 1}); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}

	removed, err := m.ResolvePending(8, "a1")
	if err != nil || !removed {
		t.Fatalf("first resolve: removed=%v err=%v", removed, err)
	}
	removed, err = m.ResolvePending(8, "a1")
	if err != nil {
		t.Fatalf("second resolve must not error: %v", err)
	}
	if removed {
		t.Fatal("second resolve must report removed=false")
	}
}

func TestResolvePendingMissing(t *testing.T) {
	m, _ := newTestMirror(t)
	removed, err := m.ResolvePending(999, "a1")
	if err != nil {
		t.Fatalf("ResolvePending: %v", err)
	}
	if removed {
		t.Fatal("resolving a missing order must report false, not invent a record")
	}
}

func TestResolvePendingRequiresBothKeys(t *testing.T) {
	m, _ := newTestMirror(t)
	if _, err := m.RecordPending(domain.Order{OrderID: 7, AssetID: "a1", OrderType: domain.OrderTypeBuy, ShareAmount: 1}); err != nil {
		t.Fatalf("RecordPending: %v", err)
	}
	removed, err := m.ResolvePending(7, "other-asset")
	if err != nil || removed {
		t.Fatalf("orderId match alone must not resolve: removed=%v err=%v", removed, err)
	}
}

func TestReduceMatchedInsertionOrder(t *testing.T) {
	m, _ := newTestMirror(t)

	fills := []domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 5, Price: 2000},
		{OrderID: 2, AssetID: "a1", Shares: 4, Price: 2100},
		{OrderID: 3, AssetID: "a1", Shares: 6, Price: 2200},
	}
	if err := m.RecordFills(fills, domain.OrderTypeBuy); err != nil {
		t.Fatalf("RecordFills: %v", err)
	}

	// 5 + 4 = first two records fully drained, third untouched minus 2.
	if err := m.ReduceMatched("a1", 11); err != nil {
		t.Fatalf("ReduceMatched: %v", err)
	}
	matched, err := m.Matched()
	if err != nil {
		t.Fatalf("Matched: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("want 1 surviving record, got %+v", matched)
	}
	if matched[0].OrderID != 3 || matched[0].Shares != 4 {
		t.Fatalf("survivor got=%+v want orderId=3 shares=4", matched[0])
	}
}

func TestReduceMatchedDeletesZeroShareRecords(t *testing.T) {
	m, _ := newTestMirror(t)
	if err := m.RecordFills([]domain.MatchedOrder{{OrderID: 1, AssetID: "a1", Shares: 2}}, domain.OrderTypeBuy); err != nil {
		t.Fatalf("RecordFills: %v", err)
	}
	if err := m.ReduceMatched("a1", 2); err != nil {
		t.Fatalf("ReduceMatched: %v", err)
	}
	matched, _ := m.Matched()
	if len(matched) != 0 {
		t.Fatalf("drained record should be deleted, got %+v", matched)
	}
}

func TestReduceMatchedUnderflowWritesNothing(t *testing.T) {
	m, _ := newTestMirror(t)
	if err := m.RecordFills([]domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 3},
		{OrderID: 2, AssetID: "a1", Shares: 2},
	}, domain.OrderTypeBuy); err != nil {
		t.Fatalf("RecordFills: %v", err)
	}

	err := m.ReduceMatched("a1", 6)
	if !errors.Is(err, domain.ErrInsufficientPosition) {
		t.Fatalf("want ErrInsufficientPosition, got %v", err)
	}

	matched, _ := m.Matched()
	if len(matched) != 2 || matched[0].Shares != 3 || matched[1].Shares != 2 {
		t.Fatalf("underflow must leave the ledger untouched, got %+v", matched)
	}
}

func TestReduceMatchedScopedToAsset(t *testing.T) {
	m, _ := newTestMirror(t)
	if err := m.RecordFills([]domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 3},
		{OrderID: 2, AssetID: "a2", Shares: 3},
	}, domain.OrderTypeBuy); err != nil {
		t.Fatalf("RecordFills: %v", err)
	}
	if err := m.ReduceMatched("a1", 3); err != nil {
		t.Fatalf("ReduceMatched: %v", err)
	}
	matched, _ := m.Matched()
	if len(matched) != 1 || matched[0].AssetID != "a2" || matched[0].Shares != 3 {
		t.Fatalf("other asset's records must be untouched, got %+v", matched)
	}
}

func TestRecordFillsStampsSideAndTimestamp(t *testing.T) {
	m, _ := newTestMirror(t)
	if err := m.RecordFills([]domain.MatchedOrder{{OrderID: 1, AssetID: "a1", Shares: 1}}, domain.OrderTypeSell); err != nil {
		t.Fatalf("RecordFills: %v", err)
	}
	matched, _ := m.Matched()
	if matched[0].OrderType != domain.OrderTypeSell {
		t.Fatalf("side not stamped: %+v", matched[0])
	}
	if matched[0].Timestamp == 0 {
		t.Fatal("timestamp not stamped")
	}
}

func TestRecordFillsBadBatchWritesNothing(t *testing.T) {
	m, _ := newTestMirror(t)
	err := m.RecordFills([]domain.MatchedOrder{
		{OrderID: 1, AssetID: "a1", Shares: 3},
		{OrderID: 2, AssetID: "a1", Shares: 0},
		{OrderID: 3, AssetID: "a1", Shares: 2},
	}, domain.OrderTypeBuy)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	matched, _ := m.Matched()
	if len(matched) != 0 {
		t.Fatalf("a rejected batch must leave no partial appends, got %+v", matched)
	}
}

func TestMirrorSerializesConcurrentMutations(t *testing.T) {
	m, _ := newTestMirror(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := m.RecordPending(domain.Order{OrderID: id, AssetID: "a1", OrderType: domain.OrderTypeBuy, ShareAmount: 1}); err != nil {
				t.Errorf("RecordPending(%d): %v", id, err)
			}
		}(int64(i))
	}
	wg.Wait()

	pending, err := m.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 20 {
		t.Fatalf("want 20 pending records, got %d", len(pending))
	}
}

func TestMirrorClosedRejectsMutations(t *testing.T) {
	store, err := OpenBadgerInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	defer store.Close()

	m := NewMirror("u1", store)
	m.Close()
	if _, err := m.RecordPending(domain.Order{OrderID: 1, AssetID: "a1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

package ledger

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventKind describes what happened to a path.
type EventKind string

const (
	EventPut    EventKind = "put"
	EventDelete EventKind = "delete"
)

// Event is a change notification delivered to subscribers after the write
// committed. Delivery is push-based and eventually consistent: readers get no
// read-your-write guarantee.
type Event struct {
	Path string
	Kind EventKind
}

// Record is one stored entry; List returns records in key order.
type Record struct {
	Key   string // full path
	Value []byte // JSON
}

// Store is the realtime tree store the ledger mirror writes into. Paths are
// '/'-separated (orders/{uid}/pendingOrders/{key} and friends). It is
// injected at construction; there is no process-wide store singleton.
//
// Subscribe callbacks run on the mutating goroutine and must not block;
// consumers debounce through sigchan.
type Store interface {
	Put(path string, v interface{}) error
	Get(path string, out interface{}) (bool, error)
	Delete(path string) error
	List(prefix string) ([]Record, error)
	Subscribe(prefix string, fn func(Event)) (cancel func())
	Close() error
}

// ErrClosed is returned by mirror operations after Close.
var ErrClosed = errors.New("ledger: closed")

var keySeq atomic.Uint64

// NewKey generates a locally unique record key. The backend does not
// deduplicate retried submissions by orderId, so records are never keyed by
// it; orderId is carried as a field for lookup instead. The millisecond
// prefix plus sequence keeps key order equal to insertion order, which
// ReduceMatched relies on.
func NewKey() string {
	return fmt.Sprintf("%013d-%06d-%s", time.Now().UnixMilli(), keySeq.Add(1)%1000000, uuid.NewString()[:8])
}

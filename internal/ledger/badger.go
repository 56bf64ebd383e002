package ledger

import (
	"encoding/json"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/pkg/logger"
)

// BadgerStore implements Store on top of a badger key-value database. Values
// are JSON; keys are the store paths verbatim.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry

	mu      sync.RWMutex
	nextSub int
	subs    map[int]subscription
}

type subscription struct {
	prefix string
	fn     func(Event)
}

// OpenBadger opens (or creates) a store at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return openBadger(opts)
}

// OpenBadgerInMemory opens an ephemeral store; used by tests.
func OpenBadgerInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &BadgerStore{
		db:   db,
		log:  logger.WithField("component", "store"),
		subs: make(map[int]subscription),
	}, nil
}

func (s *BadgerStore) Put(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", path)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), data)
	})
	if err != nil {
		return errors.Wrapf(err, "put %s", path)
	}
	s.notify(Event{Path: path, Kind: EventPut})
	return nil
}

func (s *BadgerStore) Get(path string, out interface{}) (bool, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", path)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return true, errors.Wrapf(err, "unmarshal %s", path)
		}
	}
	return true, nil
}

func (s *BadgerStore) Delete(path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(path))
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	s.notify(Event{Path: path, Kind: EventDelete})
	return nil
}

// List returns all records under prefix in key order. Badger iterates keys in
// byte order, so insertion-ordered keys come back in insertion order.
func (s *BadgerStore) List(prefix string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, Record{Key: string(item.KeyCopy(nil)), Value: val})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	return records, nil
}

// Subscribe registers fn for changes under prefix. The returned cancel is
// idempotent.
func (s *BadgerStore) Subscribe(prefix string, fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscription{prefix: prefix, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *BadgerStore) notify(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if strings.HasPrefix(ev.Path, sub.prefix) {
			sub.fn(ev)
		}
	}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

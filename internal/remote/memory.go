package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// ErrUnavailable is what Memory returns while failing.
var ErrUnavailable = errors.New("remote store unavailable")

type listener struct {
	onSnapshot func(Snapshot)
	onError    func(error)
}

// Memory is a Client holding collections in process memory. Listeners are
// notified synchronously after every write. SetFailing makes every call fail
// and reports the error to current listeners.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	listeners   map[string]map[int]listener
	nextID      int
	failing     error
	calls       int
	// CacheFirst makes Subscribe deliver a cache snapshot before the server one.
	CacheFirst bool
}

func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]json.RawMessage{},
		listeners:   map[string]map[int]listener{},
	}
}

// Calls reports how many client calls have been made.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SetFailing makes calls fail with err; nil restores normal operation.
// Active listeners receive err.
func (m *Memory) SetFailing(err error) {
	m.mu.Lock()
	m.failing = err
	var notify []listener
	if err != nil {
		for _, ls := range m.listeners {
			for _, l := range ls {
				notify = append(notify, l)
			}
		}
	}
	m.mu.Unlock()

	for _, l := range notify {
		l.onError(err)
	}
}

func (m *Memory) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.failing
}

// snapshotLocked must be called with mu held.
func (m *Memory) snapshotLocked(collection string, fromCache bool) Snapshot {
	docs := make([]Document, 0, len(m.collections[collection]))
	for id, data := range m.collections[collection] {
		docs = append(docs, Document{ID: id, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return Snapshot{Docs: docs, FromCache: fromCache}
}

func (m *Memory) Subscribe(_ context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (func(), error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.listeners[collection] == nil {
		m.listeners[collection] = map[int]listener{}
	}
	m.listeners[collection][id] = listener{onSnapshot: onSnapshot, onError: onError}
	var first []Snapshot
	if m.CacheFirst {
		first = append(first, Snapshot{FromCache: true})
	}
	first = append(first, m.snapshotLocked(collection, false))
	m.mu.Unlock()

	for _, s := range first {
		onSnapshot(s)
	}
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[collection], id)
	}
	return cancel, nil
}

func (m *Memory) Get(_ context.Context, collection string) (Snapshot, error) {
	if err := m.begin(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(collection, false), nil
}

func (m *Memory) Set(_ context.Context, collection, id string, data json.RawMessage) error {
	if err := m.begin(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]json.RawMessage{}
	}
	m.collections[collection][id] = append(json.RawMessage(nil), data...)
	m.mu.Unlock()
	m.notify(collection)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	if err := m.begin(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.collections[collection], id)
	m.mu.Unlock()
	m.notify(collection)
	return nil
}

// Put writes a document without counting a call or notifying listeners.
// Tests use it to plant server-side data.
func (m *Memory) Put(collection, id string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]json.RawMessage{}
	}
	m.collections[collection][id] = data
}

func (m *Memory) notify(collection string) {
	m.mu.Lock()
	snap := m.snapshotLocked(collection, false)
	ls := make([]listener, 0, len(m.listeners[collection]))
	for _, l := range m.listeners[collection] {
		ls = append(ls, l)
	}
	m.mu.Unlock()

	for _, l := range ls {
		l.onSnapshot(snap)
	}
}

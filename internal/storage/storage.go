// Package storage is a key-value store split into fixed namespaces and backed
// by one of three tiers: a SQLite database, a directory of JSON files, or
// process memory. The tier is chosen once when the store is opened.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Name identifies a namespace.
type Name string

const (
	Users    Name = "users"
	Exams    Name = "exams"
	Sessions Name = "sessions"
	Attempts Name = "attempts"
)

// Names lists every namespace the store accepts.
var Names = []Name{Users, Exams, Sessions, Attempts}

func (n Name) valid() bool {
	for _, v := range Names {
		if n == v {
			return true
		}
	}
	return false
}

var (
	// ErrBackendUnavailable is returned by a probe whose tier cannot be used.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrTransaction marks a failed call on an otherwise healthy tier.
	ErrTransaction = errors.New("storage transaction failed")
	// ErrUnknownNamespace is returned for names outside Names.
	ErrUnknownNamespace = errors.New("unknown namespace")
)

// TransactionError describes a single failed store call. The tier stays in use.
type TransactionError struct {
	Op        string
	Namespace Name
	Tier      Tier
	Err       error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s %s on %s tier: %v", e.Op, e.Namespace, e.Tier, e.Err)
}

func (e *TransactionError) Unwrap() []error { return []error{ErrTransaction, e.Err} }

// Entry is one key/value pair returned by All.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Decode unmarshals the entry's value into dst.
func (e Entry) Decode(dst any) error {
	return json.Unmarshal(e.Value, dst)
}

// Backend is implemented by each tier.
type Backend interface {
	Get(ctx context.Context, ns Name, key string) ([]byte, bool, error)
	Set(ctx context.Context, ns Name, key string, value []byte) error
	Remove(ctx context.Context, ns Name, key string) error
	All(ctx context.Context, ns Name) ([]Entry, error)
	Clear(ctx context.Context, ns Name) error
	Close() error
}

// Store is the selected backend and its tier.
type Store struct {
	tier    Tier
	backend Backend
}

// NewStore wraps an already opened backend.
func NewStore(tier Tier, backend Backend) *Store {
	return &Store{tier: tier, backend: backend}
}

// Tier reports which backend the store selected.
func (s *Store) Tier() Tier { return s.tier }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Namespace returns a handle for one namespace.
func (s *Store) Namespace(name Name) *Namespace {
	return &Namespace{store: s, name: name}
}

// Namespace reads and writes JSON documents under one namespace.
type Namespace struct {
	store *Store
	name  Name
}

// Name returns the namespace's name.
func (n *Namespace) Name() Name { return n.name }

func (n *Namespace) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransactionError{Op: op, Namespace: n.name, Tier: n.store.tier, Err: err}
}

func (n *Namespace) check() error {
	if !n.name.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, n.name)
	}
	return nil
}

// Get decodes the value stored under key into dst and reports whether it exists.
func (n *Namespace) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := n.check(); err != nil {
		return false, err
	}
	raw, ok, err := n.store.backend.Get(ctx, n.name, key)
	if err != nil {
		return false, n.wrap("get", err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", n.name, key, err)
	}
	return true, nil
}

// Set stores v under key, replacing any previous value.
func (n *Namespace) Set(ctx context.Context, key string, v any) error {
	if err := n.check(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", n.name, key, err)
	}
	return n.wrap("set", n.store.backend.Set(ctx, n.name, key, raw))
}

// Remove deletes key. Removing a missing key is not an error.
func (n *Namespace) Remove(ctx context.Context, key string) error {
	if err := n.check(); err != nil {
		return err
	}
	return n.wrap("remove", n.store.backend.Remove(ctx, n.name, key))
}

// All returns every entry in backend order.
func (n *Namespace) All(ctx context.Context) ([]Entry, error) {
	if err := n.check(); err != nil {
		return nil, err
	}
	entries, err := n.store.backend.All(ctx, n.name)
	return entries, n.wrap("list", err)
}

// Clear deletes every entry in the namespace.
func (n *Namespace) Clear(ctx context.Context) error {
	if err := n.check(); err != nil {
		return err
	}
	return n.wrap("clear", n.store.backend.Clear(ctx, n.name))
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	flatPrefix   = "quizvault."
	flatProbeKey = "probe"
)

// Flat is the flat-file tier: one JSON object per namespace, rewritten whole
// on every mutation. It gives no consistency across processes.
type Flat struct {
	dir string
	mu  sync.Mutex
}

// OpenFlat prepares dir and checks that a namespace file can be written there.
func OpenFlat(dir string) (*Flat, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", ErrBackendUnavailable, dir, err)
	}
	f := &Flat{dir: dir}
	probe := Name(flatProbeKey)
	if err := f.save(probe, map[string]json.RawMessage{flatProbeKey: json.RawMessage(`true`)}); err != nil {
		return nil, fmt.Errorf("%w: write probe failed: %w", ErrBackendUnavailable, err)
	}
	if err := os.Remove(f.path(probe)); err != nil {
		return nil, fmt.Errorf("%w: failed to remove probe: %w", ErrBackendUnavailable, err)
	}
	return f, nil
}

func (f *Flat) path(ns Name) string {
	return filepath.Join(f.dir, flatPrefix+string(ns)+".json")
}

func (f *Flat) load(ns Name) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path(ns))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ns, err)
	}
	m := map[string]json.RawMessage{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ns, err)
	}
	return m, nil
}

func (f *Flat) save(ns Name, m map[string]json.RawMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ns, err)
	}
	tmp, err := os.CreateTemp(f.dir, flatPrefix+string(ns)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", ns, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", ns, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", ns, err)
	}
	if err := os.Rename(tmp.Name(), f.path(ns)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", ns, err)
	}
	return nil
}

// update runs a read-modify-write cycle on one namespace file.
func (f *Flat) update(ns Name, fn func(m map[string]json.RawMessage)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load(ns)
	if err != nil {
		return err
	}
	fn(m)
	return f.save(ns, m)
}

func (f *Flat) Get(_ context.Context, ns Name, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load(ns)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (f *Flat) Set(_ context.Context, ns Name, key string, value []byte) error {
	return f.update(ns, func(m map[string]json.RawMessage) { m[key] = value })
}

func (f *Flat) Remove(_ context.Context, ns Name, key string) error {
	return f.update(ns, func(m map[string]json.RawMessage) { delete(m, key) })
}

func (f *Flat) All(_ context.Context, ns Name) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load(ns)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries, nil
}

func (f *Flat) Clear(_ context.Context, ns Name) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(ns, map[string]json.RawMessage{})
}

func (f *Flat) Close() error { return nil }

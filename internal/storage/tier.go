package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conorfennell/quizvault/internal/logging"
)

// Tier is one of the ordered storage backends.
type Tier int

const (
	TierStructured Tier = iota
	TierFlatFile
	TierInMemory
)

func (t Tier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierFlatFile:
		return "flat-file"
	case TierInMemory:
		return "in-memory"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Probe opens one tier. A failing probe must return an error wrapping
// ErrBackendUnavailable.
type Probe struct {
	Tier Tier
	Open func(ctx context.Context) (Backend, error)
}

// Select runs the probes in order and keeps the first backend that opens.
// Probes are never retried.
func Select(ctx context.Context, probes []Probe, logger *slog.Logger) (*Store, error) {
	logger = logging.OrDefault(logger)
	for _, p := range probes {
		backend, err := p.Open(ctx)
		if err != nil {
			logger.Warn("storage tier unavailable, falling back", "tier", p.Tier, "error", err)
			continue
		}
		logger.Info("storage tier selected", "tier", p.Tier)
		return NewStore(p.Tier, backend), nil
	}
	return nil, fmt.Errorf("no storage tier could be opened: %w", ErrBackendUnavailable)
}

// Options configures Open.
type Options struct {
	// DBPath is the SQLite file of the structured tier.
	DBPath string
	// FlatDir holds the JSON files of the flat-file tier.
	FlatDir string
	// DisableStructured skips the structured tier.
	DisableStructured bool
	Logger            *slog.Logger
}

// Probes returns the ordered probe list for opts. The in-memory tier is
// always last.
func Probes(opts Options) []Probe {
	var probes []Probe
	if !opts.DisableStructured && opts.DBPath != "" {
		probes = append(probes, Probe{Tier: TierStructured, Open: func(ctx context.Context) (Backend, error) {
			db, err := OpenSQLite(ctx, opts.DBPath)
			if err != nil {
				return nil, err
			}
			return db, nil
		}})
	}
	if opts.FlatDir != "" {
		probes = append(probes, Probe{Tier: TierFlatFile, Open: func(ctx context.Context) (Backend, error) {
			flat, err := OpenFlat(opts.FlatDir)
			if err != nil {
				return nil, err
			}
			return flat, nil
		}})
	}
	probes = append(probes, Probe{Tier: TierInMemory, Open: func(context.Context) (Backend, error) {
		return NewMemory(), nil
	}})
	return probes
}

// Open selects a tier for opts.
func Open(ctx context.Context, opts Options) (*Store, error) {
	return Select(ctx, Probes(opts), opts.Logger)
}

package index

import (
	"fmt"
	"math"
)

// Default HNSW parameters.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
	// DefaultCleanupThreshold is the deleted fraction past which
	// NeedsCompaction reports true.
	DefaultCleanupThreshold = 0.1

	// maxAssignableLayer caps random layer assignment so MaxLayer fits
	// its u8 field and region capacity fits u16 for any legal M.
	maxAssignableLayer = 63
)

// Params are the HNSW construction and search knobs.
type Params struct {
	// M is the neighbor budget per node per upper layer. M0 applies at
	// layer 0 and defaults to 2*M.
	M  int
	M0 int
	// EfConstruction is the beam width during insert.
	EfConstruction int
	// EfSearch is the beam width during search.
	EfSearch int
	// Seed seeds the layer-assignment RNG for reproducible builds.
	Seed int64
	// CleanupThreshold is the deleted fraction that recommends
	// compaction.
	CleanupThreshold float64
}

// DefaultParams returns the standard parameter set.
func DefaultParams() Params {
	return Params{
		M:                DefaultM,
		M0:               2 * DefaultM,
		EfConstruction:   DefaultEfConstruction,
		EfSearch:         DefaultEfSearch,
		Seed:             1,
		CleanupThreshold: DefaultCleanupThreshold,
	}
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	if p.M < 2 {
		return fmt.Errorf("M must be at least 2, got %d", p.M)
	}
	if p.M0 < p.M {
		return fmt.Errorf("M0 (%d) must be at least M (%d)", p.M0, p.M)
	}
	if capa := regionCapacity(maxAssignableLayer, p.M, p.M0); capa > math.MaxUint16 {
		return fmt.Errorf("M0 + %d*M must be at most %d, got %d", maxAssignableLayer, math.MaxUint16, capa)
	}
	if p.EfConstruction < 10 || p.EfConstruction > 500 {
		return fmt.Errorf("ef_construction must be in [10, 500], got %d", p.EfConstruction)
	}
	if p.EfSearch < 10 || p.EfSearch > 200 {
		return fmt.Errorf("ef_search must be in [10, 200], got %d", p.EfSearch)
	}
	if p.CleanupThreshold <= 0 || p.CleanupThreshold > 1 {
		return fmt.Errorf("cleanup threshold must be in (0, 1], got %v", p.CleanupThreshold)
	}
	return nil
}

// levelMult is the layer-assignment exponent 1/ln(M).
func (p Params) levelMult() float64 {
	return 1.0 / math.Log(float64(p.M))
}

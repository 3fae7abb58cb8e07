package edgevec

import (
	"fmt"

	"github.com/edgevec/edgevec/pkg/index"
	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/quant"
)

// IndexType selects the index structure.
type IndexType string

const (
	// IndexHNSW is the graph index: sub-linear search, approximate.
	IndexHNSW IndexType = "hnsw"
	// IndexFlat is the linear-scan index: exact, for small N.
	IndexFlat IndexType = "flat"
)

// MaxDimensions bounds vector width; the ceiling keeps worst-case row
// size sane for constrained (WASM) memory budgets.
const MaxDimensions = 2048

// Config describes an index at creation time.
type Config struct {
	// Dimensions is the fixed vector width, 1..MaxDimensions.
	Dimensions int
	// Metric is the distance metric: "l2", "cosine", or "dot".
	Metric string
	// IndexType selects hnsw or flat.
	IndexType IndexType

	// HNSW parameters; zero values take defaults.
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
	Seed           int64

	// Quantization selects compressed shadows: "none", "sq8",
	// "binary", or "sq8+binary".
	Quantization string
	// MetadataEnabled turns the per-vector metadata store on.
	MetadataEnabled bool
	// CleanupThreshold is the deleted fraction that recommends
	// compaction; zero takes the default.
	CleanupThreshold float64
	// MemoryLimitBytes is the soft memory ceiling; zero disables the
	// gate.
	MemoryLimitBytes uint64
	// Logger receives operational logs; nil means silent.
	Logger Logger
}

// DefaultConfig returns an HNSW config with standard parameters.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:       dimensions,
		Metric:           "l2",
		IndexType:        IndexHNSW,
		M:                index.DefaultM,
		M0:               2 * index.DefaultM,
		EfConstruction:   index.DefaultEfConstruction,
		EfSearch:         index.DefaultEfSearch,
		Seed:             1,
		Quantization:     "none",
		MetadataEnabled:  true,
		CleanupThreshold: index.DefaultCleanupThreshold,
	}
}

// normalize fills defaults and resolves string knobs to typed ones.
func (c Config) normalize() (Config, metric.Kind, quant.Mode, index.Params, error) {
	if c.Dimensions < 1 || c.Dimensions > MaxDimensions {
		return c, 0, 0, index.Params{}, fmt.Errorf("%w: dimensions must be in [1, %d], got %d",
			ErrInvalidConfig, MaxDimensions, c.Dimensions)
	}

	if c.Metric == "" {
		c.Metric = "l2"
	}
	kind, err := metric.ParseKind(c.Metric)
	if err != nil {
		return c, 0, 0, index.Params{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if kind == metric.Hamming {
		return c, 0, 0, index.Params{}, fmt.Errorf("%w: hamming is reserved for quantized search", ErrInvalidConfig)
	}

	mode, err := quant.ParseMode(c.Quantization)
	if err != nil {
		return c, 0, 0, index.Params{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.IndexType == "" {
		c.IndexType = IndexHNSW
	}
	if c.IndexType != IndexHNSW && c.IndexType != IndexFlat {
		return c, 0, 0, index.Params{}, fmt.Errorf("%w: unknown index type %q", ErrInvalidConfig, c.IndexType)
	}

	params := index.DefaultParams()
	if c.M != 0 {
		params.M = c.M
	}
	if c.M0 != 0 {
		params.M0 = c.M0
	} else if c.M != 0 {
		params.M0 = 2 * c.M
	}
	if c.EfConstruction != 0 {
		params.EfConstruction = c.EfConstruction
	}
	if c.EfSearch != 0 {
		params.EfSearch = c.EfSearch
	}
	if c.Seed != 0 {
		params.Seed = c.Seed
	}
	if c.CleanupThreshold != 0 {
		params.CleanupThreshold = c.CleanupThreshold
	}
	if c.IndexType == IndexHNSW {
		if err := params.Validate(); err != nil {
			return c, 0, 0, index.Params{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return c, kind, mode, params, nil
}

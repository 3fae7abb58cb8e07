// Package edgevec is an embedded approximate-nearest-neighbor vector
// database for constrained environments. It bundles an HNSW or flat
// index, optional scalar and binary quantization, a validated metadata
// store with a filter query language, and a versioned binary snapshot
// format.
//
// The concurrency contract is single-writer, multi-reader: searches
// may run concurrently with each other, never with mutation.
package edgevec

import (
	"fmt"

	"github.com/edgevec/edgevec/pkg/filter"
	"github.com/edgevec/edgevec/pkg/index"
	"github.com/edgevec/edgevec/pkg/meta"
	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/persist"
	"github.com/edgevec/edgevec/pkg/quant"
	"github.com/edgevec/edgevec/pkg/search"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// Result is one search hit: the vector id and its metric distance
// (smaller is closer).
type Result = index.Result

// Match is a filtered search hit with optional metadata attached.
type Match = search.Match

// MemoryPressure reports the index's memory footprint against its
// configured soft limit.
type MemoryPressure struct {
	CurrentBytes uint64
	LimitBytes   uint64
	// Ratio is current/limit; 0 when no limit is set.
	Ratio float64
}

// Index is an embedded vector index. All mutable state lives here;
// callers hold no references into it across operations.
type Index struct {
	cfg  Config
	kind metric.Kind
	mode quant.Mode

	store *vstore.Store
	hnsw  *index.HNSW // exactly one of hnsw/flat is set
	flat  *index.Flat

	metas  *meta.Store
	engine *search.Engine

	memLimit uint64
	log      Logger
}

// New creates an empty index from config.
func New(cfg Config) (*Index, error) {
	cfg, kind, mode, params, err := cfg.normalize()
	if err != nil {
		return nil, wrapError("create", err)
	}

	store, err := vstore.New(cfg.Dimensions, mode)
	if err != nil {
		return nil, wrapError("create", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	x := &Index{
		cfg:      cfg,
		kind:     kind,
		mode:     mode,
		store:    store,
		memLimit: cfg.MemoryLimitBytes,
		log:      cfg.Logger,
	}
	if x.log == nil {
		x.log = NopLogger()
	}
	if cfg.MetadataEnabled {
		x.metas = meta.NewStore()
	}

	var searcher search.Searcher
	switch cfg.IndexType {
	case IndexFlat:
		x.flat, err = index.NewFlat(store, kind)
		searcher = x.flat
	default:
		x.hnsw, err = index.NewHNSW(store, kind, params)
		searcher = x.hnsw
	}
	if err != nil {
		return nil, wrapError("create", err)
	}

	engineMetas := x.metas
	if engineMetas == nil {
		engineMetas = meta.NewStore()
	}
	x.engine, err = search.NewEngine(searcher, engineMetas, kind)
	if err != nil {
		return nil, wrapError("create", err)
	}

	x.log.Debug("index created",
		"dimensions", cfg.Dimensions, "metric", kind.String(),
		"type", string(cfg.IndexType), "quantization", mode.String())
	return x, nil
}

// Config returns the index configuration.
func (x *Index) Config() Config { return x.cfg }

// Count returns the number of live vectors.
func (x *Index) Count() int {
	if x.flat != nil {
		return x.flat.Count()
	}
	return x.hnsw.Count()
}

// Insert adds a vector and returns its id. Ids are assigned
// monotonically in insertion order and never reused; compaction remaps
// them densely.
func (x *Index) Insert(vec []float32) (uint64, error) {
	if !x.CanInsert() {
		p := x.MemoryPressure()
		return 0, wrapError("insert", fmt.Errorf("%w: %d of %d bytes",
			ErrCapacityExceeded, p.CurrentBytes, p.LimitBytes))
	}

	var id uint64
	var err error
	if x.flat != nil {
		id, err = x.flat.Insert(vec)
	} else {
		id, err = x.hnsw.Insert(vec)
	}
	if err != nil {
		return 0, wrapError("insert", err)
	}
	return id, nil
}

// InsertWithMetadata adds a vector with a validated metadata record.
// Metadata validation runs before the vector is stored, so a rejected
// record leaves the index unchanged.
func (x *Index) InsertWithMetadata(vec []float32, metadata map[string]meta.Value) (uint64, error) {
	if x.metas == nil {
		return 0, wrapError("insert", ErrMetadataDisabled)
	}
	rec, err := meta.NewRecord(metadata)
	if err != nil {
		return 0, wrapError("insert", err)
	}
	id, err := x.Insert(vec)
	if err != nil {
		return 0, err
	}
	x.metas.Set(int(id), rec)
	return id, nil
}

// Delete tombstones a vector and eagerly drops its metadata; storage
// is reclaimed by Compact. Returns false for unknown or
// already-deleted ids.
func (x *Index) Delete(id uint64) bool {
	var ok bool
	if x.flat != nil {
		ok = x.flat.Delete(id)
	} else {
		ok = x.hnsw.Delete(id)
	}
	if ok && x.metas != nil {
		x.metas.Delete(int(id))
	}
	return ok
}

// NeedsCompaction reports whether the deleted fraction has crossed the
// cleanup threshold.
func (x *Index) NeedsCompaction() bool {
	if x.flat != nil {
		return x.flat.NeedsCompaction()
	}
	return x.hnsw.NeedsCompaction()
}

// Compact removes tombstoned vectors, remapping surviving ids densely
// and re-keying metadata the same way. A no-op on a clean index.
func (x *Index) Compact() {
	var newToOld []int
	if x.flat != nil {
		newToOld = x.flat.Compact()
	} else {
		newToOld = x.hnsw.Compact()
	}
	if x.metas != nil {
		x.metas.Remap(newToOld)
	}
	x.log.Debug("compacted", "live", len(newToOld))
}

// Search returns the top-k nearest live vectors by the configured
// metric. An empty index returns empty results.
func (x *Index) Search(query []float32, k int) ([]Result, error) {
	if err := vstore.Validate(query, x.store.Dim()); err != nil {
		return nil, wrapError("search", err)
	}
	if x.flat != nil {
		return x.flat.Search(query, k), nil
	}
	return x.hnsw.Search(query, k), nil
}

// SearchBQ runs the quantized-only search: Hamming distance over the
// binary shadow. Scores are differing-bit counts.
func (x *Index) SearchBQ(query []float32, k int) ([]Result, error) {
	var res []Result
	var err error
	if x.flat != nil {
		res, err = x.flat.SearchBQ(query, k)
	} else {
		res, err = x.hnsw.SearchBQ(query, k)
	}
	if err != nil {
		return nil, wrapError("search_bq", err)
	}
	return res, nil
}

// SearchBQRescored runs the Hamming first pass over k*factor
// candidates, then rescores against the float vectors with the
// configured metric.
func (x *Index) SearchBQRescored(query []float32, k, rescoreFactor int) ([]Result, error) {
	var res []Result
	var err error
	if x.flat != nil {
		res, err = x.flat.SearchBQRescored(query, k, rescoreFactor)
	} else {
		res, err = x.hnsw.SearchBQRescored(query, k, rescoreFactor)
	}
	if err != nil {
		return nil, wrapError("search_bq_rescored", err)
	}
	return res, nil
}

// SearchFiltered runs a metadata-filtered search with an explicit
// strategy ("auto", "pre", "post"). Results carry no metadata.
func (x *Index) SearchFiltered(query []float32, k int, filterSrc string, strategy string) ([]Match, error) {
	strat, err := search.ParseStrategy(strategy)
	if err != nil {
		return nil, wrapError("search_filtered", err)
	}
	res, err := x.engine.Search(query, k, filterSrc, strat, false)
	if err != nil {
		return nil, wrapError("search_filtered", err)
	}
	return res, nil
}

// SearchFilteredExpr is SearchFiltered with a pre-compiled filter AST;
// it cannot fail on the filter.
func (x *Index) SearchFilteredExpr(query []float32, k int, expr *filter.Expr, strategy string) ([]Match, error) {
	strat, err := search.ParseStrategy(strategy)
	if err != nil {
		return nil, wrapError("search_filtered", err)
	}
	res, err := x.engine.SearchExpr(query, k, expr, strat, false)
	if err != nil {
		return nil, wrapError("search_filtered", err)
	}
	return res, nil
}

// HybridOptions configure SearchHybrid.
type HybridOptions struct {
	// Filter is an optional metadata filter expression; empty means
	// unfiltered.
	Filter string
	// Strategy selects the filtering strategy; empty means auto.
	Strategy string
	// IncludeMetadata attaches each hit's metadata record.
	IncludeMetadata bool
}

// SearchHybrid composes vector search with optional metadata
// filtering in one call.
func (x *Index) SearchHybrid(query []float32, k int, opts HybridOptions) ([]Match, error) {
	if opts.Filter == "" {
		results, err := x.Search(query, k)
		if err != nil {
			return nil, err
		}
		out := make([]Match, len(results))
		for i, r := range results {
			out[i] = Match{ID: r.ID, Score: r.Score}
			if opts.IncludeMetadata && x.metas != nil {
				out[i].Metadata = x.metas.Get(int(r.ID)).Map()
			}
		}
		return out, nil
	}

	strat, err := search.ParseStrategy(opts.Strategy)
	if err != nil {
		return nil, wrapError("search_hybrid", err)
	}
	res, err := x.engine.Search(query, k, opts.Filter, strat, opts.IncludeMetadata)
	if err != nil {
		return nil, wrapError("search_hybrid", err)
	}
	return res, nil
}

// SearchWithFilter is the convenience form: auto strategy, metadata
// included in results.
func (x *Index) SearchWithFilter(query []float32, filterSrc string, k int) ([]Match, error) {
	res, err := x.engine.Search(query, k, filterSrc, search.StrategyAuto, true)
	if err != nil {
		return nil, wrapError("search_with_filter", err)
	}
	return res, nil
}

// GetMetadata returns a copy of a vector's metadata, or nil if the
// vector has none. Unknown or deleted ids return ErrNotFound.
func (x *Index) GetMetadata(id uint64) (map[string]meta.Value, error) {
	if x.metas == nil {
		return nil, wrapError("get_metadata", ErrMetadataDisabled)
	}
	if !x.isLive(id) {
		return nil, wrapError("get_metadata", ErrNotFound)
	}
	return x.metas.Get(int(id)).Map(), nil
}

// SetMetadata replaces a vector's metadata record.
func (x *Index) SetMetadata(id uint64, metadata map[string]meta.Value) error {
	if x.metas == nil {
		return wrapError("set_metadata", ErrMetadataDisabled)
	}
	if !x.isLive(id) {
		return wrapError("set_metadata", ErrNotFound)
	}
	rec, err := meta.NewRecord(metadata)
	if err != nil {
		return wrapError("set_metadata", err)
	}
	x.metas.Set(int(id), rec)
	return nil
}

func (x *Index) isLive(id uint64) bool {
	if id >= uint64(x.store.Count()) {
		return false
	}
	if x.flat != nil {
		return !x.flat.IsDeleted(id)
	}
	return !x.hnsw.IsDeleted(id)
}

// MemoryPressure reports current usage against the soft limit.
func (x *Index) MemoryPressure() MemoryPressure {
	current := x.store.MemoryBytes()
	if x.metas != nil {
		current += x.metas.MemoryBytes()
	}
	if x.hnsw != nil {
		current += uint64(len(x.hnsw.RawNodes())) * index.NodeSize
		current += uint64(len(x.hnsw.RawPool())) * 8
	}

	p := MemoryPressure{CurrentBytes: current, LimitBytes: x.memLimit}
	if x.memLimit > 0 {
		p.Ratio = float64(current) / float64(x.memLimit)
	}
	return p
}

// SetMemoryLimit adjusts the soft memory ceiling; zero disables the
// gate.
func (x *Index) SetMemoryLimit(limitBytes uint64) {
	x.memLimit = limitBytes
}

// CanInsert reports whether the memory-pressure gate admits another
// insert.
func (x *Index) CanInsert() bool {
	if x.memLimit == 0 {
		return true
	}
	return x.MemoryPressure().CurrentBytes < x.memLimit
}

// Stats returns index shape statistics.
func (x *Index) Stats() map[string]interface{} {
	if x.flat != nil {
		return x.flat.Stats()
	}
	return x.hnsw.Stats()
}

// Save serializes the index to a self-contained snapshot.
func (x *Index) Save() []byte {
	if x.flat != nil {
		return persist.SaveFlat(x.flat, x.metas)
	}
	return persist.SaveHNSW(x.hnsw, x.metas)
}

// Load reconstructs an index from a snapshot produced by Save. The
// buffer may start at any alignment.
func Load(data []byte) (*Index, error) {
	kind, err := persist.LoadedKind(data)
	if err != nil {
		return nil, wrapError("load", err)
	}

	x := &Index{log: NopLogger()}
	var metas *meta.Store
	var searcher search.Searcher

	switch kind {
	case persist.MagicFlat:
		x.flat, metas, err = persist.LoadFlat(data)
		if err != nil {
			return nil, wrapError("load", err)
		}
		x.store = x.flat.Store()
		x.kind = x.flat.Metric()
		x.cfg = Config{
			Dimensions:      x.store.Dim(),
			Metric:          x.kind.String(),
			IndexType:       IndexFlat,
			Quantization:    x.store.Mode().String(),
			MetadataEnabled: metas != nil,
		}
		searcher = x.flat
	default:
		x.hnsw, metas, err = persist.LoadHNSW(data)
		if err != nil {
			return nil, wrapError("load", err)
		}
		x.store = x.hnsw.Store()
		x.kind = x.hnsw.Metric()
		params := x.hnsw.Params()
		x.cfg = Config{
			Dimensions:       x.store.Dim(),
			Metric:           x.kind.String(),
			IndexType:        IndexHNSW,
			M:                params.M,
			M0:               params.M0,
			EfConstruction:   params.EfConstruction,
			EfSearch:         params.EfSearch,
			Quantization:     x.store.Mode().String(),
			MetadataEnabled:  metas != nil,
			CleanupThreshold: params.CleanupThreshold,
		}
		searcher = x.hnsw
	}

	x.mode = x.store.Mode()
	x.metas = metas

	engineMetas := metas
	if engineMetas == nil {
		engineMetas = meta.NewStore()
	}
	x.engine, err = search.NewEngine(searcher, engineMetas, x.kind)
	if err != nil {
		return nil, wrapError("load", err)
	}
	return x, nil
}

// ParseFilter compiles a filter string to an AST; callable without an
// index.
func ParseFilter(src string) (*filter.Expr, error) {
	return filter.Parse(src)
}

// TryParseFilter is ParseFilter returning nil on any failure.
func TryParseFilter(src string) *filter.Expr {
	return filter.TryParse(src)
}

// ValidateFilter parses and semantically checks a filter string.
func ValidateFilter(src string) filter.ValidationResult {
	return filter.Validate(src)
}

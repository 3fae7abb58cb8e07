// Package search composes vector search with metadata filtering via
// three strategies: pre-filter (materialize the allowed set, exact
// scan over it), post-filter (oversample, then sieve), and an adaptive
// mode that picks per query from the selectivity estimate.
package search

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/edgevec/edgevec/pkg/filter"
	"github.com/edgevec/edgevec/pkg/index"
	"github.com/edgevec/edgevec/pkg/meta"
	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/vstore"
)

// Strategy selects how filtering combines with vector search.
type Strategy string

const (
	// StrategyAuto picks pre or post filtering from the selectivity
	// estimate.
	StrategyAuto Strategy = "auto"
	// StrategyPre materializes the matching id set and scans it
	// exactly. The only mode with a recall floor: HNSW recall is not
	// preserved under arbitrary filters, an exact scan over the
	// allowed set is.
	StrategyPre Strategy = "pre"
	// StrategyPost oversamples the unfiltered search and sieves.
	StrategyPost Strategy = "post"
)

// ParseStrategy maps a strategy keyword.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "auto", "hybrid":
		return StrategyAuto, nil
	case "pre":
		return StrategyPre, nil
	case "post":
		return StrategyPost, nil
	default:
		return "", fmt.Errorf("unknown search strategy %q", s)
	}
}

// preFilterCutoff is the selectivity below which auto picks the
// pre-filter path.
const preFilterCutoff = 0.1

// maxOverfetchFactor caps the post-filter oversampling multiplier.
const maxOverfetchFactor = 10

// filterCacheSize bounds the compiled-filter LRU.
const filterCacheSize = 128

// Searcher is the index surface the engine needs; both *index.HNSW
// and *index.Flat satisfy it.
type Searcher interface {
	SearchFilter(q []float32, k int, allow func(uint64) bool) []index.Result
	Count() int
	IsDeleted(id uint64) bool
	Store() *vstore.Store
}

// Match is one filtered search hit. Metadata is attached when the
// caller asks for it.
type Match struct {
	ID       uint64
	Score    float32
	Metadata map[string]meta.Value
}

// Engine runs filtered searches against one index and its metadata.
type Engine struct {
	idx   Searcher
	metas *meta.Store
	dist  metric.DistFunc
	cache *lru.Cache[string, *filter.Expr]
}

// NewEngine builds a filtered-search engine. The metadata store may be
// empty but not nil.
func NewEngine(idx Searcher, metas *meta.Store, kind metric.Kind) (*Engine, error) {
	dist, err := metric.Resolve(kind)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *filter.Expr](filterCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{idx: idx, metas: metas, dist: dist, cache: cache}, nil
}

// Compile parses a filter string through the LRU cache. Identical
// filter strings across queries share one AST.
func (e *Engine) Compile(src string) (*filter.Expr, error) {
	if expr, ok := e.cache.Get(src); ok {
		return expr, nil
	}
	expr, err := filter.Parse(src)
	if err != nil {
		return nil, err
	}
	e.cache.Add(src, expr)
	return expr, nil
}

// Search runs a filtered query. includeMeta attaches each hit's
// metadata record to the result.
func (e *Engine) Search(q []float32, k int, src string, strategy Strategy, includeMeta bool) ([]Match, error) {
	expr, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return e.SearchExpr(q, k, expr, strategy, includeMeta)
}

// SearchExpr runs a filtered query with a pre-compiled AST. Filter
// evaluation cannot fail here: parse and validation happened earlier.
func (e *Engine) SearchExpr(q []float32, k int, expr *filter.Expr, strategy Strategy, includeMeta bool) ([]Match, error) {
	if err := vstore.Validate(q, e.idx.Store().Dim()); err != nil {
		return nil, err
	}
	if k <= 0 || e.idx.Count() == 0 {
		return []Match{}, nil
	}

	if strategy == StrategyAuto {
		if filter.EstimateSelectivity(expr) < preFilterCutoff {
			strategy = StrategyPre
		} else {
			strategy = StrategyPost
		}
	}

	var results []index.Result
	switch strategy {
	case StrategyPre:
		results = e.preFilter(q, k, expr)
	case StrategyPost:
		results = e.postFilter(q, k, expr)
	default:
		return nil, fmt.Errorf("unknown search strategy %q", strategy)
	}

	out := make([]Match, len(results))
	for i, r := range results {
		out[i] = Match{ID: r.ID, Score: r.Score}
		if includeMeta {
			out[i].Metadata = e.metas.Get(int(r.ID)).Map()
		}
	}
	return out, nil
}

// preFilter materializes the set of live ids whose metadata matches,
// then runs an exact top-k scan over that set. Cost is one filter
// evaluation per slot plus one distance per member; best when the
// filter is highly selective.
func (e *Engine) preFilter(q []float32, k int, expr *filter.Expr) []index.Result {
	allowed := roaring64.New()
	slots := e.idx.Store().Count()
	for slot := 0; slot < slots; slot++ {
		if e.idx.IsDeleted(uint64(slot)) {
			continue
		}
		if filter.Evaluate(expr, e.metas.Get(slot)) {
			allowed.Add(uint64(slot))
		}
	}
	if allowed.IsEmpty() {
		return []index.Result{}
	}

	store := e.idx.Store()
	var best resultHeap
	it := allowed.Iterator()
	for it.HasNext() {
		id := it.Next()
		d := e.dist(q, store.Float(int(id)))
		if best.Len() < k {
			heap.Push(&best, index.Result{ID: id, Score: d})
		} else if d < best[0].Score {
			heap.Pop(&best)
			heap.Push(&best, index.Result{ID: id, Score: d})
		}
	}

	out := []index.Result(best)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// postFilter oversamples the unfiltered search by ceil(1/selectivity),
// capped, then sieves candidates through the filter. The filter runs
// only on returned candidates, outside the traversal loop.
func (e *Engine) postFilter(q []float32, k int, expr *filter.Expr) []index.Result {
	est := filter.EstimateSelectivity(expr)
	factor := maxOverfetchFactor
	if est > 0 {
		factor = int(math.Ceil(1 / est))
		if factor < 1 {
			factor = 1
		}
		if factor > maxOverfetchFactor {
			factor = maxOverfetchFactor
		}
	}

	candidates := e.idx.SearchFilter(q, k*factor, nil)
	out := make([]index.Result, 0, k)
	for _, c := range candidates {
		if !filter.Evaluate(expr, e.metas.Get(int(c.ID))) {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}

// resultHeap is a max heap on score so the worst of the kept k is
// evictable.
type resultHeap []index.Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score > h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(index.Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package persist

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/edgevec/edgevec/pkg/index"
	"github.com/edgevec/edgevec/pkg/meta"
	"github.com/edgevec/edgevec/pkg/metric"
	"github.com/edgevec/edgevec/pkg/quant"
	"github.com/edgevec/edgevec/pkg/vstore"
)

func buildHNSW(t *testing.T, n, dim int, mode quant.Mode) (*index.HNSW, *meta.Store, [][]float32) {
	t.Helper()
	store, err := vstore.New(dim, mode)
	if err != nil {
		t.Fatal(err)
	}
	params := index.DefaultParams()
	params.Seed = 7
	h, err := index.NewHNSW(store, metric.L2Squared, params)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(71))
	vecs := make([][]float32, n)
	metaStore := meta.NewStore()
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
		if _, err := h.Insert(v); err != nil {
			t.Fatal(err)
		}
		// Metadata on half the vectors, per the spec scenario.
		if i%2 == 0 {
			rec := &meta.Record{}
			if err := rec.Set("tag", meta.String("a")); err != nil {
				t.Fatal(err)
			}
			if err := rec.Set("n", meta.Int(int64(i))); err != nil {
				t.Fatal(err)
			}
			metaStore.Set(i, rec)
		}
	}
	return h, metaStore, vecs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h, metaStore, vecs := buildHNSW(t, 50, 16, quant.SQ8|quant.Binary)
	h.Delete(3)
	h.Delete(17)

	data := SaveHNSW(h, metaStore)

	h2, meta2, err := LoadHNSW(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if h2.Count() != h.Count() {
		t.Errorf("count %d, want %d", h2.Count(), h.Count())
	}
	if h2.DeletedCount() != 2 {
		t.Errorf("deleted %d, want 2", h2.DeletedCount())
	}
	if !h2.IsDeleted(3) || !h2.IsDeleted(17) {
		t.Error("tombstones lost")
	}
	if h2.Store().Dim() != 16 {
		t.Errorf("dim %d", h2.Store().Dim())
	}
	if h2.Store().Mode() != quant.SQ8|quant.Binary {
		t.Errorf("mode %v", h2.Store().Mode())
	}

	// Sample queries must agree between the original and the loaded
	// index: identical graph, identical traversal.
	for trial := 0; trial < 5; trial++ {
		q := vecs[trial*7]
		a := h.Search(q, 10)
		b := h2.Search(q, 10)
		if len(a) != len(b) {
			t.Fatalf("result lengths differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("result %d differs: %+v vs %+v", i, a[i], b[i])
			}
		}
	}

	// Metadata round-trips with types and insertion order intact.
	for i := 0; i < 50; i++ {
		orig := metaStore.Get(i)
		got := meta2.Get(i)
		if (orig == nil) != (got == nil) {
			t.Fatalf("slot %d: presence differs", i)
		}
		if orig == nil {
			continue
		}
		v, ok := got.Get("tag")
		if !ok || v.Str() != "a" {
			t.Errorf("slot %d: tag = %+v", i, v)
		}
		nv, ok := got.Get("n")
		if !ok || nv.IntVal() != int64(i) {
			t.Errorf("slot %d: n = %+v", i, nv)
		}
	}
}

func TestSaveDeterministic(t *testing.T) {
	// save -> load -> save must be byte-identical: the format carries
	// no timestamps or other nondeterminism.
	h, metaStore, _ := buildHNSW(t, 30, 8, quant.Binary)

	data1 := SaveHNSW(h, metaStore)
	h2, meta2, err := LoadHNSW(data1)
	if err != nil {
		t.Fatal(err)
	}
	data2 := SaveHNSW(h2, meta2)

	if !bytes.Equal(data1, data2) {
		t.Error("save -> load -> save is not byte-identical")
	}
}

func TestCorruptionDetected(t *testing.T) {
	// Spec scenario 4: corrupt one byte in the middle of the vector
	// section, load must fail with the corruption error; restore the
	// byte and load must succeed.
	h, metaStore, _ := buildHNSW(t, 50, 16, quant.SQ8)

	data := SaveHNSW(h, metaStore)
	// The payload opens with the tombstone section (u32 word count plus
	// one u64 word for 50 slots), then the float section's u64 length.
	vecStart := HeaderSize + 4 + 8 + 8
	mid := vecStart + 50*16*4/2
	orig := data[mid]
	data[mid] ^= 0xFF

	if _, _, err := LoadHNSW(data); !errors.Is(err, ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}

	data[mid] = orig
	h2, _, err := LoadHNSW(data)
	if err != nil {
		t.Fatalf("restored snapshot failed to load: %v", err)
	}
	if h2.Count() != h.Count() {
		t.Errorf("count %d after restore, want %d", h2.Count(), h.Count())
	}
}

func TestTruncationDetected(t *testing.T) {
	h, metaStore, _ := buildHNSW(t, 20, 8, quant.None)
	data := SaveHNSW(h, metaStore)

	for _, cut := range []int{10, HeaderSize - 1, HeaderSize + 5, len(data) / 2} {
		_, _, err := LoadHNSW(data[:cut])
		if err == nil {
			t.Errorf("truncation at %d not detected", cut)
			continue
		}
		// A cut body usually fails the CRC first; a cut header is
		// reported as truncation. Either way the load must error.
		if !errors.Is(err, ErrTruncatedData) && !errors.Is(err, ErrCorrupted) {
			t.Errorf("truncation at %d: unexpected error %v", cut, err)
		}
	}
}

func TestInvalidMagic(t *testing.T) {
	h, _, _ := buildHNSW(t, 5, 4, quant.None)
	data := SaveHNSW(h, nil)
	data[0] = 'X'
	// Header corruption also breaks nothing else: magic is checked
	// before the CRC.
	if _, _, err := LoadHNSW(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestWrongIndexType(t *testing.T) {
	h, _, _ := buildHNSW(t, 5, 4, quant.None)
	data := SaveHNSW(h, nil)
	if _, _, err := LoadFlat(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("loading HNSW snapshot as flat: got %v", err)
	}
}

func TestIncompatibleVersion(t *testing.T) {
	h, _, _ := buildHNSW(t, 5, 4, quant.None)
	data := SaveHNSW(h, nil)
	data[4] = 99 // version field follows the magic
	if _, _, err := LoadHNSW(data); !errors.Is(err, ErrIncompatibleVersion) {
		t.Errorf("expected ErrIncompatibleVersion, got %v", err)
	}
}

func TestLoadFromUnalignedBuffer(t *testing.T) {
	// Spec scenario 6: a snapshot starting at an odd offset inside a
	// larger allocation must load correctly or fail cleanly — never
	// crash, never read out of bounds.
	h, metaStore, _ := buildHNSW(t, 25, 8, quant.None)
	data := SaveHNSW(h, metaStore)

	for _, offset := range []int{1, 3, 7} {
		backing := make([]byte, offset+len(data))
		copy(backing[offset:], data)
		shifted := backing[offset:]

		h2, _, err := LoadHNSW(shifted)
		if err != nil {
			if !errors.Is(err, ErrUnalignedBuffer) {
				t.Errorf("offset %d: unexpected error %v", offset, err)
			}
			continue
		}
		if h2.Count() != h.Count() {
			t.Errorf("offset %d: count %d, want %d", offset, h2.Count(), h.Count())
		}
	}
}

func TestFlatRoundTrip(t *testing.T) {
	store, err := vstore.New(4, quant.Binary)
	if err != nil {
		t.Fatal(err)
	}
	f, err := index.NewFlat(store, metric.Cosine)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, err := f.Insert([]float32{float32(i + 1), 1, 2, 3}); err != nil {
			t.Fatal(err)
		}
	}
	f.Delete(4)

	data := SaveFlat(f, nil)

	if kind, err := LoadedKind(data); err != nil || kind != MagicFlat {
		t.Errorf("LoadedKind = %v, %v", kind, err)
	}

	f2, metaStore, err := LoadFlat(data)
	if err != nil {
		t.Fatal(err)
	}
	if metaStore != nil {
		t.Error("no metadata was saved, none should load")
	}
	if f2.Count() != 9 || !f2.IsDeleted(4) {
		t.Errorf("count %d, deleted(4)=%v", f2.Count(), f2.IsDeleted(4))
	}

	a := f.Search([]float32{2, 1, 2, 3}, 3)
	b := f2.Search([]float32{2, 1, 2, 3}, 3)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEmptyIndexRoundTrip(t *testing.T) {
	store, _ := vstore.New(4, quant.None)
	h, err := index.NewHNSW(store, metric.L2Squared, index.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	data := SaveHNSW(h, nil)
	h2, _, err := LoadHNSW(data)
	if err != nil {
		t.Fatalf("empty index round trip: %v", err)
	}
	if h2.Count() != 0 {
		t.Errorf("count %d", h2.Count())
	}
	if got := h2.Search([]float32{1, 2, 3, 4}, 5); len(got) != 0 {
		t.Errorf("search on loaded empty index returned %d results", len(got))
	}
}

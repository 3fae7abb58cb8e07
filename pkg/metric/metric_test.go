package metric

import (
	"math"
	"math/rand"
	"testing"
)

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{L2Squared, Dot, Cosine, Hamming} {
		parsed, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.String(), err)
		}
		if parsed != k {
			t.Errorf("round trip of %s: got %s", k, parsed)
		}
	}

	if _, err := ParseKind("chebyshev"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestResolveHammingRejected(t *testing.T) {
	if _, err := Resolve(Hamming); err == nil {
		t.Error("Hamming should have no float kernel")
	}
}

func TestL2SquaredBasic(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}

	fn, err := Resolve(L2Squared)
	if err != nil {
		t.Fatal(err)
	}

	got := fn(a, b)
	if got != 64 {
		t.Errorf("expected 64, got %v", got)
	}
	if fn(a, a) != 0 {
		t.Errorf("self distance should be 0, got %v", fn(a, a))
	}
}

func TestSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomVec(rng, 128)
	b := randomVec(rng, 128)

	if d1, d2 := l2Squared(a, b), l2Squared(b, a); d1 != d2 {
		t.Errorf("l2 not symmetric: %v vs %v", d1, d2)
	}
	if d1, d2 := negDot(a, b), negDot(b, a); d1 != d2 {
		t.Errorf("dot not symmetric: %v vs %v", d1, d2)
	}
}

func TestCosineSelfSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 10; i++ {
		v := randomVec(rng, 64)
		sim := CosineSimilarity(v, v)
		if math.Abs(float64(sim)-1.0) > 1e-5 {
			t.Errorf("cosine(v, v) = %v, want 1.0", sim)
		}
	}
}

func TestCosineZeroNormGuard(t *testing.T) {
	zero := make([]float32, 16)
	v := randomVec(rand.New(rand.NewSource(3)), 16)

	if d := cosineDistance(zero, v); d != 1.0 {
		t.Errorf("zero-norm distance should be 1.0, got %v", d)
	}
	if sim := CosineSimilarity(zero, v); sim != 0 {
		t.Errorf("zero-norm similarity should be 0, got %v", sim)
	}
}

// Accelerated and scalar kernels must agree: exactly for integer-valued
// inputs, within relative tolerance otherwise.
func TestKernelsAgreeWithScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	t.Run("integer_inputs_exact", func(t *testing.T) {
		for trial := 0; trial < 20; trial++ {
			dim := 1 + rng.Intn(256)
			a := make([]float32, dim)
			b := make([]float32, dim)
			for i := range a {
				a[i] = float32(rng.Intn(16))
				b[i] = float32(rng.Intn(16))
			}
			if got, want := negDot(a, b), ScalarNegDot(a, b); got != want {
				t.Fatalf("dim %d: dot %v != scalar %v", dim, got, want)
			}
			if got, want := l2Squared(a, b), ScalarL2Squared(a, b); got != want {
				t.Fatalf("dim %d: l2 %v != scalar %v", dim, got, want)
			}
		}
	})

	t.Run("float_inputs_tolerance", func(t *testing.T) {
		for trial := 0; trial < 50; trial++ {
			dim := 1 + rng.Intn(512)
			a := randomVec(rng, dim)
			b := randomVec(rng, dim)

			checkClose(t, "l2", l2Squared(a, b), ScalarL2Squared(a, b))
			checkClose(t, "dot", negDot(a, b), ScalarNegDot(a, b))
			checkClose(t, "cosine", cosineDistance(a, b), ScalarCosineDistance(a, b))
		}
	})
}

func TestFiniteOutputs(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 20; trial++ {
		a := randomVec(rng, 300)
		b := randomVec(rng, 300)
		for name, fn := range map[string]DistFunc{
			"l2": l2Squared, "dot": negDot, "cosine": cosineDistance,
		} {
			d := fn(a, b)
			if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
				t.Errorf("%s produced non-finite %v", name, d)
			}
		}
	}
}

func TestHammingWords(t *testing.T) {
	tests := []struct {
		a, b []uint64
		want int
	}{
		{[]uint64{0}, []uint64{0}, 0},
		{[]uint64{0xFF}, []uint64{0}, 8},
		{[]uint64{^uint64(0)}, []uint64{0}, 64},
		{[]uint64{1, 2, 4, 8, 16}, []uint64{0, 0, 0, 0, 0}, 5},
	}
	for _, tt := range tests {
		if got := HammingWords(tt.a, tt.b); got != tt.want {
			t.Errorf("HammingWords(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHammingSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := make([]uint64, 12)
	b := make([]uint64, 12)
	for i := range a {
		a[i] = rng.Uint64()
		b[i] = rng.Uint64()
	}
	if HammingWords(a, b) != HammingWords(b, a) {
		t.Error("hamming not symmetric")
	}
	if HammingWords(a, a) != 0 {
		t.Error("hamming self distance not zero")
	}
}

func checkClose(t *testing.T, name string, got, want float32) {
	t.Helper()
	diff := math.Abs(float64(got) - float64(want))
	scale := math.Max(math.Abs(float64(want)), 1.0)
	if diff/scale > 1e-5 {
		t.Errorf("%s: %v vs scalar %v (rel %v)", name, got, want, diff/scale)
	}
}

func randomVec(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

package meta

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"a", "tag", "snake_case_key", "Key9", "_leading"}
	for _, k := range valid {
		if err := ValidateKey(k); err != nil {
			t.Errorf("key %q should be valid: %v", k, err)
		}
	}

	invalid := []string{
		"",
		"has space",
		"has-dash",
		"nul\x00byte",
		"café",
		"emoji\U0001F600",
		strings.Repeat("k", MaxKeyLen+1),
	}
	for _, k := range invalid {
		if err := ValidateKey(k); err == nil {
			t.Errorf("key %q should be invalid", k)
		}
	}
}

func TestValidateValue(t *testing.T) {
	if err := ValidateValue(String(strings.Repeat("x", MaxStringLen))); err != nil {
		t.Errorf("max-size string should pass: %v", err)
	}
	if err := ValidateValue(String(strings.Repeat("x", MaxStringLen+1))); err == nil {
		t.Error("oversized string should fail")
	}
	if err := ValidateValue(Float(math.NaN())); err == nil {
		t.Error("NaN float should fail")
	}
	if err := ValidateValue(Float(math.Inf(-1))); err == nil {
		t.Error("infinite float should fail")
	}
	if err := ValidateValue(StringArray(make([]string, MaxArrayElems+1))); err == nil {
		t.Error("oversized array should fail")
	}
}

func TestNumericEquality(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(5), Int(5), true},
		{Int(5), Float(5.0), true},
		{Float(5.0), Int(5), true},
		{Int(5), Float(5.5), false},
		{Float(2.5), Float(2.5), true},
		{Int(9007199254740993), Float(9007199254740992.0), false},
		{String("5"), Int(5), false},
		{Bool(true), Int(1), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("Equal(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Equal(tt.a); got != tt.want {
			t.Errorf("Equal not symmetric for %+v, %+v", tt.a, tt.b)
		}
	}
}

func TestRecordInsertionOrder(t *testing.T) {
	r := &Record{}
	keys := []string{"zebra", "alpha", "mid"}
	for i, k := range keys {
		if err := r.Set(k, Int(int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	r.Range(func(key string, _ Value) bool {
		seen = append(seen, key)
		return true
	})
	for i, k := range keys {
		if seen[i] != k {
			t.Errorf("position %d: got %q, want %q", i, seen[i], k)
		}
	}
}

func TestRecordOverwriteKeepsPosition(t *testing.T) {
	r := &Record{}
	_ = r.Set("a", Int(1))
	_ = r.Set("b", Int(2))
	_ = r.Set("a", Int(10))

	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	v, ok := r.Get("a")
	if !ok || v.IntVal() != 10 {
		t.Errorf("overwritten value = %+v", v)
	}
}

func TestRecordKeyLimit(t *testing.T) {
	r := &Record{}
	for i := 0; i < MaxKeysPerVector; i++ {
		if err := r.Set(keyN(i), Bool(true)); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Set("overflow", Bool(true)); !errors.Is(err, ErrTooManyKeys) {
		t.Errorf("expected ErrTooManyKeys, got %v", err)
	}
	// Overwriting an existing key is still allowed at the limit.
	if err := r.Set(keyN(0), Bool(false)); err != nil {
		t.Errorf("overwrite at limit failed: %v", err)
	}
}

func TestStoreDeleteAndRemap(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		r := &Record{}
		_ = r.Set("n", Int(int64(i)))
		s.Set(i, r)
	}

	if !s.Delete(1) {
		t.Error("delete of live slot should report true")
	}
	if s.Delete(1) {
		t.Error("double delete should report false")
	}
	if s.Get(1) != nil {
		t.Error("deleted slot should be nil")
	}

	// Compaction keeps 0, 2, 4.
	s.Remap([]int{0, 2, 4})
	if s.Len() != 3 {
		t.Fatalf("len after remap = %d, want 3", s.Len())
	}
	for newSlot, oldN := range []int64{0, 2, 4} {
		v, ok := s.Get(newSlot).Get("n")
		if !ok || v.IntVal() != oldN {
			t.Errorf("slot %d: got %+v, want n=%d", newSlot, v, oldN)
		}
	}
}

func keyN(i int) string {
	return "key_" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}

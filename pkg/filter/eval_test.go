package filter

import (
	"testing"

	"github.com/edgevec/edgevec/pkg/meta"
)

func record(t *testing.T, pairs map[string]meta.Value) *meta.Record {
	t.Helper()
	r, err := meta.NewRecord(pairs)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func evalOn(t *testing.T, src string, rec *meta.Record) bool {
	t.Helper()
	return Evaluate(mustParse(t, src), rec)
}

func TestEvalComparisons(t *testing.T) {
	rec := record(t, map[string]meta.Value{
		"price":    meta.Int(250),
		"score":    meta.Float(0.75),
		"name":     meta.String("widget"),
		"in_stock": meta.Bool(true),
	})

	tests := []struct {
		src  string
		want bool
	}{
		{`price = 250`, true},
		{`price = 251`, false},
		{`price != 251`, true},
		{`price < 300`, true},
		{`price <= 250`, true},
		{`price > 250`, false},
		{`price >= 250`, true},
		{`price = 250.0`, true}, // int/float symmetric equality
		{`score = 0.75`, true},
		{`score > 0.5`, true},
		{`name = "widget"`, true},
		{`name != "gadget"`, true},
		{`name < "zzz"`, true},
		{`in_stock = true`, true},
		{`in_stock = false`, false},
		{`name = 5`, false},      // type mismatch is false, not error
		{`price = "250"`, false}, // no string-to-number coercion
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalMissingKeyIsNull(t *testing.T) {
	rec := record(t, map[string]meta.Value{"present": meta.Int(1)})

	tests := []struct {
		src  string
		want bool
	}{
		{`missing = 1`, false},
		{`missing != 1`, false}, // NULL comparisons collapse to false
		{`missing < 5`, false},
		{`missing IS NULL`, true},
		{`missing IS NOT NULL`, false},
		{`present IS NULL`, false},
		{`present IS NOT NULL`, true},
		{`missing IN (1, 2)`, false},
		{`missing LIKE "%"`, false},
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalBetweenAndSets(t *testing.T) {
	rec := record(t, map[string]meta.Value{
		"price": meta.Int(250),
		"tag":   meta.String("gpu"),
	})

	tests := []struct {
		src  string
		want bool
	}{
		{`price BETWEEN 100 AND 500`, true},
		{`price BETWEEN 250 AND 250`, true},
		{`price BETWEEN 300 AND 500`, false},
		{`tag BETWEEN "a" AND "m"`, true},
		{`tag IN ("cpu", "gpu")`, true},
		{`tag IN ("cpu", "ram")`, false},
		{`tag NOT IN ("cpu", "ram")`, true},
		{`tag NOT IN ("gpu")`, false},
		{`price IN (100, 250.0)`, true},
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalStringOps(t *testing.T) {
	rec := record(t, map[string]meta.Value{
		"name": meta.String("hello world"),
		"num":  meta.Int(5),
	})

	tests := []struct {
		src  string
		want bool
	}{
		{`name CONTAINS "lo wo"`, true},
		{`name CONTAINS "xyz"`, false},
		{`name STARTS_WITH "hello"`, true},
		{`name STARTS_WITH "world"`, false},
		{`name ENDS_WITH "world"`, true},
		{`name LIKE "hello%"`, true},
		{`name LIKE "%world"`, true},
		{`name LIKE "h_llo world"`, true},
		{`name LIKE "h_llo"`, false},
		{`name LIKE "%"`, true},
		{`name LIKE "%o%o%"`, true},
		{`name LIKE "hello_world"`, true}, // _ matches the space
		{`num CONTAINS "5"`, false},       // string op on int is false
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalArrayOps(t *testing.T) {
	rec := record(t, map[string]meta.Value{
		"tags":   meta.StringArray([]string{"ai", "ml", "gpu"}),
		"scalar": meta.String("ai"),
	})

	tests := []struct {
		src  string
		want bool
	}{
		{`tags ANY ("ml", "xyz")`, true},
		{`tags ANY ("xyz")`, false},
		{`tags ALL ("ai", "gpu")`, true},
		{`tags ALL ("ai", "xyz")`, false},
		{`tags NONE ("xyz", "abc")`, true},
		{`tags NONE ("ml")`, false},
		{`scalar ANY ("ai")`, false}, // non-array field is false
		{`missing ANY ("ai")`, false},
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalLogical(t *testing.T) {
	rec := record(t, map[string]meta.Value{
		"a": meta.Int(1),
		"b": meta.Int(2),
	})

	tests := []struct {
		src  string
		want bool
	}{
		{`a = 1 AND b = 2`, true},
		{`a = 1 AND b = 3`, false},
		{`a = 9 OR b = 2`, true},
		{`a = 9 OR b = 9`, false},
		{`NOT a = 9`, true},
		{`NOT a = 1`, false},
		{`NOT (a = 1 AND b = 3)`, true},
		{`*`, true},
		{`@none`, false},
		{`* AND a = 1`, true},
		{`@none OR a = 1`, true},
	}
	for _, tt := range tests {
		if got := evalOn(t, tt.src, rec); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEvalNilFilterMatchesAll(t *testing.T) {
	if !Evaluate(nil, nil) {
		t.Error("nil filter should match everything")
	}
}

func TestLikeMatch(t *testing.T) {
	tests := []struct {
		s, p string
		want bool
	}{
		{"", "", true},
		{"", "%", true},
		{"", "_", false},
		{"a", "a", true},
		{"a", "%a%", true},
		{"abc", "a%c", true},
		{"abc", "a_c", true},
		{"abc", "a__c", false},
		{"aXbXc", "a%b%c", true},
		{"mississippi", "%iss%ppi", true},
		{"mississippi", "m%i%s%i", true},
		{"abc", "abc%", true},
		{"abc", "%abc", true},
		{"abc", "ab", false},
	}
	for _, tt := range tests {
		if got := likeMatch(tt.s, tt.p); got != tt.want {
			t.Errorf("likeMatch(%q, %q) = %v, want %v", tt.s, tt.p, got, tt.want)
		}
	}
}

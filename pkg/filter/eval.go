package filter

import (
	"strings"

	"github.com/edgevec/edgevec/pkg/meta"
)

// Evaluate applies a compiled filter to one metadata record. Missing
// keys behave as NULL: every comparison against them is false at the
// atom level, IS NULL is true. Type mismatches at eval time are false,
// never errors, so a pre-compiled AST cannot fail during search.
func Evaluate(e *Expr, rec *meta.Record) bool {
	if e == nil {
		return true
	}
	switch e.Op {
	case OpAnd:
		return Evaluate(e.Left, rec) && Evaluate(e.Right, rec)
	case OpOr:
		return Evaluate(e.Left, rec) || Evaluate(e.Right, rec)
	case OpNot:
		return !Evaluate(e.Left, rec)
	case OpMatchAll:
		return true
	case OpMatchNone:
		return false
	case OpIsNull:
		_, ok := rec.Get(e.Field)
		return !ok
	case OpIsNotNull:
		_, ok := rec.Get(e.Field)
		return ok
	}

	val, ok := rec.Get(e.Field)
	if !ok {
		return false
	}

	switch e.Op {
	case OpEq:
		return litEqual(*e.Value, val)
	case OpNe:
		return !litEqual(*e.Value, val)
	case OpLt, OpLe, OpGt, OpGe:
		return litCompare(*e.Value, val, e.Op)
	case OpBetween:
		return litCompare(*e.Lo, val, OpGe) && litCompare(*e.Hi, val, OpLe)
	case OpIn:
		for i := range e.List {
			if litEqual(e.List[i], val) {
				return true
			}
		}
		return false
	case OpNotIn:
		for i := range e.List {
			if litEqual(e.List[i], val) {
				return false
			}
		}
		return true
	case OpContains:
		s, ok := stringOf(val)
		return ok && strings.Contains(s, e.Value.Str)
	case OpStartsWith:
		s, ok := stringOf(val)
		return ok && strings.HasPrefix(s, e.Value.Str)
	case OpEndsWith:
		s, ok := stringOf(val)
		return ok && strings.HasSuffix(s, e.Value.Str)
	case OpLike:
		s, ok := stringOf(val)
		return ok && likeMatch(s, e.Value.Str)
	case OpAny:
		return anyListed(e.List, val)
	case OpAll:
		return allListed(e.List, val)
	case OpNone:
		if val.Kind() != meta.KindStringArray {
			return false
		}
		return !anyListed(e.List, val)
	default:
		return false
	}
}

// litEqual compares a literal to a metadata value with symmetric
// numeric coercion.
func litEqual(lit Literal, val meta.Value) bool {
	switch lit.Kind {
	case LitString:
		return val.Kind() == meta.KindString && val.Str() == lit.Str
	case LitInt:
		return val.IsNumeric() && val.Equal(meta.Int(lit.Int))
	case LitFloat:
		return val.IsNumeric() && val.Equal(meta.Float(lit.Float))
	case LitBool:
		return val.Kind() == meta.KindBool && val.BoolVal() == lit.Bool
	default:
		return false
	}
}

// litCompare orders the field value against the literal: numerics
// compare numerically, strings lexicographically, anything else is
// false. op reads as `value op literal` — e.g. OpLt means val < lit.
func litCompare(lit Literal, val meta.Value, op Op) bool {
	if lit.IsNumeric() && val.IsNumeric() {
		a, b := val.AsFloat(), lit.AsFloat()
		switch op {
		case OpLt:
			return a < b
		case OpLe:
			return a <= b
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		}
		return false
	}
	if lit.Kind == LitString && val.Kind() == meta.KindString {
		a, b := val.Str(), lit.Str
		switch op {
		case OpLt:
			return a < b
		case OpLe:
			return a <= b
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		}
	}
	return false
}

func stringOf(val meta.Value) (string, bool) {
	if val.Kind() != meta.KindString {
		return "", false
	}
	return val.Str(), true
}

// anyListed reports whether any array element equals any listed value.
func anyListed(list []Literal, val meta.Value) bool {
	if val.Kind() != meta.KindStringArray {
		return false
	}
	for _, elem := range val.Array() {
		for i := range list {
			if list[i].Kind == LitString && list[i].Str == elem {
				return true
			}
		}
	}
	return false
}

// allListed reports whether every listed value appears in the array.
func allListed(list []Literal, val meta.Value) bool {
	if val.Kind() != meta.KindStringArray {
		return false
	}
	arr := val.Array()
	for i := range list {
		if list[i].Kind != LitString {
			return false
		}
		found := false
		for _, elem := range arr {
			if elem == list[i].Str {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// likeMatch implements SQL LIKE with % (any run) and _ (one byte)
// wildcards using the standard two-pointer backtracking scan; no
// pattern compilation, no allocation.
func likeMatch(s, pattern string) bool {
	si, pi := 0, 0
	starP, starS := -1, 0
	for si < len(s) {
		if pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == s[si]) {
			si++
			pi++
		} else if pi < len(pattern) && pattern[pi] == '%' {
			starP = pi
			starS = si
			pi++
		} else if starP >= 0 {
			starS++
			si = starS
			pi = starP + 1
		} else {
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}

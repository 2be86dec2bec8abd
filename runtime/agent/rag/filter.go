package rag

import (
	"fmt"
	"regexp"
	"strings"
)

// Op enumerates filter comparison operators.
type Op string

const (
	OpEq                 Op = "eq"
	OpNe                 Op = "ne"
	OpGt                 Op = "gt"
	OpGte                Op = "gte"
	OpLt                 Op = "lt"
	OpLte                Op = "lte"
	OpIn                 Op = "in"
	OpNin                Op = "nin"
	OpContains           Op = "contains"
	OpContainsIgnoreCase Op = "icontains"
	OpStartsWith         Op = "starts_with"
	OpEndsWith           Op = "ends_with"
	OpLike               Op = "like"
	OpEqIgnoreCase       Op = "ieq"
	OpAnd                Op = "and"
	OpOr                 Op = "or"
	OpNot                Op = "not"
)

// Filter is a predicate tree over result metadata. Leaves compare a field to
// a value; And/Or/Not compose. A nil filter matches everything.
//
// Backends translate filters to their native query languages when they can;
// PostFilter provides the in-memory fallback.
type Filter struct {
	Op    Op
	Field string
	Value any
	// Values is the operand set of In and Nin.
	Values []any
	// Sub holds the operands of And, Or, and Not.
	Sub []*Filter
}

// Leaf constructors.

func Eq(field string, v any) *Filter  { return &Filter{Op: OpEq, Field: field, Value: v} }
func Ne(field string, v any) *Filter  { return &Filter{Op: OpNe, Field: field, Value: v} }
func Gt(field string, v any) *Filter  { return &Filter{Op: OpGt, Field: field, Value: v} }
func Gte(field string, v any) *Filter { return &Filter{Op: OpGte, Field: field, Value: v} }
func Lt(field string, v any) *Filter  { return &Filter{Op: OpLt, Field: field, Value: v} }
func Lte(field string, v any) *Filter { return &Filter{Op: OpLte, Field: field, Value: v} }

func In(field string, vs ...any) *Filter  { return &Filter{Op: OpIn, Field: field, Values: vs} }
func Nin(field string, vs ...any) *Filter { return &Filter{Op: OpNin, Field: field, Values: vs} }

func Contains(field, substr string) *Filter {
	return &Filter{Op: OpContains, Field: field, Value: substr}
}

func ContainsIgnoreCase(field, substr string) *Filter {
	return &Filter{Op: OpContainsIgnoreCase, Field: field, Value: substr}
}

func StartsWith(field, prefix string) *Filter {
	return &Filter{Op: OpStartsWith, Field: field, Value: prefix}
}

func EndsWith(field, suffix string) *Filter {
	return &Filter{Op: OpEndsWith, Field: field, Value: suffix}
}

// Like matches with SQL LIKE semantics: % matches any run, _ one character.
func Like(field, pattern string) *Filter { return &Filter{Op: OpLike, Field: field, Value: pattern} }

func EqIgnoreCase(field, v string) *Filter {
	return &Filter{Op: OpEqIgnoreCase, Field: field, Value: v}
}

// Composite constructors.

func And(subs ...*Filter) *Filter { return &Filter{Op: OpAnd, Sub: subs} }
func Or(subs ...*Filter) *Filter  { return &Filter{Op: OpOr, Sub: subs} }
func Not(sub *Filter) *Filter     { return &Filter{Op: OpNot, Sub: []*Filter{sub}} }

// Matches evaluates the filter against a metadata map. Missing fields fail
// leaf comparisons (and therefore pass Ne and Nin).
func (f *Filter) Matches(metadata map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpAnd:
		for _, s := range f.Sub {
			if !s.Matches(metadata) {
				return false
			}
		}
		return true
	case OpOr:
		for _, s := range f.Sub {
			if s.Matches(metadata) {
				return true
			}
		}
		return len(f.Sub) == 0
	case OpNot:
		return len(f.Sub) == 1 && !f.Sub[0].Matches(metadata)
	}

	v, present := metadata[f.Field]
	switch f.Op {
	case OpEq:
		return present && equal(v, f.Value)
	case OpNe:
		return !present || !equal(v, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		cmp, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		if !present {
			return false
		}
		for _, cand := range f.Values {
			if equal(v, cand) {
				return true
			}
		}
		return false
	case OpNin:
		if !present {
			return true
		}
		for _, cand := range f.Values {
			if equal(v, cand) {
				return false
			}
		}
		return true
	case OpContains:
		s, sub, ok := stringPair(v, f.Value)
		return ok && strings.Contains(s, sub)
	case OpContainsIgnoreCase:
		s, sub, ok := stringPair(v, f.Value)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	case OpStartsWith:
		s, prefix, ok := stringPair(v, f.Value)
		return ok && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, suffix, ok := stringPair(v, f.Value)
		return ok && strings.HasSuffix(s, suffix)
	case OpLike:
		s, pattern, ok := stringPair(v, f.Value)
		return ok && likeMatch(s, pattern)
	case OpEqIgnoreCase:
		s, other, ok := stringPair(v, f.Value)
		return ok && strings.EqualFold(s, other)
	default:
		return false
	}
}

func equal(a, b any) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compare orders two values when both are numeric or both are strings.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringPair(a, b any) (string, string, bool) {
	sa, aok := a.(string)
	sb, bok := b.(string)
	return sa, sb, aok && bok
}

// likeMatch compiles the LIKE pattern to an anchored regexp. Invalid
// patterns never match.
func likeMatch(s, pattern string) bool {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	return err == nil && re.MatchString(s)
}

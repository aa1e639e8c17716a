package constprop

import (
	"fmt"

	"github.com/deobfuscator/core/internal/effects"
	"github.com/deobfuscator/core/internal/ir"
)

// AbstractValue is the enhanced-mode abstract-value lattice (spec.md
// §4.6 "Enhanced mode", §9 "Abstract-value lattice as a sum type"): a
// closed set of variants from imprecise-but-sound (Top) down through
// increasingly precise shapes to the unreachable bottom, joined at
// control-flow merges the same way internal/dom computes dominance —
// by combining information from every predecessor rather than trusting
// whichever one happened to be visited first.
type AbstractValue interface {
	isAbstractValue()
	String() string
}

// Bottom is the lattice's least element: "no value reaches here yet",
// the starting point before any definition has been resolved. It only
// ever appears transiently during evaluation (as the join identity);
// nothing in the final environment is left at Bottom, since a reachable
// SSA definition always resolves to at least Top.
type Bottom struct{}

func (Bottom) isAbstractValue() {}
func (Bottom) String() string   { return "⊥" }

// Top is the lattice's greatest element: "could be anything", the safe
// default whenever evaluation can't prove more — an unresolved
// parameter, a call to an unsummarized function, a join of
// incompatible shapes.
type Top struct{}

func (Top) isAbstractValue() {}
func (Top) String() string   { return "⊤" }

// Constant is a single, exactly-known runtime value: the shape basic
// mode's literal substitution already produced, promoted here to one
// lattice variant among several instead of the only one.
type Constant struct {
	Value interface{}
	Kind  ir.LiteralKind
}

func (Constant) isAbstractValue() {}
func (c Constant) String() string { return fmt.Sprintf("const(%v)", c.Value) }

// IntegerRange is a closed interval of integer values, the lattice's
// answer when two reaching definitions agree on boundedness but not on
// an exact value (e.g. a loop-carried counter, or two numeric
// constants joined together) — strictly more precise than Top without
// claiming the single exactness Constant does.
type IntegerRange struct {
	Lo, Hi int64
}

func (IntegerRange) isAbstractValue() {}
func (r IntegerRange) String() string { return fmt.Sprintf("range(%d..%d)", r.Lo, r.Hi) }

// SealedObject is an object literal whose complete, fixed property set
// is known at this program point: no computed key, no spread, nothing
// that could introduce a property this analysis didn't see. Each
// property's own value is itself a lattice element, so member-access
// evaluation can recurse into it.
type SealedObject struct {
	Properties map[string]AbstractValue
}

func (SealedObject) isAbstractValue() {}
func (s SealedObject) String() string { return fmt.Sprintf("sealed(%d props)", len(s.Properties)) }

// PureFunctionSummary records that a declared function's body carries
// no effect from the 8-category taxonomy in internal/effects — the
// precondition spec.md §4.6 sets for compile-time evaluation of a call
// to it when every argument is itself a Constant.
type PureFunctionSummary struct {
	Decl    *ir.FunctionDeclaration
	Effects effects.Set // always effects.Pure(Effects) == true by construction
}

func (PureFunctionSummary) isAbstractValue() {}
func (p PureFunctionSummary) String() string {
	name := "<anonymous>"
	if p.Decl.Name != nil {
		name = p.Decl.Name.Name
	}
	return fmt.Sprintf("pure-fn(%s)", name)
}

// join computes the least upper bound of a and b: the most precise
// single value that soundly describes "either a or b", used both when
// a φ-node merges two control-flow paths and when narrowing a range
// encounters a second constant. join is commutative and idempotent by
// construction; every branch returns a or b verbatim, builds a value
// covering both sides (an IntegerRange spanning two integers or ranges,
// or a merged SealedObject), or degrades to Top.
func join(a, b AbstractValue) AbstractValue {
	if a == nil {
		a = Bottom{}
	}
	if b == nil {
		b = Bottom{}
	}
	if _, ok := a.(Bottom); ok {
		return b
	}
	if _, ok := b.(Bottom); ok {
		return a
	}
	if _, ok := a.(Top); ok {
		return Top{}
	}
	if _, ok := b.(Top); ok {
		return Top{}
	}

	switch av := a.(type) {
	case Constant:
		switch bv := b.(type) {
		case Constant:
			if constantsEqual(av, bv) {
				return av
			}
			if lo, hi, ok := bothInt(av, bv); ok {
				return normalizeRange(IntegerRange{Lo: lo, Hi: hi})
			}
			return Top{}
		case IntegerRange:
			if n, ok := asInt(av); ok {
				return normalizeRange(IntegerRange{Lo: min64(n, bv.Lo), Hi: max64(n, bv.Hi)})
			}
			return Top{}
		default:
			return Top{}
		}
	case IntegerRange:
		switch bv := b.(type) {
		case IntegerRange:
			return normalizeRange(IntegerRange{Lo: min64(av.Lo, bv.Lo), Hi: max64(av.Hi, bv.Hi)})
		case Constant:
			if n, ok := asInt(bv); ok {
				return normalizeRange(IntegerRange{Lo: min64(av.Lo, n), Hi: max64(av.Hi, n)})
			}
			return Top{}
		default:
			return Top{}
		}
	case SealedObject:
		bv, ok := b.(SealedObject)
		if !ok || len(av.Properties) != len(bv.Properties) {
			return Top{}
		}
		merged := make(map[string]AbstractValue, len(av.Properties))
		for k, v := range av.Properties {
			other, ok := bv.Properties[k]
			if !ok {
				return Top{}
			}
			merged[k] = join(v, other)
		}
		return SealedObject{Properties: merged}
	case PureFunctionSummary:
		if bv, ok := b.(PureFunctionSummary); ok && bv.Decl == av.Decl {
			return av
		}
		return Top{}
	default:
		return Top{}
	}
}

func normalizeRange(r IntegerRange) AbstractValue {
	if r.Lo == r.Hi {
		return Constant{Value: float64(r.Lo), Kind: ir.LiteralNumber}
	}
	return r
}

func constantsEqual(a, b Constant) bool {
	return a.Kind == b.Kind && a.Value == b.Value
}

func asInt(c Constant) (int64, bool) {
	n, ok := c.Value.(float64)
	if !ok || n != float64(int64(n)) {
		return 0, false
	}
	return int64(n), true
}

func bothInt(a, b Constant) (lo, hi int64, ok bool) {
	an, aok := asInt(a)
	bn, bok := asInt(b)
	if !aok || !bok {
		return 0, 0, false
	}
	return min64(an, bn), max64(an, bn), true
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

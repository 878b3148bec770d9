// Package predicate models the release conditions attached to claimable
// balances as a closed variant type evaluated against a wall-clock instant.
//
// Horizon-compatible APIs describe claim conditions as loosely-typed JSON
// trees. This package parses them into a fixed set of node kinds —
// unconditional, before, not-before, not-after, and, or, not — and evaluates them
// with a pure recursive function. A predicate that cannot be parsed is
// represented as nil and treated as never claimable.
package predicate

import (
	"time"
)

// Kind identifies a predicate node variant.
type Kind int

const (
	// KindUnconditional is always satisfied.
	KindUnconditional Kind = iota
	// KindNotBefore is satisfied at or after Instant.
	KindNotBefore
	// KindNotAfter is satisfied at or before Instant.
	KindNotAfter
	// KindBefore is satisfied strictly before Instant. This is the shape of
	// the wire format's abs_before condition: the claim window closes at
	// Instant, exclusive.
	KindBefore
	// KindAnd is satisfied when all children are satisfied.
	KindAnd
	// KindOr is satisfied when any child is satisfied.
	KindOr
	// KindNot negates its single child.
	KindNot
)

// String returns the node kind name.
func (k Kind) String() string {
	switch k {
	case KindUnconditional:
		return "unconditional"
	case KindNotBefore:
		return "not_before"
	case KindNotAfter:
		return "not_after"
	case KindBefore:
		return "before"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	default:
		return "unknown"
	}
}

// Predicate is one node of a release condition tree. Build trees with the
// constructor functions; a zero Predicate is KindUnconditional.
type Predicate struct {
	Kind     Kind
	Instant  time.Time    // set for KindNotBefore, KindNotAfter, KindBefore
	Children []*Predicate // set for KindAnd, KindOr, KindNot (single child)
}

// Unconditional returns a predicate that is always satisfied.
func Unconditional() *Predicate {
	return &Predicate{Kind: KindUnconditional}
}

// NotBefore returns a predicate satisfied at or after t.
func NotBefore(t time.Time) *Predicate {
	return &Predicate{Kind: KindNotBefore, Instant: t.UTC()}
}

// NotAfter returns a predicate satisfied at or before t.
func NotAfter(t time.Time) *Predicate {
	return &Predicate{Kind: KindNotAfter, Instant: t.UTC()}
}

// Before returns a predicate satisfied strictly before t.
func Before(t time.Time) *Predicate {
	return &Predicate{Kind: KindBefore, Instant: t.UTC()}
}

// And returns a predicate satisfied when all children are satisfied.
func And(children ...*Predicate) *Predicate {
	return &Predicate{Kind: KindAnd, Children: children}
}

// Or returns a predicate satisfied when any child is satisfied.
func Or(children ...*Predicate) *Predicate {
	return &Predicate{Kind: KindOr, Children: children}
}

// Not returns the negation of child.
func Not(child *Predicate) *Predicate {
	return &Predicate{Kind: KindNot, Children: []*Predicate{child}}
}

// Eval reports whether the predicate is satisfied at the reference instant.
// A nil predicate is never satisfied (fail closed: an unparseable condition
// must not be treated as claimable).
func (p *Predicate) Eval(ref time.Time) bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case KindUnconditional:
		return true
	case KindNotBefore:
		return !ref.Before(p.Instant)
	case KindNotAfter:
		return !ref.After(p.Instant)
	case KindBefore:
		return ref.Before(p.Instant)
	case KindAnd:
		for _, c := range p.Children {
			if !c.Eval(ref) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range p.Children {
			if c.Eval(ref) {
				return true
			}
		}
		return false
	case KindNot:
		if len(p.Children) != 1 {
			return false
		}
		return !p.Children[0].Eval(ref)
	default:
		return false
	}
}

// Package jsondiff computes structural differences between two comparison
// views and drops the differences known to be backend noise.
//
// Diff walks both values in lockstep. Objects are compared key by key in
// RFC 8785 key order, lists index by index (extra elements are reported as
// missing), scalars by value. A Rules value decides which paths are skipped
// or compared leniently.
package jsondiff

import (
	"strconv"

	"github.com/roach88/casediff/internal/ir"
)

// Differ is a rule-aware structural diff. It is safe for concurrent use.
type Differ struct {
	rules compiledRules
}

// New creates a Differ for the given rules.
func New(rules Rules) *Differ {
	return &Differ{rules: compile(rules)}
}

// Diff returns the differences between a (document store view) and b
// (relational store view). The result is never nil.
func (d *Differ) Diff(a, b ir.IRValue) []ir.DiffEntry {
	out := []ir.DiffEntry{}
	d.walk(nil, a, b, &out)
	return out
}

func (d *Differ) walk(path []string, a, b ir.IRValue, out *[]ir.DiffEntry) {
	if len(path) > 0 && d.rules.ignored(path) {
		return
	}
	if d.rules.equivalent(path, a, b) {
		return
	}

	if a == nil || b == nil {
		*out = append(*out, entry(ir.DiffTypeMissing, path, a, b))
		return
	}

	switch av := a.(type) {
	case ir.IRObject:
		bv, ok := b.(ir.IRObject)
		if !ok {
			*out = append(*out, entry(ir.DiffTypeType, path, a, b))
			return
		}
		for _, k := range unionKeys(av, bv) {
			d.walk(appendPath(path, k), av[k], bv[k], out)
		}

	case ir.IRArray:
		bv, ok := b.(ir.IRArray)
		if !ok {
			*out = append(*out, entry(ir.DiffTypeType, path, a, b))
			return
		}
		if d.rules.isUnordered(path) {
			if !sameMembers(av, bv, d.rules.ignorableMembers(path)) {
				*out = append(*out, entry(ir.DiffTypeDiff, path, a, b))
			}
			return
		}
		n := max(len(av), len(bv))
		for i := 0; i < n; i++ {
			var ae, be ir.IRValue
			if i < len(av) {
				ae = av[i]
			}
			if i < len(bv) {
				be = bv[i]
			}
			seg := strconv.Itoa(i)
			if d.rules.hideIndices {
				seg = ListWildcard
			}
			d.walk(appendPath(path, seg), ae, be, out)
		}

	default:
		if ir.TypeName(a) != ir.TypeName(b) {
			*out = append(*out, entry(ir.DiffTypeType, path, a, b))
			return
		}
		if !ir.Equal(a, b) {
			*out = append(*out, entry(ir.DiffTypeDiff, path, a, b))
		}
	}
}

func entry(typ string, path []string, a, b ir.IRValue) ir.DiffEntry {
	p := make([]string, len(path))
	copy(p, path)
	return ir.DiffEntry{Type: typ, Path: p, Old: a, New: b}
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func unionKeys(a, b ir.IRObject) []string {
	merged := make(ir.IRObject, len(a)+len(b))
	for k := range a {
		merged[k] = ir.IRNull{}
	}
	for k := range b {
		merged[k] = ir.IRNull{}
	}
	return merged.SortedKeys()
}

// sameMembers compares two lists as multisets, ignoring any member listed
// in skip.
func sameMembers(a, b ir.IRArray, skip map[string]bool) bool {
	counts := map[string]int{}
	for _, v := range a {
		if k, ok := memberKey(v, skip); ok {
			counts[k]++
		}
	}
	for _, v := range b {
		if k, ok := memberKey(v, skip); ok {
			counts[k]--
		}
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func memberKey(v ir.IRValue, skip map[string]bool) (string, bool) {
	if s, ok := v.(ir.IRString); ok && skip[string(s)] {
		return "", false
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", false
	}
	return string(data), true
}

package jsondiff

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/casediff/internal/ir"
)

// Rules describes which differences are noise. Path patterns are dotted
// segment lists; each segment is matched with path.Match, so "*" matches
// exactly one segment and "computed_*" matches a key prefix. A pattern
// matches a path when it matches a leading run of its segments, so
// ignoring "actions" also ignores everything below it.
type Rules struct {
	// Ignore lists paths whose differences are always dropped.
	Ignore []string

	// Unordered lists paths whose list values compare as multisets.
	Unordered []string

	// IgnorableMembers names, per unordered path, string members that
	// may be present on one side only.
	IgnorableMembers map[string][]string

	// EmptyEquivalent lists paths where absent, null and "" are equal.
	EmptyEquivalent []string

	// LooseScalars lists paths where scalars compare by their text, so
	// 5 equals "5" and true equals "true".
	LooseScalars []string

	// EquivalentTimes treats two strings that parse to the same instant
	// as equal anywhere in the document.
	EquivalentTimes bool

	// HideListIndices reports list elements under a "[*]" segment instead
	// of their index.
	HideListIndices bool
}

// ListWildcard is the path segment used for list elements when indices
// are hidden.
const ListWildcard = "[*]"

// CaseRules returns the filter for case records. extraIgnore comes from
// configuration; noActionForms are forms known to leave no trace on the
// relational side.
func CaseRules(extraIgnore, noActionForms []string) Rules {
	ignore := []string{
		"_rev",
		"_attachments",
		"doc_type",
		"initial_processing_complete",
		"computed_*",
		"#export_tag",
		"external_blobs",
		"actions",
	}
	return Rules{
		Ignore:           append(ignore, extraIgnore...),
		Unordered:        []string{"xform_ids"},
		IgnorableMembers: map[string][]string{"xform_ids": noActionForms},
		EmptyEquivalent:  []string{"properties.*", "owner_id", "name"},
		LooseScalars:     []string{"properties.*"},
		EquivalentTimes:  true,
		HideListIndices:  true,
	}
}

// LedgerRules returns the filter for ledger/stock state records.
func LedgerRules(extraIgnore []string) Rules {
	return Rules{
		Ignore:          append([]string{"_id", "daily_consumption"}, extraIgnore...),
		EquivalentTimes: true,
		HideListIndices: true,
	}
}

type pattern []string

func (p pattern) matchesPrefix(segs []string) bool {
	if len(p) > len(segs) {
		return false
	}
	for i, seg := range p {
		ok, err := path.Match(seg, segs[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (p pattern) matchesExact(segs []string) bool {
	return len(p) == len(segs) && p.matchesPrefix(segs)
}

type compiledRules struct {
	ignore          []pattern
	unordered       []pattern
	members         []memberRule
	emptyEquivalent []pattern
	looseScalars    []pattern
	equivalentTimes bool
	hideIndices     bool
}

type memberRule struct {
	at   pattern
	skip map[string]bool
}

func compile(r Rules) compiledRules {
	c := compiledRules{
		ignore:          compilePatterns(r.Ignore),
		unordered:       compilePatterns(r.Unordered),
		emptyEquivalent: compilePatterns(r.EmptyEquivalent),
		looseScalars:    compilePatterns(r.LooseScalars),
		equivalentTimes: r.EquivalentTimes,
		hideIndices:     r.HideListIndices,
	}
	for at, members := range r.IgnorableMembers {
		skip := make(map[string]bool, len(members))
		for _, m := range members {
			skip[m] = true
		}
		c.members = append(c.members, memberRule{at: splitPattern(at), skip: skip})
	}
	return c
}

func compilePatterns(raw []string) []pattern {
	out := make([]pattern, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			continue
		}
		out = append(out, splitPattern(r))
	}
	return out
}

func splitPattern(s string) pattern {
	return pattern(strings.Split(s, "."))
}

func (c compiledRules) ignored(segs []string) bool {
	for _, p := range c.ignore {
		if p.matchesPrefix(segs) {
			return true
		}
	}
	return false
}

func (c compiledRules) isUnordered(segs []string) bool {
	for _, p := range c.unordered {
		if p.matchesExact(segs) {
			return true
		}
	}
	return false
}

func (c compiledRules) ignorableMembers(segs []string) map[string]bool {
	for _, m := range c.members {
		if m.at.matchesExact(segs) {
			return m.skip
		}
	}
	return nil
}

func anyExact(patterns []pattern, segs []string) bool {
	for _, p := range patterns {
		if p.matchesExact(segs) {
			return true
		}
	}
	return false
}

// equivalent reports whether a and b are equal under the lenient rules
// for this path.
func (c compiledRules) equivalent(segs []string, a, b ir.IRValue) bool {
	if anyExact(c.emptyEquivalent, segs) && isEmpty(a) && isEmpty(b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if anyExact(c.looseScalars, segs) {
		as, aok := scalarText(a)
		bs, bok := scalarText(b)
		if aok && bok && as == bs {
			return true
		}
	}
	if c.equivalentTimes {
		as, aok := a.(ir.IRString)
		bs, bok := b.(ir.IRString)
		if aok && bok && as != bs {
			at, aerr := parseTime(string(as))
			bt, berr := parseTime(string(bs))
			if aerr == nil && berr == nil && at.Equal(bt) {
				return true
			}
		}
	}
	return false
}

func isEmpty(v ir.IRValue) bool {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return true
	case ir.IRString:
		return val == ""
	}
	return false
}

func scalarText(v ir.IRValue) (string, bool) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), true
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10), true
	case ir.IRBool:
		if val {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

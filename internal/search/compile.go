// Package search implements the SearchEngine of spec §4.7: compile a
// disjunction of filters into one regex, stream the session text file,
// write match records, and build the row→filter-index SearchMap plus a
// scaled overview for a UI minimap.
package search

import (
	"regexp"
	"strings"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/types"
)

// metaChars is the exact set spec §4.7 names for escaping a non-regex
// filter value: "{}[]+$^/!.*|():?,=<>\".
const metaChars = `{}[]+$^/!.*|():?,=<>\`

// escapeLiteral escapes every rune in metaChars with a backslash. This is
// deliberately not regexp.QuoteMeta: the spec names its own set (which
// also includes '/', '!', ',', '=', '<', '>' and ':', none of which
// QuoteMeta escapes), and §6 requires the construction to be
// reproduced bit-exactly.
func escapeLiteral(value string) string {
	var b strings.Builder
	for _, r := range value {
		if strings.ContainsRune(metaChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// compileFilter turns one Filter into its regex sub-pattern per spec
// §4.7 step 2.
func compileFilter(f types.Filter) string {
	pattern := f.Value
	if !f.IsRegex {
		pattern = escapeLiteral(f.Value)
	}
	if f.IsWord {
		pattern = `\b` + pattern + `\b`
	}
	if !f.CaseSensitive {
		pattern = `(?i)` + pattern + `(?-i)`
	}
	return pattern
}

// Compile composes the parenthesized alternation `(p_0|p_1|...|p_{n-1})`
// and compiles it with Go's RE2 engine. Fails with InvalidArgs if the
// filter list is empty (NoFilters per spec §4.7 step 1), and with Regex if
// the composed pattern doesn't parse.
func Compile(filters []types.Filter) (*regexp.Regexp, error) {
	if len(filters) == 0 {
		return nil, errkind.InvalidArgs("search.Compile", errNoFilters)
	}
	subs := make([]string, len(filters))
	for i, f := range filters {
		subs[i] = compileFilter(f)
	}
	combined := "(" + strings.Join(subs, "|") + ")"
	re, err := regexp.Compile(combined)
	if err != nil {
		return nil, errkind.Regex("search.Compile", err)
	}
	return re, nil
}

type sentinelErr string

func (s sentinelErr) Error() string { return string(s) }

const errNoFilters = sentinelErr("no filters")

// Package datefilter parses the date expressions accepted by the CLI, the
// TUI filter box and the MCP tools ("yesterday", "last week", "2025-04-01").
package datefilter

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var layouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse resolves s relative to now. Natural language is tried first, then
// the fixed layouts. Dashes stand in for spaces so "last-week" works inside
// a single token.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	res, err := newParser().Parse(strings.ReplaceAll(s, "-", " "), now)
	if err == nil && res != nil {
		return res.Time, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Filter is a free-text query plus an optional date range.
type Filter struct {
	Query  string
	Since  time.Time
	Before time.Time
}

// ParseQuery splits a filter box query into text and date tokens:
//   - since:yesterday, after:2025-04-01 - lower bound
//   - before:last-week - upper bound
//
// Tokens whose date does not parse are kept as text.
func ParseQuery(query string, now time.Time) Filter {
	var f Filter
	var text []string
	for _, tok := range strings.Fields(query) {
		key, val, ok := strings.Cut(tok, ":")
		if !ok || val == "" {
			text = append(text, tok)
			continue
		}
		switch key {
		case "since", "after", "date":
			if t, err := Parse(val, now); err == nil {
				f.Since = t
				continue
			}
		case "before", "until":
			if t, err := Parse(val, now); err == nil {
				f.Before = t
				continue
			}
		}
		text = append(text, tok)
	}
	f.Query = strings.Join(text, " ")
	return f
}

// Match reports whether t falls inside the filter's range.
func (f Filter) Match(t time.Time) bool {
	if !f.Since.IsZero() && t.Before(f.Since) {
		return false
	}
	if !f.Before.IsZero() && !t.Before(f.Before) {
		return false
	}
	return true
}

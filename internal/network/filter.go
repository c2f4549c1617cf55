package network

import (
	"strings"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// Filter is a predicate over captured entries. Fields combine with AND;
// the active filter set combines with OR. An empty filter matches
// everything.
type Filter struct {
	URLPattern string `json:"url_pattern,omitempty"`
	Method     string `json:"method,omitempty"`
	FailedOnly bool   `json:"failed_only,omitempty"`
}

// Matches reports whether rec satisfies the filter.
func (f Filter) Matches(rec browser.RequestRecord) bool {
	if f.URLPattern != "" && !strings.Contains(rec.URL, f.URLPattern) {
		return false
	}
	if f.Method != "" && !strings.EqualFold(f.Method, rec.Method) {
		return false
	}
	if f.FailedOnly && !rec.Failed {
		return false
	}
	return true
}

// matchesAny applies the OR semantics of the filter set: no filters
// means everything passes.
func matchesAny(filters []Filter, rec browser.RequestRecord) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(rec) {
			return true
		}
	}
	return false
}

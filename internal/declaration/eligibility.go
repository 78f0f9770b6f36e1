package declaration

import "strings"

// Rules holds the configurable eligibility rule set.
type Rules struct {
	// ClearedStatus is the raw status code meaning customs clearance granted.
	ClearedStatus string
	// OtherTransportCode is the reserved "other" transport sentinel; such
	// declarations carry no retrievable barcode.
	OtherTransportCode string
	// ManagementPrefixes excludes internal-management filings by goods
	// description prefix. Matching is case-sensitive and prefix-only.
	ManagementPrefixes []string
}

// Filter decides whether a declaration qualifies for barcode retrieval.
// Pure predicate: no I/O, no side effects.
type Filter struct {
	rules Rules
}

// NewFilter builds an eligibility filter from the given rule set.
func NewFilter(rules Rules) *Filter {
	return &Filter{rules: rules}
}

// IsEligible reports whether a declaration qualifies for barcode retrieval.
// A declaration is eligible iff it ran the green or yellow channel, its status
// equals the cleared code, its transport method is not the "other" sentinel,
// and its goods description does not start with a management prefix. Empty
// descriptions are eligible.
func (f *Filter) IsEligible(d Declaration) bool {
	if d.Channel != ChannelGreen && d.Channel != ChannelYellow {
		return false
	}
	if d.StatusCode != f.rules.ClearedStatus {
		return false
	}
	if d.TransportMethod == f.rules.OtherTransportCode {
		return false
	}
	for _, prefix := range f.rules.ManagementPrefixes {
		if prefix != "" && strings.HasPrefix(d.GoodsDescription, prefix) {
			return false
		}
	}
	return true
}

// Eligible returns the eligible subset of declarations in input order.
func (f *Filter) Eligible(items []Declaration) []Declaration {
	out := make([]Declaration, 0, len(items))
	for _, d := range items {
		if f.IsEligible(d) {
			out = append(out, d)
		}
	}
	return out
}

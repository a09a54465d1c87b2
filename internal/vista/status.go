package vista

// LinkStatus is the reconciliation state of an external record.
type LinkStatus string

// Link statuses.
const (
	StatusUnmatched     LinkStatus = "unmatched"
	StatusAutoMatched   LinkStatus = "auto_matched"
	StatusManualMatched LinkStatus = "manual_matched"
	StatusIgnored       LinkStatus = "ignored"
)

// AllStatuses lists every status in display order.
var AllStatuses = []LinkStatus{StatusUnmatched, StatusAutoMatched, StatusManualMatched, StatusIgnored}

// transitions holds the allowed moves. Self-transitions that are no-ops
// (unmatched→unmatched, ignored→ignored) and relinks are included.
var transitions = map[LinkStatus]map[LinkStatus]bool{
	StatusUnmatched: {
		StatusUnmatched:     true,
		StatusAutoMatched:   true,
		StatusManualMatched: true,
		StatusIgnored:       true,
	},
	StatusAutoMatched: {
		StatusUnmatched:     true,
		StatusManualMatched: true,
	},
	StatusManualMatched: {
		StatusUnmatched:     true,
		StatusManualMatched: true,
	},
	StatusIgnored: {
		StatusUnmatched:     true,
		StatusManualMatched: true,
		StatusIgnored:       true,
	},
}

// Valid reports whether s is a known status.
func (s LinkStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsLinked reports whether the status carries a linked entity.
func (s LinkStatus) IsLinked() bool {
	return s == StatusAutoMatched || s == StatusManualMatched
}

// CanTransition reports whether moving from s to next is allowed.
func (s LinkStatus) CanTransition(next LinkStatus) bool {
	return transitions[s][next]
}

// ParseLinkStatus validates a status string.
func ParseLinkStatus(s string) (LinkStatus, bool) {
	st := LinkStatus(s)
	return st, st.Valid()
}

package session

import "strings"

// Status is the canonical lifecycle status. Server status strings are free
// text, so the canonical value is derived by substring classification and the
// raw text is kept for display.
type Status int

const (
	StatusNone Status = iota
	StatusSearching
	StatusDispatched
	StatusArrived
	StatusCompleted
	StatusCancelled
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusSearching:
		return "Searching"
	case StatusDispatched:
		return "Dispatched"
	case StatusArrived:
		return "Arrived"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Classify maps free-text server status to the canonical enum. Matching is
// case-insensitive and substring-based to tolerate synonyms ("Done" counts as
// completed). Unrecognized text classifies as StatusUnknown and triggers no
// transition.
func Classify(text string) Status {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return StatusNone
	case strings.Contains(t, "cancel"):
		return StatusCancelled
	case strings.Contains(t, "complete"), strings.Contains(t, "done"):
		return StatusCompleted
	case strings.Contains(t, "arriv"):
		return StatusArrived
	case strings.Contains(t, "dispatch"):
		return StatusDispatched
	case strings.Contains(t, "search"):
		return StatusSearching
	default:
		return StatusUnknown
	}
}

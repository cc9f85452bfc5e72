package domain

import "strings"

// CanTransition reports whether a submission may move from one status to another.
// Only a pending submission can be decided, and only into a terminal state.
func CanTransition(from, to SubmissionStatus) bool {
	return from == StatusPending && (to == StatusApproved || to == StatusRejected)
}

// Terminal reports whether no further transition is defined from s.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseOutcome accepts the two review verdicts.
func ParseOutcome(outcome string) (SubmissionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case string(StatusApproved):
		return StatusApproved, true
	case string(StatusRejected):
		return StatusRejected, true
	default:
		return "", false
	}
}

// StatusColor returns the badge class for a status. Unknown values fall back to gray.
func StatusColor(status SubmissionStatus) string {
	switch status {
	case StatusPending:
		return "bg-yellow-500"
	case StatusApproved:
		return "bg-green-500"
	case StatusRejected:
		return "bg-red-500"
	default:
		return "bg-gray-500"
	}
}

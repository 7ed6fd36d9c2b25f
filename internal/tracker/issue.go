package tracker

import "time"

// Issue is the slice of an issue record this system cares about. The
// tracker returns more fields; they are ignored on decode.
type Issue struct {
	IssueKey string `json:"issueKey"`
	Summary  string `json:"summary"`
	Updated  string `json:"updated"`
}

// UpdatedAt parses the issue's update timestamp. ok is false when the
// field is missing or malformed; such issues are treated as not updated.
func (i Issue) UpdatedAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, i.Updated)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

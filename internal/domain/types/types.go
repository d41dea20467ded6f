// Package types contains common types used across the application.
package types

// Entry is one leaderboard row for a period and score kind.
type Entry struct {
	Rank      int     `json:"rank"`
	SubjectID string  `json:"subject_id"`
	Score     float64 `json:"score"`
	Display   int     `json:"display"`
	Grade     string  `json:"grade"`
}

// Less orders entries by score descending, then subject ascending.
func (e Entry) Less(o Entry) bool {
	if e.Score != o.Score {
		return e.Score > o.Score
	}
	return e.SubjectID < o.SubjectID
}

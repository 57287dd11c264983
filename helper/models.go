package helper

import "time"

// Profile captures the subset of helper data exposed via the public API layer.
type Profile struct {
	ID          string
	FullName    string
	Rating      float64
	HelpedCount int
	CreatedAt   time.Time
}

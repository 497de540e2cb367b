package model

import "time"

// PaperSummary is the provider's description of a single paper. Values are
// immutable once fetched; we only cache and view-track them.
type PaperSummary struct {
	PaperID    string    `json:"paper_id"`
	Title      string    `json:"title"`
	Authors    []string  `json:"authors"`
	Summary    string    `json:"summary"`
	Link       string    `json:"link"`
	Categories []string  `json:"categories"`
	Published  time.Time `json:"published"`
}

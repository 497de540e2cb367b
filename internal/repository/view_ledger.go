package repository

import (
	"context"
	"time"

	"github.com/example/paperwatch/internal/model"
)

// ViewLedger records which papers an owner has already been shown. The worker
// uses it as the dedup filter before every delivery, so bulk writes must be
// conflict-tolerant: the same (owner, paper) pair may arrive from overlapping
// topic subscriptions in a single batch.
type ViewLedger interface {
	// MarkViewed inserts one view record. Returns (nil, nil) when the pair
	// was already recorded; duplicates are a no-op, not an error.
	MarkViewed(ctx context.Context, ownerID int64, paperID string) (*model.ViewRecord, error)
	// MarkAllViewed inserts the given papers, skipping pairs already
	// present, and returns how many rows were actually inserted.
	MarkAllViewed(ctx context.Context, ownerID int64, paperIDs []string) (int, error)
	HasViewed(ctx context.Context, ownerID int64, paperID string) (bool, error)
	// ViewedIDs returns the subset of paperIDs the owner has viewed. An
	// empty input yields an empty set without touching the store.
	ViewedIDs(ctx context.Context, ownerID int64, paperIDs []string) (map[string]struct{}, error)
	ViewedSince(ctx context.Context, ownerID int64, since time.Time) ([]string, error)
	// Unmark removes a single record (mark-unread).
	Unmark(ctx context.Context, ownerID int64, paperID string) error
	// ClearAll removes every record for the owner and returns the count.
	ClearAll(ctx context.Context, ownerID int64) (int, error)
}

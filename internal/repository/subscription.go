package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/paperwatch/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrSubscriptionLimit is returned when an owner is at the active
// subscription cap.
var ErrSubscriptionLimit = errors.New("repository: active subscription limit reached")

// SubscriptionRepository abstracts persistence of topic subscriptions.
type SubscriptionRepository interface {
	// Create stores a new subscription for the owner. If an inactive
	// subscription with the same topic and categories already exists it is
	// reactivated instead of duplicated.
	Create(ctx context.Context, sub *model.Subscription) (*model.Subscription, error)
	// ListDue returns active subscriptions whose interval has elapsed,
	// oldest last_run_at first (never-run first of all). limit <= 0 means
	// no cap.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
	UpdateLastRun(ctx context.Context, id int64, at time.Time) error
	MarkInactive(ctx context.Context, id int64) error
	Reactivate(ctx context.Context, id int64) error
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Subscription, error)
	// DeleteOwner removes the owner's subscriptions outright. Everything
	// else is soft-deleted via MarkInactive.
	DeleteOwner(ctx context.Context, ownerID int64) error
}

package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/paperwatch/internal/metrics"
	"github.com/example/paperwatch/internal/model"
	"github.com/example/paperwatch/internal/ratelimit"
	"github.com/example/paperwatch/internal/repository"
)

// PaperSource describes the part of the search provider the worker uses.
type PaperSource interface {
	Search(ctx context.Context, topic string, categories []string, offset, limit int) ([]model.PaperSummary, error)
}

// Notifier delivers a formatted message to a user.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ResultCache is the read/write surface of the query result cache.
type ResultCache interface {
	Get(ctx context.Context, topic string, categories []string, offset, limit int) ([]model.PaperSummary, bool)
	Set(ctx context.Context, topic string, categories []string, offset, limit int, papers []model.PaperSummary)
}

// Admission is the rate limiter surface the worker needs.
type Admission interface {
	Check(principal int64, op ratelimit.Op) ratelimit.Result
}

// Options tunes one Worker instance.
type Options struct {
	// Concurrency bounds how many subscriptions are in flight at once.
	Concurrency int
	// SubscriptionTimeout bounds provider, ledger and send calls for one
	// subscription.
	SubscriptionTimeout time.Duration
	// SearchLimit is the page size requested from the provider.
	SearchLimit int
	// DigestMaxPapers caps papers per delivered message.
	DigestMaxPapers int
}

// RunOptions parametrizes a single batch run.
type RunOptions struct {
	// MaxSubscriptions caps how many due subscriptions are selected;
	// 0 means no cap.
	MaxSubscriptions int
	// DryRun computes would-be deliveries without sending, writing the
	// ledger or advancing last_run_at.
	DryRun bool
}

// Worker runs the subscription delivery pipeline: select due subscriptions,
// fetch results through the cache, dedup against the view ledger, admit
// through the rate limiter, deliver, commit. Each subscription's outcome is
// independent; only a failure to list due subscriptions fails the run.
type Worker struct {
	subs     repository.SubscriptionRepository
	ledger   repository.ViewLedger
	source   PaperSource
	cache    ResultCache
	limiter  Admission
	notifier Notifier
	opts     Options

	now func() time.Time
}

func NewWorker(subs repository.SubscriptionRepository, ledger repository.ViewLedger, source PaperSource, cache ResultCache, limiter Admission, notifier Notifier, opts Options) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SearchLimit < 1 {
		opts.SearchLimit = 25
	}
	if opts.DigestMaxPapers < 1 {
		opts.DigestMaxPapers = 10
	}
	return &Worker{
		subs:     subs,
		ledger:   ledger,
		source:   source,
		cache:    cache,
		limiter:  limiter,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeSkipped
	outcomeDeferred
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeSkipped:
		return "skipped"
	case outcomeDeferred:
		return "deferred"
	default:
		return "failed"
	}
}

// ProcessSubscriptions runs one batch. When ctx carries a deadline, no new
// subscription is started after it passes, but in-flight ones finish under
// their own per-subscription timeout; the partial BatchResult is returned.
func (w *Worker) ProcessSubscriptions(ctx context.Context, run RunOptions) (model.BatchResult, error) {
	start := w.now()

	due, err := w.subs.ListDue(ctx, start, run.MaxSubscriptions)
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("list due subscriptions: %w", err)
	}

	var (
		mu     sync.Mutex
		counts = map[outcome]int{}
	)
	jobs := make(chan *model.Subscription)

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				o := w.processOne(ctx, sub, run.DryRun)
				metrics.SubscriptionsProcessed.WithLabelValues(o.String()).Inc()
				mu.Lock()
				counts[o]++
				mu.Unlock()
			}
		}()
	}

	selected := 0
dispatch:
	for _, sub := range due {
		select {
		case <-ctx.Done():
			log.Printf("worker: deadline reached, %d of %d subscriptions not started", len(due)-selected, len(due))
			break dispatch
		case jobs <- sub:
			selected++
		}
	}
	close(jobs)
	wg.Wait()

	duration := w.now().Sub(start)
	metrics.BatchDuration.Observe(duration.Seconds())

	result := model.BatchResult{
		Processed:  selected,
		Successful: counts[outcomeDelivered] + counts[outcomeSkipped],
		Failed:     counts[outcomeFailed],
		DurationMs: duration.Milliseconds(),
	}
	log.Printf("worker: batch done processed=%d delivered=%d skipped=%d deferred=%d failed=%d duration=%s dry_run=%v",
		result.Processed, counts[outcomeDelivered], counts[outcomeSkipped], counts[outcomeDeferred], counts[outcomeFailed], duration, run.DryRun)
	return result, nil
}

// processOne walks a single subscription through the pipeline. Every error is
// classified and absorbed here; nothing propagates to the batch.
func (w *Worker) processOne(parent context.Context, sub *model.Subscription, dryRun bool) outcome {
	// In-flight subscriptions keep their own timeout even after the run
	// deadline passes.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.opts.SubscriptionTimeout)
	defer cancel()

	papers, o := w.fetch(ctx, sub)
	if o != outcomeDelivered {
		return o
	}

	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.PaperID
	}
	viewed, err := w.ledger.ViewedIDs(ctx, sub.OwnerID, ids)
	if err != nil {
		log.Printf("worker: sub=%d owner=%d topic=%q ledger read: %v", sub.ID, sub.OwnerID, sub.Topic, err)
		return outcomeFailed
	}
	fresh := papers[:0:0]
	for _, p := range papers {
		if _, ok := viewed[p.PaperID]; !ok {
			fresh = append(fresh, p)
		}
	}

	if len(fresh) == 0 {
		// Exhausted topic: advance last_run_at so it is not re-checked
		// immediately.
		if !dryRun {
			if err := w.subs.UpdateLastRun(ctx, sub.ID, w.now()); err != nil {
				log.Printf("worker: sub=%d owner=%d update last run: %v", sub.ID, sub.OwnerID, err)
				return outcomeFailed
			}
		}
		return outcomeSkipped
	}

	if dryRun {
		log.Printf("worker: sub=%d owner=%d topic=%q dry run, would deliver %d papers", sub.ID, sub.OwnerID, sub.Topic, len(fresh))
		return outcomeDelivered
	}

	if res := w.limiter.Check(sub.OwnerID, ratelimit.OpSend); !res.Allowed {
		metrics.RateLimitDeferrals.WithLabelValues(string(ratelimit.OpSend)).Inc()
		log.Printf("worker: sub=%d owner=%d send rate limited, retry in %s", sub.ID, sub.OwnerID, res.RetryAfter)
		return outcomeDeferred
	}

	if len(fresh) > w.opts.DigestMaxPapers {
		fresh = fresh[:w.opts.DigestMaxPapers]
	}
	if err := w.notifier.SendMessage(ctx, sub.OwnerID, FormatDigest(sub.Topic, fresh)); err != nil {
		log.Printf("worker: sub=%d owner=%d topic=%q send: %v", sub.ID, sub.OwnerID, sub.Topic, err)
		return outcomeFailed
	}
	metrics.PapersDelivered.Add(float64(len(fresh)))

	// Commit. A failed ledger write leaves the papers deliverable again
	// next cycle; the dedup there bounds the duplication.
	freshIDs := make([]string, len(fresh))
	for i, p := range fresh {
		freshIDs[i] = p.PaperID
	}
	if _, err := w.ledger.MarkAllViewed(ctx, sub.OwnerID, freshIDs); err != nil {
		log.Printf("worker: sub=%d owner=%d ledger write: %v", sub.ID, sub.OwnerID, err)
		return outcomeFailed
	}
	if err := w.subs.UpdateLastRun(ctx, sub.ID, w.now()); err != nil {
		// Delivered and recorded; next run re-selects the subscription
		// but the ledger filters everything out.
		log.Printf("worker: sub=%d owner=%d update last run: %v", sub.ID, sub.OwnerID, err)
	}
	return outcomeDelivered
}

// fetch returns the current provider results for the subscription, through
// the cache. The outcome is outcomeDelivered on success, or the terminal
// outcome to record otherwise.
func (w *Worker) fetch(ctx context.Context, sub *model.Subscription) ([]model.PaperSummary, outcome) {
	if papers, ok := w.cache.Get(ctx, sub.Topic, sub.Categories, 0, w.opts.SearchLimit); ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return papers, outcomeDelivered
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	if res := w.limiter.Check(sub.OwnerID, ratelimit.OpSearch); !res.Allowed {
		metrics.RateLimitDeferrals.WithLabelValues(string(ratelimit.OpSearch)).Inc()
		log.Printf("worker: sub=%d owner=%d search rate limited, retry in %s", sub.ID, sub.OwnerID, res.RetryAfter)
		return nil, outcomeDeferred
	}

	papers, err := w.source.Search(ctx, sub.Topic, sub.Categories, 0, w.opts.SearchLimit)
	if err != nil {
		metrics.ProviderQueries.WithLabelValues("error").Inc()
		log.Printf("worker: sub=%d owner=%d topic=%q provider: %v", sub.ID, sub.OwnerID, sub.Topic, err)
		return nil, outcomeFailed
	}
	metrics.ProviderQueries.WithLabelValues("ok").Inc()

	// Best-effort cache fill; a failed write is logged inside Set and the
	// fetch still succeeds.
	w.cache.Set(ctx, sub.Topic, sub.Categories, 0, w.opts.SearchLimit, papers)
	return papers, outcomeDelivered
}

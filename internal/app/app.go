package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/paperwatch/internal/cache"
	"github.com/example/paperwatch/internal/config"
	"github.com/example/paperwatch/internal/metrics"
	"github.com/example/paperwatch/internal/model"
	"github.com/example/paperwatch/internal/ratelimit"
	"github.com/example/paperwatch/internal/service"
)

// BatchRunner is the worker entry point the trigger surface exposes.
type BatchRunner interface {
	ProcessSubscriptions(ctx context.Context, run service.RunOptions) (model.BatchResult, error)
}

// Pinger is the optional cache store health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App wires the worker to its triggers: the HTTP surface, the internal
// schedule ticker and the rate limiter sweep.
type App struct {
	cfg     *config.Config
	worker  BatchRunner
	limiter *ratelimit.Limiter
	cache   *cache.ResultCache
	store   Pinger

	// runMu serializes explicit triggers with the schedule ticker inside
	// this process. Overlapping runs across processes stay safe because
	// due-ness is recomputed from persisted state.
	runMu sync.Mutex
}

func New(cfg *config.Config, worker BatchRunner, limiter *ratelimit.Limiter, resultCache *cache.ResultCache, store Pinger) *App {
	return &App{cfg: cfg, worker: worker, limiter: limiter, cache: resultCache, store: store}
}

// Run starts the HTTP server and the background loops, blocking until the
// context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.router()}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduleRuns(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweepLimiter(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

func (a *App) router() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", a.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := r.Group("/internal", a.requireTriggerSecret)
	{
		internal.POST("/run", a.handleRun)
		internal.POST("/cache/clear", a.handleCacheClear)
	}
	return r
}

// requireTriggerSecret is the shared-secret check for the cron caller. The
// worker itself does no authorization.
func (a *App) requireTriggerSecret(c *gin.Context) {
	if a.cfg.TriggerSecret != "" && c.GetHeader("X-Trigger-Secret") != a.cfg.TriggerSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad trigger secret"})
		return
	}
	c.Next()
}

type runRequest struct {
	MaxSubscriptions int  `json:"max_subscriptions"`
	DryRun           bool `json:"dry_run"`
}

func (a *App) handleRun(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	result, err := a.runBatch(c.Request.Context(), service.RunOptions{
		MaxSubscriptions: req.MaxSubscriptions,
		DryRun:           req.DryRun,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *App) handleCacheClear(c *gin.Context) {
	n, err := a.cache.ClearAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "deleted": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (a *App) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "cache_enabled": a.cache.Enabled()}
	if a.store != nil {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(pingCtx); err != nil {
			// Degraded, not down: the cache is an optimization.
			status["cache_store"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, status)
}

func (a *App) runBatch(ctx context.Context, run service.RunOptions) (model.BatchResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.RunDeadline)
	defer cancel()
	return a.worker.ProcessSubscriptions(runCtx, run)
}

func (a *App) scheduleRuns(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ScheduleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.runBatch(ctx, service.RunOptions{}); err != nil {
				log.Println("scheduled run:", err)
			}
		}
	}
}

// sweepLimiter prunes idle rate limit windows on a cadence independent of
// admission checks.
func (a *App) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Sweep(); n > 0 {
				log.Printf("rate limiter: swept %d idle windows", n)
			}
			metrics.RateLimiterWindows.Set(float64(a.limiter.Size()))
		}
	}
}

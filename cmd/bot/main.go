package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/example/paperwatch/internal/app"
	"github.com/example/paperwatch/internal/cache"
	"github.com/example/paperwatch/internal/config"
	"github.com/example/paperwatch/internal/ratelimit"
	"github.com/example/paperwatch/internal/repository"
	"github.com/example/paperwatch/internal/service"
	"github.com/example/paperwatch/pkg/arxiv"
	"github.com/example/paperwatch/pkg/kvstore"
	"github.com/example/paperwatch/pkg/telegram"
)

func main() {
	godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	subs, err := repository.NewPostgresSubscriptionRepository(cfg.DBConnString, cfg.MaxActiveSubscriptions)
	if err != nil {
		log.Fatal(err)
	}
	defer subs.Close()

	ledger, err := repository.NewPostgresViewLedger(subs.DB())
	if err != nil {
		log.Fatal(err)
	}

	// The cache configuration is parsed up front; a bad one disables the
	// cache for the process lifetime instead of failing startup.
	resultCache := cache.Disabled()
	var store app.Pinger
	if kvCfg, err := kvstore.ParseConfig(cfg.KVRestURL, cfg.KVRestToken); err != nil {
		log.Printf("result cache disabled: %v", err)
	} else {
		kv := kvstore.NewClient(kvCfg)
		resultCache = cache.New(kv, cfg.CachePrefix, cfg.CacheTTL)
		store = kv
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window: cfg.RateWindow,
		Limits: map[ratelimit.Op]int{
			ratelimit.OpSearch: cfg.RateMaxSearches,
			ratelimit.OpSend:   cfg.RateMaxSends,
		},
		Retention: cfg.SweepRetention,
	})

	worker := service.NewWorker(
		subs,
		ledger,
		arxiv.NewClient(cfg.ArxivBaseURL),
		resultCache,
		limiter,
		telegram.NewClient(cfg.TelegramToken),
		service.Options{
			Concurrency:         cfg.WorkerConcurrency,
			SubscriptionTimeout: cfg.SubscriptionTimeout,
			DigestMaxPapers:     cfg.DigestMaxPapers,
		},
	)

	application := app.New(cfg, worker, limiter, resultCache, store)
	if err := application.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

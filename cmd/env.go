package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/collector"
	"github.com/d28khalil/Bidnology-sub001/internal/engine"
	"github.com/d28khalil/Bidnology-sub001/internal/enrich"
	"github.com/d28khalil/Bidnology-sub001/internal/lock"
	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/resilience"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the wired sync engine for commands that run syncs.
type env struct {
	store    store.Store
	orc      *engine.Orchestrator
	resolver *engine.Resolver
	runOpts  engine.RunOpts
}

func initEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate("sync"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Collect.MaxRetries
	retry.OnRetry = resilience.RetryLogger("collector", "fetch")

	col := collector.NewHTTP(collector.FeedParser{}, collector.HTTPOptions{
		UserAgent:  cfg.Collect.UserAgent,
		Timeout:    cfg.Sync.DetailTimeout(),
		RatePerSec: cfg.Collect.RatePerSec,
		Burst:      cfg.Collect.Burst,
		Retry:      retry,
	})

	var emitter enrich.Emitter = enrich.LogEmitter{}
	if cfg.Enrich.WebhookURL != "" {
		emitter = enrich.NewHTTPEmitter(cfg.Enrich.WebhookURL, cfg.Enrich.Timeout())
	}

	locks := lock.NewManager(cfg.Sync.LockMaxAge())
	orc := engine.NewOrchestrator(st, col, locks, engine.NewGate(st, emitter), engine.Options{
		DetailConcurrency: cfg.Sync.DetailConcurrency,
		DetailTimeout:     cfg.Sync.DetailTimeout(),
		RunTimeout:        cfg.Sync.RunTimeout(),
		RecordUnchanged:   cfg.Sync.RecordUnchanged,
	})

	return &env{
		store:    st,
		orc:      orc,
		resolver: engine.NewResolver(st),
		runOpts:  engine.RunOpts{Sweep: cfg.Sync.Sweep},
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// notifySummary posts a finished run summary to the configured webhook.
// Delivery is best-effort; failures are logged, never retried.
func notifySummary(ctx context.Context, sum *model.RunSummary) {
	if cfg.Notify.WebhookURL == "" {
		return
	}

	payload, err := json.Marshal(sum)
	if err != nil {
		zap.L().Warn("notify: marshal summary", zap.Error(err))
		return
	}

	nctx, cancel := context.WithTimeout(ctx, cfg.Notify.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(nctx, http.MethodPost, cfg.Notify.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		zap.L().Warn("notify: build request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		zap.L().Warn("notify: post summary", zap.String("run_id", sum.ID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		zap.L().Warn("notify: webhook rejected summary",
			zap.String("run_id", sum.ID),
			zap.Int("status", resp.StatusCode),
		)
	}
}

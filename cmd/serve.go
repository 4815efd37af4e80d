package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/engine"
	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and periodic scheduler",
	Long:  "Serves sync trigger webhooks and run history, and syncs every enabled source on a fixed interval.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/sync", handleSyncWebhook(e))
		r.Get("/runs", handleListRuns(e))

		sched := engine.NewScheduler(e.orc, e.store, cfg.Sync.Interval(), e.runOpts)
		go func() {
			if err := sched.Run(ctx); err != nil && !eris.Is(err, context.Canceled) {
				zap.L().Error("scheduler stopped", zap.Error(err))
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleSyncWebhook accepts change notifications like
// {"source": "RealForeclose | Essex"} and kicks off a sync asynchronously.
// An unresolvable source name is the caller's mistake and gets a 404.
func handleSyncWebhook(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source string `json:"source"`
			Sweep  *bool  `json:"sweep,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Source == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source is required"})
			return
		}

		src, err := e.resolver.Resolve(r.Context(), req.Source)
		if err != nil {
			status := http.StatusBadRequest
			if eris.Is(err, engine.ErrUnknownSource) {
				status = http.StatusNotFound
			}
			zap.L().Warn("webhook rejected", zap.String("source", req.Source), zap.Error(err))
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		runOpts := e.runOpts
		if req.Sweep != nil {
			runOpts.Sweep = *req.Sweep
		}

		// The portal notification only says "something changed"; the run
		// itself figures out what. Respond immediately and sync in the
		// background.
		go func() {
			ctx := context.WithoutCancel(r.Context())
			sum, err := e.orc.SyncSource(ctx, *src, runOpts)
			if err != nil {
				zap.L().Error("webhook sync failed",
					zap.String("source", src.TriggerName()),
					zap.Error(err),
				)
				return
			}
			notifySummary(ctx, sum)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"source": src.TriggerName(),
		})
	}
}

// handleListRuns exposes recent run summaries, filterable by source and
// status.
func handleListRuns(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := runFilterFromQuery(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		runs, err := e.store.ListRunSummaries(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func runFilterFromQuery(r *http.Request) (store.RunFilter, error) {
	filter := store.RunFilter{Limit: 50}
	q := r.URL.Query()

	if raw := q.Get("source_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, eris.Errorf("invalid source_id %q", raw)
		}
		filter.SourceID = id
	}
	if raw := q.Get("status"); raw != "" {
		filter.Status = model.RunStatus(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, eris.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"leasing/risk-engine/internal/api"
	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/domain"
	"leasing/risk-engine/internal/scoring"
	"leasing/risk-engine/internal/segments"
	"leasing/risk-engine/internal/store"
)

var (
	servePort int
	seedFile  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the risk evaluation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := buildServices(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		// ── Load seed data ────────────────────────────────────────────────────
		if seedFile != "" {
			if err := loadSeedData(ctx, svc.store, svc.engine, seedFile, logger); err != nil {
				// Seed data is optional.
				logger.Warn("seed data not loaded", "file", seedFile, "reason", err.Error())
			}
		}

		handler := api.NewHandler(svc.engine, svc.store, svc.dispatcher, svc.metrics, logger).
			WithRegistry(svc.registry)
		if svc.refresher != nil {
			handler.WithDealerRefresher(svc.refresher)
		}
		if svc.segments != nil {
			handler.WithSegmentRefresher(svc.segments)
		}
		var auth *api.Authenticator
		if cfg.Auth.Enabled {
			auth = api.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
		}

		// ── Batch job schedules ───────────────────────────────────────────────
		if svc.refresher != nil || svc.segments != nil {
			c := cron.New()
			if svc.refresher != nil {
				if _, err := dealers.Schedule(c, cfg.Dealers.Schedule, svc.refresher, logger); err != nil {
					return err
				}
			}
			if svc.segments != nil {
				if _, err := segments.Schedule(c, cfg.Segments.Schedule, cfg.Segments.WindowMonths, svc.segments, logger); err != nil {
					return err
				}
			}
			c.Start()
			defer func() { <-c.Stop().Done() }()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      api.NewRouter(handler, auth),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("server listening",
				"port", port,
				"store", cfg.Store.Driver,
				"auth", cfg.Auth.Enabled,
				"model_version", svc.engine.Calibration().Version,
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		logger.Info("server stopped")
		return err
	},
}

// loadSeedData evaluates every request in a JSON array and stores the
// results so the API starts with replayable history. Requests already in the
// store are skipped.
func loadSeedData(ctx context.Context, s store.Store, e *scoring.Engine, path string, l *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var requests []domain.RiskEvaluationRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return eris.Wrap(err, "parse seed file")
	}

	var loaded, skipped, invalid int
	for i := range requests {
		req := &requests[i]
		if err := req.Validate(); err != nil {
			l.Warn("invalid seed request", "index", i, "request_id", req.RequestID, "error", err)
			invalid++
			continue
		}
		a := &domain.Assessment{Request: *req, Response: e.Evaluate(req)}
		if err := s.Save(ctx, a); err != nil {
			if !errors.Is(err, store.ErrDuplicateRequest) {
				return eris.Wrapf(err, "seed %s", req.RequestID)
			}
			skipped++
			continue
		}
		loaded++
	}

	l.Info("seed data loaded", "file", path, "loaded", loaded, "skipped", skipped, "invalid", invalid)
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&seedFile, "seed", "", "JSON file of evaluation requests to score and store on startup")
	rootCmd.AddCommand(serveCmd)
}

package app

import (
	"context"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/pipeline"
	"github.com/alanyoungcy/carbitrage/internal/server"
	"github.com/alanyoungcy/carbitrage/internal/server/handler"
	"github.com/alanyoungcy/carbitrage/internal/server/ws"
)

// tasks returns the long-running jobs of a mode. The full mode runs every
// loop plus the API server when server.enabled is set.
func (a *App) tasks(mode string, deps *Dependencies) []pipeline.Task {
	var (
		out      []pipeline.Task
		verifier *pipeline.VerifyRunner
	)
	all := mode == "full"

	if all || mode == "ingest" {
		consumer := pipeline.NewIngestConsumer(deps.SignalBus, deps.Cursors, deps.Ingest, pipeline.IngestConsumerConfig{
			BatchSize:  a.cfg.Pipeline.IngestBatchSize,
			Block:      a.cfg.Pipeline.IngestBlock.Duration,
			RetryDelay: a.cfg.Pipeline.IngestRetryDelay.Duration,
		}, a.logger)
		out = append(out, pipeline.Task{Name: "ingest", Run: consumer.Run})
	}
	if all || mode == "match" {
		runner := pipeline.NewMatchRunner(deps.Hunts, a.logger)
		interval := a.cfg.Pipeline.MatchInterval.Duration
		out = append(out, pipeline.Task{Name: "match", Run: func(ctx context.Context) error {
			return runner.RunLoop(ctx, interval)
		}})
	}
	if all || mode == "verify" {
		verifier = pipeline.NewVerifyRunner(deps.Verify, a.logger)
		interval := a.cfg.Pipeline.VerifyInterval.Duration
		out = append(out,
			pipeline.Task{Name: "verify", Run: func(ctx context.Context) error {
				return verifier.RunLoop(ctx, interval)
			}},
			pipeline.Task{Name: "verify_trigger", Run: func(ctx context.Context) error {
				return verifier.ListenTriggers(ctx, deps.SignalBus)
			}},
		)
	}
	if all || mode == "fingerprint" {
		runner := pipeline.NewFingerprintRunner(deps.Fingerprints, a.logger)
		expr := a.cfg.Pipeline.FingerprintCron
		out = append(out, pipeline.Task{Name: "fingerprint", Run: func(ctx context.Context) error {
			return runner.RunCron(ctx, expr)
		}})
	}
	if mode == "server" || (all && a.cfg.Server.Enabled) {
		out = append(out, a.serverTasks(deps, verifier)...)
	}
	return out
}

// serverTasks builds the API server and its alert hub. verifier is nil when
// no verify loop runs in this process; verification triggers are then
// relayed over the bus to the process that runs it.
func (a *App) serverTasks(deps *Dependencies, verifier *pipeline.VerifyRunner) []pipeline.Task {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now().UTC()})

	var trigger handler.VerifyTrigger
	switch {
	case verifier != nil:
		trigger = verifier.Request
	case deps.SignalBus != nil:
		trigger = pipeline.RelayTrigger(deps.SignalBus)
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Hunts:    handler.NewHuntHandler(deps.Hunts, a.logger),
		Crawl:    handler.NewCrawlHandler(deps.Ingest, deps.SignalBus, a.logger),
		Verify:   handler.NewVerifyHandler(trigger, a.logger),
		Listings: handler.NewListingHandler(deps.ListingStore, deps.PresenceStore, deps.CrawlRunStore, deps.AuditStore, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	return []pipeline.Task{
		{Name: "ws_hub", Run: hub.Run},
		{Name: "server", Run: srv.Run},
	}
}

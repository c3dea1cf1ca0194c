// Package application wires every domain/infrastructure piece into one
// running engine: config, the profile pool and ledger, the three
// acquisition layers, the function-call orchestrator, the request queue
// and its worker, the quota watchdog, the audit log, and the HTTP server.
package application

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application/queue"
	domainacq "github.com/ngoclaw/ngoclaw/gateway/internal/domain/acquisition"
	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/functioncall"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/profile"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/streaming"
	domainwatchdog "github.com/ngoclaw/ngoclaw/gateway/internal/domain/watchdog"
	infraacq "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/acquisition"
	infrabrowser "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/browser"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/config"
	httpif "github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/http"
	"github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/http/handlers"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/mcpforward"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/persistence"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/clock"
	"github.com/ngoclaw/ngoclaw/gateway/pkg/safego"
)

// App bundles every long-running component and their lifecycle.
type App struct {
	cfg *config.Config
	logger *zap.Logger

	session domainbrowser.Session
	pool *profile.Pool
	ledger *persistence.LedgerStore
	audit *persistence.AuditLog
	forwarder *mcpforward.Forwarder

	queue *queue.Queue
	registry *queue.Registry
	worker *queue.Worker
	watchdog *domainwatchdog.Watchdog
	httpServer *httpif.Server

	workerCancel context.CancelFunc
}

// NewApp constructs every component without starting any background
// tasks; call Start to run them.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	session := infrabrowser.NewStubSession(logger)

	pool, err := persistence.LoadProfilePool(cfg.Profiles.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile pool: %w", err)
	}
	ledger := persistence.NewLedgerStore(cfg.Profiles.LedgerDir)
	if err := ledger.Load(pool); err != nil {
		return nil, fmt.Errorf("failed to load cooldown ledger: %w", err)
	}

	db, err := persistence.NewDBConnection(cfg.Audit.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	audit := persistence.NewAuditLog(db, logger)

	var forwarder *mcpforward.Forwarder
	if cfg.MCP.Enabled {
		endpoint := cfg.MCP.Endpoint
		if endpoint == "" {
			home, _ := os.UserHomeDir()
			if fileCfg, _, err := config.LoadMCPConfig(home); err == nil {
				for _, srv := range fileCfg.Servers {
					if srv.Enabled {
						endpoint = srv.Endpoint
						break
					}
				}
			}
		}
		forwarder = mcpforward.New(endpoint, cfg.MCP.Timeout, logger)
	}

	selector, acquirers, err := buildAcquisitionLayers(cfg, session, logger)
	if err != nil {
		return nil, err
	}

	functioncall.FuzzyMatchThreshold = cfg.FunctionCall.FuzzyMatchThreshold
	declCache := functioncall.NewDeclarationsCache()
	orch := functioncall.NewOrchestrator(declCache, cfg.FunctionCall.EmulatedMarker, cfg.FunctionCall.ClearBetweenRequests)

	caps := config.NewCapabilityTable(cfg.Models)

	q := queue.New()
	registry := queue.NewRegistry()

	workerCfg := queue.Config{
		Cooldowns: profile.CooldownDurations{
			RateLimit: cfg.Profiles.RateLimitCooldown,
			QuotaExceeded: cfg.Profiles.QuotaCooldown,
			Canary: cfg.Profiles.CanaryCooldown,
		},
		StreamTimeouts: func() streaming.Timeouts {
			ttfb, silence := streaming.DeriveTimeouts(cfg.Streaming.ResponseCompletionTimeout, cfg.Streaming.TTFBTimeout, cfg.Streaming.SilenceTimeout)
			return streaming.Timeouts{
				TTFB: ttfb,
				Silence: silence,
				SilenceCheck: cfg.Streaming.SilenceCheckInterval,
				MaxSilenceTicks: cfg.Streaming.MaxSilenceTicks,
			}
		}(),
		PseudoStreamDelay: 30 * time.Millisecond,
		InterRequestDelayMin: cfg.Streaming.InterRequestDelayMin,
		InterRequestDelayMax: cfg.Streaming.InterRequestDelayMax,
		ClearChatBetweenReqs: cfg.FunctionCall.ClearBetweenRequests,
	}

	initialProfileID := ""
	if profiles := pool.All(); len(profiles) > 0 {
		initialProfileID = profiles[0].ID
	}
	worker := queue.NewWorker(q, session, pool, ledger, audit, selector, acquirers, orch, caps, initialProfileID, clock.Real, workerCfg, logger)

	watchdog := domainwatchdog.New(cfg.Profiles.WatchdogInterval, func(now time.Time) bool {
		return pool.AllInGlobalCooldown(now)
	}, func(exhausted bool) {
		audit.QuotaState(exhausted)
		if exhausted {
			worker.ModeHolder().Store(queue.ModeQuotaExceeded)
		} else {
			worker.ModeHolder().CAS(queue.ModeQuotaExceeded, queue.ModeNormal)
		}
	}, logger)

	apiKeys, err := config.LoadAPIKeysFile(cfg.Gateway.APIKeysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load api keys file: %w", err)
	}
	apiKeys = append(apiKeys, cfg.Gateway.APIKeys...)

	modelLister := sessionModelLister{session: session}
	health := sessionHealthReporter{session: session}

	httpServer := httpif.NewServer(
		httpif.Config{Host: cfg.Gateway.Host, Port: cfg.Gateway.Port, Mode: "debug", APIKeys: apiKeys},
		q, registry, modelLister, health, worker.ModeHolder(),
		func() map[string]interface{} { return effectiveInfo(cfg) },
		logger,
	)

	return &App{
		cfg: cfg,
		logger: logger,
		session: session,
		pool: pool,
		ledger: ledger,
		audit: audit,
		forwarder: forwarder,
		queue: q,
		registry: registry,
		worker: worker,
		watchdog: watchdog,
		httpServer: httpServer,
	}, nil
}

// Start launches the worker, the quota watchdog, and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	a.workerCancel = cancel
	safego.Go(a.logger, "queue-worker", func() { a.worker.Run(workerCtx) })

	a.watchdog.Start(ctx)

	return a.httpServer.Start(ctx)
}

// Stop shuts down the HTTP server first (stop accepting new work), then
// the watchdog and worker, persisting the ledger one last time.
func (a *App) Stop(ctx context.Context) error {
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Warn("http server shutdown error", zap.Error(err))
	}
	a.watchdog.Stop()
	if a.workerCancel != nil {
		a.workerCancel()
	}
	if err := a.ledger.Persist(a.pool); err != nil {
		a.logger.Warn("final ledger persist failed", zap.Error(err))
	}
	return nil
}

func buildAcquisitionLayers(cfg *config.Config, session domainbrowser.Session, logger *zap.Logger) (*domainacq.Selector, map[domainacq.Layer]domainacq.Acquirer, error) {
	acquirers := make(map[domainacq.Layer]domainacq.Acquirer)
	var checkers []domainacq.EligibilityChecker

	if cfg.Acquisition.WireIntercept.Enabled {
		ca, err := tls.LoadX509KeyPair(cfg.Acquisition.WireIntercept.CACertPath, cfg.Acquisition.WireIntercept.CAKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load wire-intercept CA: %w", err)
		}
		wi := infraacq.NewWireInterceptor(&ca, logger)
		acquirers[domainacq.LayerWireIntercept] = wi
		checkers = append(checkers, wi)
	}
	if cfg.Acquisition.HelperEndpoint.Enabled {
		he := infraacq.NewHelperEndpoint(cfg.Acquisition.HelperEndpoint.BaseURL, cfg.Acquisition.HelperEndpoint.IdleTimeout, logger)
		acquirers[domainacq.LayerHelperEndpoint] = he
		checkers = append(checkers, he)
	}
	ds := infraacq.NewDOMScraper(session, clock.Real, cfg.Acquisition.DOMScrape.PollInterval)
	acquirers[domainacq.LayerDOMScrape] = ds
	checkers = append(checkers, ds)

	return domainacq.NewSelector(checkers...), acquirers, nil
}

func effectiveInfo(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"gateway_port": cfg.Gateway.Port,
		"request_queue_capacity": cfg.Gateway.RequestQueueCapacity,
		"function_call_default_mode": cfg.FunctionCall.DefaultMode,
		"acquisition": map[string]bool{
			"wire_intercept": cfg.Acquisition.WireIntercept.Enabled,
			"helper_endpoint": cfg.Acquisition.HelperEndpoint.Enabled,
		},
		"mcp_enabled": cfg.MCP.Enabled,
		"models": modelIDs(cfg),
	}
}

func modelIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		ids = append(ids, m.ID)
	}
	return ids
}

// sessionModelLister and sessionHealthReporter adapt the blocking
// domainbrowser.Session facade to the non-blocking, ctx-free shape the
// HTTP handler's GET endpoints need; a short background timeout keeps a
// wedged browser from hanging a health check indefinitely.
type sessionModelLister struct{ session domainbrowser.Session }

func (s sessionModelLister) ListModels() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ids, err := s.session.ListModels(ctx)
	if err != nil {
		return nil
	}
	return ids
}

type sessionHealthReporter struct{ session domainbrowser.Session }

func (s sessionHealthReporter) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.session.Connected(ctx)
}

func (s sessionHealthReporter) PageReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.session.PageReady(ctx)
}

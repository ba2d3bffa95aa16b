package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/measurestack/measurestack/agent/internal/config"
	"github.com/measurestack/measurestack/agent/internal/ingest"
	"github.com/measurestack/measurestack/agent/internal/security"
	"github.com/measurestack/measurestack/agent/internal/shipper"
	"github.com/measurestack/measurestack/agent/internal/source"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("spc-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"agent_id", cfg.Agent.AgentID,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"inbox_dir", cfg.Agent.InboxDir,
		"sources", len(cfg.Agent.Sources),
		"poll_interval", cfg.Agent.PollInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := ingest.NewEngine()
	ship := shipper.New(cfg.Agent)
	go ship.Run(ctx)

	accept := func(b *source.Batch) {
		if res := engine.Process(b); res != nil {
			ship.Ship(res)
		}
	}

	var wg sync.WaitGroup

	if cfg.Agent.InboxDir != "" {
		inbox, err := source.NewInbox(cfg.Agent.InboxDir)
		if err != nil {
			slog.Error("inbox disabled", "dir", cfg.Agent.InboxDir, "err", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := inbox.Run(ctx, accept); err != nil {
					slog.Error("inbox stopped", "err", err)
				}
			}()
		}
	}

	// Remote sources are built once.
	var sources []source.Source
	for _, src := range cfg.Agent.Sources {
		s, err := source.New(src)
		if err != nil {
			slog.Error("skipping source, could not build it", "source", src.ID, "err", err)
			continue
		}
		sources = append(sources, s)
		slog.Info("registered source", "id", src.ID, "type", src.Type, "endpoint", src.Endpoint)
	}

	go checkCerts(ctx, cfg.Agent.Sources)

	if len(sources) == 0 && cfg.Agent.InboxDir == "" {
		slog.Warn("no inbox and no sources configured, agent will idle")
	}

	// Remote sources are not rebuilt on reload; a removed source only loses
	// its dedupe history so it ships again if re-added.
	go func() {
		current := cfg
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			for _, id := range config.RemovedSources(current, updated) {
				engine.Forget(id)
				slog.Info("source removed from config", "id", id)
			}
			current = updated
			slog.Info("config hot-reloaded", "sources", len(updated.Agent.Sources))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	for _, s := range sources {
		wg.Add(1)
		go func(s source.Source) {
			defer wg.Done()
			poll(ctx, s, cfg.Agent.PollInterval, accept)
		}(s)
	}

	<-ctx.Done()
	slog.Info("spc-agent shutting down", "pending", ship.Pending())
	wg.Wait()
}

// poll fetches s immediately and then every interval until ctx is done.
func poll(ctx context.Context, s source.Source, interval time.Duration, accept func(*source.Batch)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		b, err := s.Fetch(ctx)
		if err != nil {
			slog.Warn("fetch error", "source", s.ID(), "err", err)
		} else {
			accept(b)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkCerts logs the certificate state of every HTTPS source once at
// startup and then daily.
func checkCerts(ctx context.Context, srcs []config.Source) {
	checker := security.NewChecker()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		for _, src := range srcs {
			cs := checker.Check(ctx, src)
			if cs == nil {
				continue
			}
			switch cs.Status {
			case security.StatusValid:
				slog.Info("source certificate ok", "source", cs.SourceID, "days_left", cs.DaysLeft)
			case security.StatusUnreachable:
				slog.Warn("source certificate check failed", "source", cs.SourceID, "err", cs.Err)
			default:
				slog.Warn("source certificate "+cs.Status, "source", cs.SourceID,
					"days_left", cs.DaysLeft, "not_after", cs.NotAfter, "issuer", cs.Issuer)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

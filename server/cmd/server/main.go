package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/measurestack/measurestack/pkg/wire"
	"github.com/measurestack/measurestack/server/internal/alerts"
	"github.com/measurestack/measurestack/server/internal/api"
	"github.com/measurestack/measurestack/server/internal/auth"
	"github.com/measurestack/measurestack/server/internal/backup"
	"github.com/measurestack/measurestack/server/internal/config"
	"github.com/measurestack/measurestack/server/internal/metrics"
	"github.com/measurestack/measurestack/server/internal/receiver"
	"github.com/measurestack/measurestack/server/internal/store"
	"github.com/measurestack/measurestack/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve dashboard static files from this directory; leave empty to disable")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("env file not loaded", "path", *envFile, "err", err)
	}

	slog.Info("spc-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server
	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"storage", sc.Storage.Backend,
		"backup", sc.Backup.Driver,
		"alert_rules", len(sc.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := openBackend(ctx, sc.Storage)
	if err != nil {
		slog.Error("failed to open storage", "backend", sc.Storage.Backend, "err", err)
		os.Exit(1)
	}
	repo, err := store.Open(ctx, backend)
	if err != nil {
		slog.Error("failed to load repository", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Backup mirror. Restore runs before the mirror subscribes so the
	// restored state is not written straight back.
	var mirror *backup.Mirror
	if blob, err := openBackup(ctx, sc.Backup); err != nil {
		slog.Error("backup disabled", "driver", sc.Backup.Driver, "err", err)
	} else if blob != nil {
		if sc.Backup.Restore {
			if _, err := backup.Restore(ctx, blob, sc.Backup.Key, repo); err != nil {
				slog.Error("backup restore failed", "err", err)
			}
		}
		mirror = backup.NewMirror(blob, sc.Backup.Key)
		repo.Subscribe(mirror.OnChange)
		go mirror.Run(ctx)
	}

	// Alerts engine, re-evaluated after every repository change.
	alertEngine := alerts.New(sc.Alerts)
	evaluate := func() {
		sum, _ := repo.Summary()
		alertEngine.Evaluate(sum)
	}
	repo.Subscribe(func(store.Change) { evaluate() })
	evaluate()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg, repo, alertEngine.Firing)
	if err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	// gRPC server with optional API key authentication interceptor.
	interceptor := auth.APIKeyInterceptor(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key())
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	wire.RegisterDatasetServiceServer(grpcSrv, receiver.New(repo, collector))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(repo, sc.BroadcastInterval)
	repo.Subscribe(func(store.Change) { hub.Notify() })
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(repo, api.Options{
		MaxUploadBytes: sc.MaxUploadBytes,
		Alerts:         alertEngine,
		Observer:       collector,
	}))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", metrics.Handler(reg))

	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			// SPA fallback: unknown paths get index.html.
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	handler := auth.Middleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key(), httpMux,
		"/api/v1/health", "/metrics")

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("spc-server shutting down")
	grpcSrv.GracefulStop()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if mirror != nil {
		<-mirror.Done()
	}
	alertEngine.Wait()
}

func openBackend(ctx context.Context, sc config.StorageConfig) (store.Backend, error) {
	switch sc.Backend {
	case "sqlite":
		return store.OpenSQLite(sc.Path)
	case "postgres":
		return store.OpenPostgres(ctx, sc.DSN())
	default:
		return store.NewMemoryBackend(), nil
	}
}

// openBackup returns nil, nil when backups are disabled.
func openBackup(ctx context.Context, bc config.BackupConfig) (backup.Store, error) {
	switch bc.Driver {
	case "fs":
		return backup.NewFS(bc.Dir)
	case "s3":
		ak, sk := bc.Credentials()
		return backup.NewS3(ctx, backup.S3Config{
			Bucket:          bc.Bucket,
			Region:          bc.Region,
			Endpoint:        bc.Endpoint,
			PathStyle:       bc.PathStyle,
			AccessKeyID:     ak,
			SecretAccessKey: sk,
		})
	default:
		return nil, nil
	}
}

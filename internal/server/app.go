// Package server wires the vault server together: configuration,
// logging, the relational repositories, the file-backed event log, the
// fan-out broker, and the HTTP surface, with graceful shutdown on OS
// signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/config"
	"github.com/emezins/carevault/internal/server/eventlog"
	"github.com/emezins/carevault/internal/server/httpapi"
	"github.com/emezins/carevault/internal/server/pubsub"
	"github.com/emezins/carevault/internal/server/repositories/repomanager"
	"github.com/emezins/carevault/internal/server/services"
	"github.com/emezins/carevault/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	hub    *ws.Hub
	mux    *http.ServeMux
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	repos, err := repomanager.NewPostgresRepositoryManager(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := eventlog.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("event log init error: %w", err)
	}

	// A single instance fans out in process; a Redis address switches to
	// cross-instance pub/sub.
	var broker pubsub.Broker
	if cfg.RedisAddr != "" {
		broker, err = pubsub.NewRedisBroker(context.Background(), cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
	} else {
		broker = pubsub.NewInProcessBroker()
	}

	vault := services.NewVaultService(store, repos.Entities(), repos.Edges(), broker, logger)
	identity := services.NewIdentityService(repos.Entities(), repos.Bindings(), repos.Grants(), repos.Edges(), repos.Transfers(), store, cfg, logger)
	share := services.NewShareService(repos.Grants(), repos.Edges(), repos.Entities(), cfg, logger)
	registry := services.NewRegistryService(repos.Edges(), logger)
	transfer := services.NewTransferService(vault, repos.Entities(), repos.Transfers(), repos.Grants(), repos.Edges(), cfg, logger)
	blob := services.NewBlobService(cfg)

	handler := httpapi.NewHandler(identity, vault, share, registry, transfer, blob, []byte(cfg.SecretKey), logger)
	hub := ws.NewHub(broker, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &App{
		config: cfg,
		logger: logger,
		repos:  repos,
		hub:    hub,
		mux:    mux,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()

	wsHandler := ws.NewHandler(app.hub, []byte(app.config.SecretKey), app.logger)
	app.mux.HandleFunc("/ws", wsHandler.ServeWS(ctx))

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server stopped", "error", err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err.Error())
	}

	if err := app.repos.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err.Error())
	}

	wg.Wait()
	app.logger.Info(context.Background(), "server stopped")
}

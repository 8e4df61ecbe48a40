package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	audiorelay "github.com/goliatone/go-audio-relay"
	"github.com/goliatone/go-audio-relay/auth"
	relaycommand "github.com/goliatone/go-audio-relay/command"
	"github.com/goliatone/go-audio-relay/core"
	"github.com/goliatone/go-audio-relay/gateway"
	"github.com/goliatone/go-audio-relay/inbound"
	relaymigrations "github.com/goliatone/go-audio-relay/migrations"
	"github.com/goliatone/go-audio-relay/relay"
	sqlstore "github.com/goliatone/go-audio-relay/store/sql"
	"github.com/goliatone/go-audio-relay/transcribe"
	"github.com/goliatone/go-audio-relay/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := audiorelay.New(core.Config{},
		audiorelay.WithConfigProvider(core.NewCfgxConfigProvider(core.EnvRawConfigLoader{})),
	)
	if err != nil {
		return fmt.Errorf("resolve configuration: %w", err)
	}
	cfg := app.Config()
	if err := cfg.ValidateRequired(); err != nil {
		return err
	}
	logger := app.GetLogger("relayd")

	var ledger core.DeliveryLedger
	var persistenceClient *persistence.Client
	if cfg.Ledger.Enabled {
		persistenceClient, ledger, err = openLedger(ctx, cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer persistenceClient.Close()
	}

	transcriber := transcribe.NewGroqTranscriber(cfg.Transcriber, app.GetLogger("transcribe"))
	sender := gateway.NewClient(cfg.Gateway, app.GetLogger("gateway"))

	processCmd := relaycommand.NewProcessUploadCommand(transcriber, sender, app.GetLogger("command"))
	subscription := processCmd.Subscribe()
	defer subscription.Unsubscribe()

	var coordinator *relay.Coordinator
	if cfg.Relay.Enabled {
		coordinator = relay.NewCoordinator(cfg.Relay, app.GetLogger("relay"))
		go func() {
			if err := coordinator.Start(ctx); err != nil {
				logger.Error("relay coordinator stopped", "error", err)
			}
		}()
		defer coordinator.Stop()
	}

	mux := buildMux(cfg, coordinator, ledger, app)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr, "relay_enabled", cfg.Relay.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func buildMux(cfg core.Config, coordinator *relay.Coordinator, ledger core.DeliveryLedger, app *audiorelay.App) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"audio-relay"}`))
	})

	processor := upload.ProcessorFunc(func(ctx context.Context, audio []byte, filename string) error {
		return relaycommand.DispatchProcessUpload(ctx, relaycommand.ProcessUploadMessage{
			Audio:    audio,
			Filename: filename,
		})
	})
	uploadHandler := upload.NewHandler(cfg, processor, app.GetLogger("upload")).
		WithMetrics(app.Metrics())
	bearer := auth.NewBearerMiddleware(cfg.Auth, app.GetLogger("auth"))
	mux.Handle("POST /{uuid}/upload", bearer.Wrap(uploadHandler))

	if coordinator != nil {
		callback := inbound.NewCallbackHandler(coordinator, cfg.Relay.CodeKeys, app.GetLogger("inbound"))
		if ledger != nil {
			callback = callback.WithLedger(ledger)
		}
		mux.Handle(cfg.Relay.CallbackPath, callback)
	}

	return mux
}

func openLedger(ctx context.Context, cfg core.LedgerConfig, logger core.Logger) (*persistence.Client, core.DeliveryLedger, error) {
	var dialect string
	var client *persistence.Client

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger database: %w", err)
	}

	switch cfg.Driver {
	case "sqlite3":
		dialect = relaymigrations.DialectSQLite
		client, err = persistence.New(ledgerPersistenceConfig{cfg: cfg}, sqlDB, sqlitedialect.New())
	case "postgres":
		dialect = relaymigrations.DialectPostgres
		client, err = persistence.New(ledgerPersistenceConfig{cfg: cfg}, sqlDB, pgdialect.New())
	default:
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("create persistence client: %w", err)
	}

	err = relaymigrations.Register(ctx, func(_ context.Context, fsDialect string, fsys fs.FS) error {
		if fsDialect != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, dialect)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("apply ledger migrations: %w", err)
	}

	store, err := sqlstore.NewCallbackLedgerStoreFrom(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	if cfg.Retention > 0 {
		cutoff := time.Now().UTC().Add(-cfg.Retention)
		pruned, err := store.Prune(ctx, cutoff)
		if err != nil {
			logger.Warn("ledger retention prune failed", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned expired ledger entries", "count", pruned)
		}
	}

	return client, store, nil
}

type ledgerPersistenceConfig struct {
	cfg core.LedgerConfig
}

func (c ledgerPersistenceConfig) GetDebug() bool {
	return false
}

func (c ledgerPersistenceConfig) GetDriver() string {
	return c.cfg.Driver
}

func (c ledgerPersistenceConfig) GetServer() string {
	return c.cfg.DSN
}

func (c ledgerPersistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c ledgerPersistenceConfig) GetOtelIdentifier() string {
	return "go-audio-relay"
}

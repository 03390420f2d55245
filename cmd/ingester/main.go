// Command ingester runs the NSP alarm ingestion and correlation pipeline.
//
// # Usage
//
//	ingester --config /etc/nsp/ingester.yaml
//
// # Configuration
//
// The ingester can be configured via a YAML config file and/or NSP_*
// environment variables; see internal/config for precedence and defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilot-net/nsp-alarm-ingester/db/migrate"
	"github.com/pilot-net/nsp-alarm-ingester/internal/bus"
	"github.com/pilot-net/nsp-alarm-ingester/internal/cache"
	"github.com/pilot-net/nsp-alarm-ingester/internal/config"
	"github.com/pilot-net/nsp-alarm-ingester/internal/normalizer"
	"github.com/pilot-net/nsp-alarm-ingester/internal/secrets"
	"github.com/pilot-net/nsp-alarm-ingester/internal/session"
	"github.com/pilot-net/nsp-alarm-ingester/internal/store"
	"github.com/pilot-net/nsp-alarm-ingester/internal/subscription"
	"github.com/pilot-net/nsp-alarm-ingester/internal/supervisor"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("nsp-alarm-ingester v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := resolveCredentials(ctx, cfg, logger); err != nil {
		logger.Error("failed to resolve credentials", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.NewStoreFromURL(dbCtx, cfg.Database.URL)
	dbCancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	migCtx, migCancel := context.WithTimeout(ctx, 5*time.Minute)
	err = migrate.Run(migCtx, db.Pool(), logger)
	migCancel()
	if err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	var ctxProvider normalizer.ContextProvider = db
	var invalidator store.Invalidator
	if cfg.Redis.URL != "" {
		contextCache, err := cache.New(cfg.Redis.URL, db, logger)
		if err != nil {
			logger.Warn("context cache disabled - redis connection failed", "error", err)
		} else {
			ctxProvider = contextCache
			invalidator = contextCache
			logger.Info("context cache enabled")
		}
	} else {
		logger.Info("context cache disabled - redis.url not set")
	}

	norm, err := normalizer.New(cfg.Normalizer.Timezone)
	if err != nil {
		logger.Error("failed to initialize normalizer", "error", err)
		os.Exit(1)
	}

	sess, err := session.New(ctx, session.Config{
		AuthURL:            cfg.Gateway.AuthURL(),
		RevocationURL:      cfg.Gateway.RevocationURL(),
		Username:           cfg.Gateway.Username,
		Password:           cfg.Gateway.Password,
		Timeout:            cfg.Gateway.RequestTimeout,
		InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
	}, logger)
	if err != nil {
		logger.Error("failed to establish session", "error", err)
		os.Exit(1)
	}

	subscriber := subscription.New(subscription.Config{
		BaseURL:            cfg.Gateway.SubscriptionBaseURL(),
		Timeout:            cfg.Gateway.RequestTimeout,
		InsecureSkipVerify: cfg.Gateway.InsecureSkipVerify,
	}, sess, logger)

	consumerFunc := func(topicID string) (*bus.Consumer, error) {
		return bus.New(bus.Config{
			Brokers:            cfg.Bus.Brokers,
			Topic:              topicID,
			KeystorePath:       cfg.Bus.KeystorePath,
			KeystorePassword:   cfg.Bus.KeystorePassword,
			CAPath:             cfg.Bus.CAPath,
			InsecureSkipVerify: cfg.Bus.InsecureSkipVerify,
		}, norm, ctxProvider, db, invalidator, logger), nil
	}

	sp := supervisor.New(sess, subscriber, cfg.Gateway.RenewInterval, consumerFunc, logger)

	logger.Info("ingester starting")
	if err := sp.Run(ctx); err != nil {
		logger.Error("ingester exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("ingester stopped")
}

// loadConfig builds a Config from a file, if given, or defaults, then
// layers environment variable overrides on top per internal/config's
// documented precedence.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// resolveCredentials fills in any gateway/bus credential fields still
// empty after file and env loading from the configured secrets backend,
// falling back silently if no credential has been provisioned there.
func resolveCredentials(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Gateway.Username != "" && cfg.Gateway.Password != "" && cfg.Bus.KeystorePassword != "" {
		return nil
	}

	secretsCfg := secrets.ConfigFromEnv()
	if cfg.Secrets.Backend != "" {
		secretsCfg.Backend = cfg.Secrets.Backend
	}
	if cfg.Secrets.OnePasswordToken != "" {
		secretsCfg.OnePasswordToken = cfg.Secrets.OnePasswordToken
	}
	if cfg.Secrets.OnePasswordVault != "" {
		secretsCfg.OnePasswordVault = cfg.Secrets.OnePasswordVault
	}
	if cfg.Secrets.LocalKeyDir != "" {
		secretsCfg.LocalKeyDir = cfg.Secrets.LocalKeyDir
	}

	credStore, err := secrets.NewCredentialStore(secretsCfg, logger)
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	defer credStore.Close()

	creds, err := credStore.GetCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if creds == nil {
		return nil
	}

	if cfg.Gateway.Username == "" {
		cfg.Gateway.Username = creds.Username
	}
	if cfg.Gateway.Password == "" {
		cfg.Gateway.Password = creds.Password
	}
	if cfg.Bus.KeystorePassword == "" {
		cfg.Bus.KeystorePassword = creds.KeystorePassword
	}
	return nil
}

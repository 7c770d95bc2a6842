package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cyberswap/config"
	"cyberswap/core/events"
	"cyberswap/core/host"
	"cyberswap/core/types"
	"cyberswap/indexer"
	"cyberswap/observability/logging"
	telemetry "cyberswap/observability/otel"
	"cyberswap/rpc"
	"cyberswap/storage"
)

var version = "dev"

const genesisPathEnv = "CYBERSWAP_GENESIS"

func main() {
	configFile := flag.String("config", "./escrowd.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides CYBERSWAP_GENESIS and config GenesisFile)")
	issueToken := flag.String("issue-token", "", "Print a bearer token for the given address and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken, *tokenTTL); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(logging.Options{
		Service: "escrowd",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})

	if err := run(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile), logger); err != nil {
		logger.Error("escrowd stopped", "error", err)
		os.Exit(1)
	}
}

func resolveGenesisPath(flagValue, configured string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(genesisPathEnv)); v != "" {
		return v
	}
	return strings.TrimSpace(configured)
}

func run(cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "escrowd",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	logger.Info("storage opened", "backend", cfg.Backend, "data_dir", cfg.DataDir)

	router, err := cfg.FeeRouter()
	if err != nil {
		return err
	}

	var emitters events.Fanout
	var journal *indexer.Journal
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		gdb, err := indexer.Open(cfg.Indexer.Driver, dsn)
		if err != nil {
			return err
		}
		if journal, err = indexer.NewJournal(gdb, logger); err != nil {
			return err
		}
		emitters = append(emitters, journal)
		logger.Info("event indexer enabled", "backend", cfg.Indexer.Driver, "dsn", logging.RedactDSN(dsn))
	}

	h := host.New(db, host.Options{
		Emitter: emitters,
		Router:  router,
		Pauses:  cfg.PauseView(),
		Logger:  logger,
	})
	defer h.Close()

	if err := applyGenesis(ctx, h, genesisPath, logger); err != nil {
		return err
	}

	opts := rpc.Options{
		Backend:      h,
		Logger:       logger,
		RateLimiter:  rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
		Timeouts: rpc.Timeouts{
			ReadHeader: cfg.RPC.ReadHeaderTimeoutDuration(),
			Read:       cfg.RPC.ReadTimeoutDuration(),
			Write:      cfg.RPC.WriteTimeoutDuration(),
			Idle:       cfg.RPC.IdleTimeoutDuration(),
		},
	}
	if journal != nil {
		opts.Events = journal
	}
	if cfg.Auth.Enabled {
		opts.Auth = rpc.NewAuthenticator(rpc.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			ClockSkew:  cfg.Auth.ClockSkewDuration(),
		})
	}
	return rpc.NewServer(opts).Serve(ctx, cfg.ListenAddress)
}

// applyGenesis seeds a fresh database. An initialised database ignores the
// genesis file.
func applyGenesis(ctx context.Context, h *host.Host, path string, logger *slog.Logger) error {
	ok, err := h.Initialised(ctx)
	if err != nil {
		return err
	}
	if ok {
		logger.Info("escrow state found, skipping genesis")
		return nil
	}
	if path == "" {
		return errors.New("escrow is not initialised and no genesis file is configured")
	}
	genesis, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	if err := h.InitGenesis(ctx, genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied", "admin", genesis.Escrow.Admin.String())
	return nil
}

func printToken(cfg *config.Config, subject string, ttl time.Duration) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return errors.New("auth.HMACSecret is not configured")
	}
	addr, err := types.ParseAddress(subject)
	if err != nil {
		return fmt.Errorf("issue-token: %w", err)
	}
	token, err := rpc.IssueToken(cfg.Auth.HMACSecret, addr, cfg.Auth.Issuer, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

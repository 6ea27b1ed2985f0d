package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atta2022/ixian-core/apigateway"
	"github.com/atta2022/ixian-core/block"
	"github.com/atta2022/ixian-core/cryptoadapter"
	"github.com/atta2022/ixian-core/wallet"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("ixian-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "APIGateway bind address host:port")
	fs.StringVar(&cfg.APIPrefix, "api-prefix", defaults.APIPrefix, "APIGateway URL prefix")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	authUsersRaw := fs.String("auth-users", "", "comma-separated user:pass pairs required for API access; empty means open")
	passphrase := fs.String("keystore-passphrase", "", "passphrase protecting the node's local keystore (required)")
	genesis := fs.Bool("genesis", false, "create a new keystore and genesis block if none exists")
	dryRun := fs.Bool("dry-run", false, "print effective config, load identity and registry (and genesis block if requested), then exit without serving")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	authorizedUsers, err := parseAuthorizedUsers(*authUsersRaw)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -auth-users: %v\n", err)
		return 2
	}
	cfg.AuthorizedUsers = authorizedUsers

	logger := newLogger(stderr, cfg.LogLevel)

	if err := printConfig(stdout, cfg); err != nil {
		fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	if *passphrase == "" {
		fmt.Fprintln(stderr, "-keystore-passphrase is required")
		return 2
	}

	adapter := cryptoadapter.DevStdAdapter{}
	domainLock, err := hex.DecodeString(cfg.DomainLockHex)
	if err != nil {
		fmt.Fprintf(stderr, "invalid domain_lock_hex: %v\n", err)
		return 2
	}

	keystorePath := KeystorePath(cfg.DataDir)
	pub, priv, err := loadOrCreateIdentity(keystorePath, *passphrase, *genesis, logger)
	if err != nil {
		fmt.Fprintf(stderr, "identity load failed: %v\n", err)
		return 2
	}

	registry, err := wallet.OpenBoltRegistry(RegistryPath(cfg.DataDir))
	if err != nil {
		fmt.Fprintf(stderr, "registry open failed: %v\n", err)
		return 2
	}
	defer registry.Close()

	addr := wallet.DeriveAddress(pub, adapter)
	registry.SetPrimary(addr, pub, priv)
	if err := registry.Register(addr, pub); err != nil {
		fmt.Fprintf(stderr, "registry register failed: %v\n", err)
		return 2
	}

	var genesisBlock *block.Block
	if *genesis {
		genesisBlock = block.NewBlock(0, 0)
		genesisBlock.BlockChecksum = genesisBlock.CalculateChecksum(domainLock, adapter)
		if err := genesisBlock.ApplySignature(registry, adapter); err != nil {
			fmt.Fprintf(stderr, "genesis signing failed: %v\n", err)
			return 2
		}
		logger.Info("genesis block created", "details", genesisBlock.LogDetails())
	}

	gw := apigateway.New(cfg.BindAddr, apigateway.Config{
		Prefix:          cfg.APIPrefix,
		AuthorizedUsers: cfg.AuthorizedUsers,
		Handler:         newNodeHandler(addr, pub, genesisBlock, adapter),
		Logger:          logger,
	})

	if *dryRun {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- gw.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stderr, "apigateway failed: %v\n", err)
			return 2
		}
	case <-ctx.Done():
		fmt.Fprintln(stdout, "ixian-node shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "apigateway shutdown error: %v\n", err)
		}
	}

	fmt.Fprintln(stdout, "ixian-node stopped")
	return 0
}

func printConfig(w io.Writer, cfg Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

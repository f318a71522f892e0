package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/tokensale"
	"github.com/vitwit/tokensale/clients"
	"github.com/vitwit/tokensale/config"
	"github.com/vitwit/tokensale/httpapi"
	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/metrics"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	configPath := flag.String("config", os.Getenv("TOKENSALE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokensaled: %v\n", err)
		return 1
	}

	log := logger.NewZapLogger(cfg.LogLevel)
	if zl, ok := log.(*logger.ZapLogger); ok {
		defer zl.Sync()
	}
	log.Debug("configuration loaded", map[string]any{"config": config.Describe(cfg)})

	registry := prometheus.NewRegistry()
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.EnableMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewPrometheusRecorderWith(registry)
	}

	ledger, err := buildLedger(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create ledger", map[string]any{"error": err})
		return 1
	}

	quoter, err := buildQuoter(cfg, log)
	if err != nil {
		ledger.Close()
		log.Error("failed to create quoter", map[string]any{"error": err})
		return 1
	}

	sale, err := tokensale.New(cfg, ledger, quoter,
		tokensale.WithLogger(log),
		tokensale.WithMetrics(recorder),
	)
	if err != nil {
		quoter.Close()
		ledger.Close()
		log.Error("failed to initialize sale", map[string]any{"error": err})
		return 1
	}

	if cfg.StateFile != "" {
		if _, err := sale.LoadState(cfg.StateFile); err != nil {
			sale.Close()
			log.Error("failed to restore state", map[string]any{"error": err})
			return 1
		}
	}

	root := chi.NewRouter()
	if cfg.EnableMetrics {
		root.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	root.Mount("/", httpapi.NewRouter(sale, log))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", map[string]any{"addr": cfg.ListenAddr})
		errCh <- srv.ListenAndServe()
	}()

	code := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down", nil)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", map[string]any{"error": err})
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", map[string]any{"error": err})
	}

	// in-flight quotes settle before the state is written
	sale.Close()
	if cfg.StateFile != "" {
		if err := sale.SaveState(cfg.StateFile); err != nil {
			log.Error("failed to save state", map[string]any{"error": err})
			code = 1
		}
	}
	return code
}

func buildLedger(ctx context.Context, cfg *types.SaleConfig, log logger.Logger) (clients.Ledger, error) {
	switch cfg.Ledger.Mode {
	case "evm":
		l, err := clients.NewEVMLedger(ctx, cfg.Ledger)
		if err != nil {
			return nil, err
		}
		log.Info("evm ledger ready", map[string]any{"account": l.Address().Hex(), "rpc": cfg.Ledger.RPCUrl})
		return l, nil
	default:
		owner, err := utils.ParseAddress(cfg.Owner)
		if err != nil {
			return nil, err
		}
		// the sale account is the address a contract deployed by the owner would get
		l := clients.NewMemoryLedger(crypto.CreateAddress(owner, 0))
		for token, raw := range cfg.Ledger.InitialFunds {
			amount, err := utils.ParsePositiveAmount(raw)
			if err != nil {
				return nil, types.NewError(types.ErrConfigError, "initial funds for %s: %v", token, err)
			}
			l.Mint(l.Address(), types.AssetAmount{Token: token, Amount: amount})
		}
		log.Info("memory ledger ready", map[string]any{"account": l.Address().Hex()})
		return l, nil
	}
}

func buildQuoter(cfg *types.SaleConfig, log logger.Logger) (clients.Quoter, error) {
	switch cfg.Oracle.Mode {
	case "http":
		chainID := big.NewInt(1)
		if cfg.Ledger.ChainID > 0 {
			chainID = big.NewInt(cfg.Ledger.ChainID)
		}
		return clients.NewHTTPQuoter(cfg.Oracle,
			clients.WithQuoterLogger(log),
			clients.WithQuoterChainID(chainID),
		)
	default:
		return clients.NewRateQuoter(cfg.Oracle.Rates)
	}
}

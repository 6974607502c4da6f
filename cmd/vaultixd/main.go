package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultix/config"
	"vaultix/core/events"
	"vaultix/core/state"
	"vaultix/core/types"
	"vaultix/crypto"
	"vaultix/observability/logging"
	"vaultix/rpc"
	"vaultix/storage"
)

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for k, v := range payload.Attributes {
				attrs = append(attrs, slog.String(k, v))
			}
		}
	}
	l.logger.Info("ledger event", attrs...)
}

func applyGenesis(manager *state.Manager, accounts []config.GenesisAccount, logger *slog.Logger) error {
	tx := manager.Begin()
	applied, err := tx.GenesisApplied()
	if err != nil {
		tx.Discard()
		return err
	}
	if applied {
		tx.Discard()
		return nil
	}
	for _, account := range accounts {
		addr, err := crypto.DecodeAddress(account.Address)
		if err != nil {
			tx.Discard()
			return fmt.Errorf("genesis account %q: %w", account.Address, err)
		}
		asset := strings.ToUpper(strings.TrimSpace(account.Asset))
		if asset == "" {
			tx.Discard()
			return fmt.Errorf("genesis account %q: asset required", account.Address)
		}
		balance, ok := new(big.Int).SetString(account.Balance, 10)
		if !ok || balance.Sign() <= 0 {
			tx.Discard()
			return fmt.Errorf("genesis account %q: invalid balance %q", account.Address, account.Balance)
		}
		if err := tx.Mint(asset, addr.Raw(), balance); err != nil {
			tx.Discard()
			return err
		}
		logger.Info("seeded genesis balance",
			slog.String("address", account.Address),
			slog.String("asset", asset),
			slog.String("balance", balance.String()),
		)
	}
	if err := tx.SetGenesisApplied(); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	env := flag.String("env", "local", "deployment environment label for log lines")
	flag.Parse()

	logger := logging.Setup("vaultixd", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := applyGenesis(manager, cfg.GenesisAccounts, logger); err != nil {
		logger.Error("failed to apply genesis allocations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, metricsMux); err != nil {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	server := rpc.NewServer(manager, logEmitter{logger: logger}, logger)
	logger.Info("vaultixd ready",
		slog.String("network", cfg.NetworkName),
		slog.String("dataDir", cfg.DataDir),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

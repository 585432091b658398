package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solski/exchange/params"
	"github.com/solski/exchange/pkg/api"
	"github.com/solski/exchange/pkg/exchange"
	"github.com/solski/exchange/pkg/storage"
	"github.com/solski/exchange/pkg/token"
	"github.com/solski/exchange/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Token ledger ----
	// In-process Solski token; its full supply goes to the deployer
	// account so funds can be distributed for testing.
	registry := token.NewRegistry(cfg.Exchange.Address)
	deployer := cfg.Exchange.Address
	if v := os.Getenv("TOKEN_DEPLOYER"); common.IsHexAddress(v) {
		deployer = common.HexToAddress(v)
	}
	tokenAddr := common.HexToAddress("0x5133000000000000000000000000000000000000")
	if v := os.Getenv("TOKEN_ADDRESS"); common.IsHexAddress(v) {
		tokenAddr = common.HexToAddress(v)
	}
	slk := token.NewSolski(tokenAddr, deployer)
	registry.Register(slk)
	sugar.Infow("token_registered",
		"address", slk.Address().Hex(), "symbol", slk.Symbol(), "supply", slk.TotalSupply().String())

	// ---- Persistence ----
	store, err := storage.Open(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Exchange ----
	x, err := exchange.New(exchange.Config{
		Address:    cfg.Exchange.Address,
		FeeAccount: cfg.Exchange.FeeAccount,
		FeePercent: cfg.Exchange.FeePercent,
		Ledger:     registry,
		Store:      store,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}
	sugar.Infow("exchange_started",
		"fee_account", x.FeeAccount().Hex(),
		"fee_percent", x.FeePercent(),
		"orders", x.OrderCount())

	// ---- API Server ----
	server := api.NewServer(x, sugar)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	sugar.Info("shutting down")
}

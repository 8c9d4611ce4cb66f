package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dantemarket/config"
	"dantemarket/core/events"
	"dantemarket/core/state"
	"dantemarket/crypto"
	"dantemarket/native/assets"
	nativecommon "dantemarket/native/common"
	"dantemarket/native/market"
	"dantemarket/native/token"
	"dantemarket/observability/logging"
	"dantemarket/observability/metrics"
	"dantemarket/rpc"
	"dantemarket/storage"
)

const (
	rpcTokenEnv = "MARKET_RPC_TOKEN"
	envNameEnv  = "MARKET_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memoryFlag := flag.Bool("memory", false, "DEV ONLY: run against an in-memory store instead of LevelDB")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envNameEnv))
	logger := logging.Setup("marketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var db storage.Database
	if *memoryFlag {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	manager := state.NewManager(db)

	roles := nativecommon.NewStaticRoles()
	for _, addr := range cfg.AdminAddresses {
		roles.Grant(nativecommon.RoleAdmin, crypto.MustDecodeAddress(addr).Array())
	}
	for _, addr := range cfg.MinterAddresses {
		roles.Grant(nativecommon.RoleMinter, crypto.MustDecodeAddress(addr).Array())
	}

	recorder := events.NewRecorder(4096)
	emitter := events.MultiEmitter{recorder, metrics.NewEmitter()}

	tokenLedger := token.NewLedger()
	tokenLedger.SetState(manager)
	tokenLedger.SetRoles(roles)
	tokenLedger.SetEmitter(emitter)
	supplyCap, err := cfg.SupplyCap()
	if err != nil {
		logger.Error("Invalid supply cap", slog.Any("error", err))
		os.Exit(1)
	}
	tokenLedger.SetSupplyCap(supplyCap)

	assetLedger := assets.NewLedger()
	assetLedger.SetState(manager)
	assetLedger.SetRoles(roles)
	assetLedger.SetEmitter(emitter)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetSettlementLedger(tokenLedger)
	engine.SetAssetCustody(assetLedger)
	engine.SetRoles(roles)
	engine.SetFeeTreasury(crypto.MustDecodeAddress(cfg.TreasuryAddress).Array())
	if err := engine.SetFees(cfg.BuyerFeeBps, cfg.SellerFeeBps); err != nil {
		logger.Error("Invalid fee configuration", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetEmitter(emitter)

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = strings.TrimSpace(cfg.RPCAuthToken)
	}
	if authToken == "" {
		logger.Warn("No RPC auth token configured; privileged methods are disabled")
	}

	logger.Info("marketd starting",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("vault", crypto.NewAddress(crypto.AccountPrefix, vaultBytes()).String()),
	)

	server := rpc.NewServer(engine, tokenLedger, assetLedger, recorder, authToken, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func vaultBytes() []byte {
	vault := market.VaultAddress()
	return vault[:]
}

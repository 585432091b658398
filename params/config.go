// Package params holds daemon configuration loaded from .env files and
// environment variables.
package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Exchange configures the settlement engine. FeeAccount and FeePercent
// are fixed for the lifetime of the instance.
type Exchange struct {
	Address    common.Address // the exchange's custody account on the token ledger
	FeeAccount common.Address // credited with every fill's fee
	FeePercent uint64
}

// Node configures the surrounding daemon.
type Node struct {
	DBPath  string // pebble database directory
	APIAddr string // HTTP/WebSocket listen address
	LogFile string
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:    common.HexToAddress("0xE100000000000000000000000000000000000000"),
			FeeAccount: common.HexToAddress("0xFee0000000000000000000000000000000000000"),
			FeePercent: 10,
		},
		Node: Node{
			DBPath:  "data/exchange.db",
			APIAddr: ":8080",
			LogFile: "data/exchanged.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_ADDRESS"); common.IsHexAddress(v) {
		cfg.Exchange.Address = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Exchange.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if pct, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Exchange.FeePercent = pct
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}

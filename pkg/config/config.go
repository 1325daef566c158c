package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	API struct {
		Port int `env:"PORT" envDefault:"8081"`
	}
	App struct {
		LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
		MetricsPort int    `env:"METRICS_PORT" envDefault:"9010"`
	}
	Oracle struct {
		BaseURL string `env:"PRICE_ORACLE_URL" envDefault:"https://api.coingecko.com/api/v3"`
	}
	Chains struct {
		SolanaRPCURL   string `env:"SOLANA_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
		EthereumRPCURL string `env:"ETHEREUM_RPC_URL"`
	}
	Storage struct {
		// PostgresURI selects the pgx-backed store; when empty the service
		// runs on the in-memory store.
		PostgresURI string `env:"POSTGRES_URI"`
	}
	Watcher struct {
		PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
		Timeout      time.Duration `env:"WATCH_TIMEOUT" envDefault:"30m"`
		TimeWindow   time.Duration `env:"VERIFICATION_TIME_WINDOW" envDefault:"30m"`
	}
	Notifier struct {
		ConfirmationURL string `env:"CONFIRMATION_URL"`
	}
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains node configuration parameters.
type Config struct {
	LogLevel int      `env:"LOG_LEVEL" envDefault:"0"`
	LogJSON  bool     `env:"LOG_JSON" envDefault:"false"`
	HTTP     HTTP     `envPrefix:"HTTP_"`
	Ledger   Ledger   `envPrefix:"LEDGER_"`
	Database Database `envPrefix:"DATABASE_"`
	Archive  Archive  `envPrefix:"MINIO_"`
}

// HTTP contains parameters of the operational status endpoint.
type HTTP struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// Ledger contains connection parameters for the distributed ledger. Endpoints
// are tried in order; the first successful handshake wins.
type Ledger struct {
	Endpoints      []string      `env:"ENDPOINTS" envSeparator:"," envDefault:"localhost:9944"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"15s"`
	HealthInterval time.Duration `env:"HEALTH_INTERVAL" envDefault:"30s"`
	TLS            bool          `env:"TLS" envDefault:"false"`
	// SimulatedChain is the chain name reported while running without a live
	// ledger connection.
	SimulatedChain string `env:"SIMULATED_CHAIN" envDefault:"medledger-local"`
}

// Database contains the audit-log sink connection parameters. An empty DSN
// disables the durable sink; the in-memory audit trail is kept either way.
type Database struct {
	DSN string `env:"DSN"`
}

// Archive contains off-ledger payload archive parameters. An empty endpoint
// disables archiving.
type Archive struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"medledger-payloads"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// NewConfig loads configuration from a .env file (when present) and the
// environment.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the suite at a running relay. The suite is skipped when
// RELAY_URL is empty.
type Config struct {
	RelayURL      string `envconfig:"RELAY_URL"`
	GRPCAddr      string `envconfig:"RELAY_GRPC_ADDR" default:"localhost:9090"`
	ClientID      string `envconfig:"CLIENT_ID" default:"web"`
	ClientSecret  string `envconfig:"CLIENT_SECRET"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"chat-relay"`
	// E2E_DEBUG_JSON dumps gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized step headers
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

package internal

import (
	"chat-relay/auth"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheBadger CacheBackend = "badger"
	CacheRedis  CacheBackend = "redis"
)

type Config struct {
	HTTPPort  int `env:"HTTP_PORT,default=8080"`
	GRPCPort  int `env:"GRPC_PORT,default=9090"`
	DebugPort int `env:"DEBUG_PORT,default=8081"`

	EncryptionKey string `env:"ENCRYPTION_KEY,required=true"`
	// ClientSecrets is "id=secret,id=secret".
	ClientSecrets      string        `env:"CLIENT_SECRETS,required=true"`
	SignatureAlgorithm string        `env:"SIGNATURE_ALGORITHM,default=sha256"`
	AuthWindow         time.Duration `env:"AUTH_WINDOW,default=60s"`
	NonceTTL           time.Duration `env:"NONCE_TTL,default=0s"`
	SecretTTL          time.Duration `env:"SECRET_TTL,default=5m"`
	JWTSecret          string        `env:"JWT_SECRET,required=true"`
	JWTIssuer          string        `env:"JWT_ISSUER,default=chat-relay"`

	CacheBackend  string `env:"CACHE_BACKEND,default=memory"`
	CacheSize     int    `env:"CACHE_SIZE,default=100000"`
	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	SQLitePath     string `env:"SQLITE_PATH,default=receipts.db"`
	MediaRoot      string `env:"MEDIA_ROOT,default=media"`
	MediaBaseURL   string `env:"MEDIA_BASE_URL,default=http://localhost:8080/media"`
	MediaMaxBytes  int64  `env:"MEDIA_MAX_BYTES,default=10485760"`
	LimitMessages  int    `env:"LIMIT_MESSAGES,default=50"`

	NegotiationTimeout time.Duration `env:"NEGOTIATION_TIMEOUT,default=30s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL,default=10s"`
	HealthInterval     time.Duration `env:"HEALTH_INTERVAL,default=15s"`
	HandlerTimeout     time.Duration `env:"HANDLER_TIMEOUT,default=10s"`
	SendBuffer         int           `env:"SEND_BUFFER,default=64"`
	RateLimit          float64       `env:"RATE_LIMIT,default=20"`
	RateBurst          int           `env:"RATE_BURST,default=40"`

	NumberOfWorkers int           `env:"NUMBER_OF_WORKERS,default=5"`
	WorkerIdle      time.Duration `env:"WORKER_IDLE,default=500ms"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS,default=5"`
	BaseBackoff     time.Duration `env:"BASE_BACKOFF,default=1s"`

	ModerationWords string        `env:"MODERATION_WORDS"`
	CharReplacement string        `env:"CHARACTER_REPLACEMENT,default=*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
}

// LoadConfig reads the environment, after the optional dotenv files. A
// missing file is not an error; variables already set win over the files.
func LoadConfig(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, err
	}
	return config, config.validate()
}

func (c Config) validate() error {
	if _, err := c.Backend(); err != nil {
		return err
	}
	if _, err := auth.ParseAlgorithm(c.SignatureAlgorithm); err != nil {
		return err
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	if c.AuthWindow <= 0 {
		return fmt.Errorf("AUTH_WINDOW must be positive, got %s", c.AuthWindow)
	}
	// Zero derives the TTL from the window
	if minTTL := auth.MinNonceTTL(c.AuthWindow); c.NonceTTL != 0 && c.NonceTTL < minTTL {
		return fmt.Errorf("NONCE_TTL must be at least %s for AUTH_WINDOW %s, got %s", minTTL, c.AuthWindow, c.NonceTTL)
	}
	return nil
}

func (c Config) Backend() (CacheBackend, error) {
	switch b := CacheBackend(strings.ToLower(c.CacheBackend)); b {
	case CacheMemory, CacheBadger, CacheRedis:
		return b, nil
	}
	return "", fmt.Errorf("CACHE_BACKEND must be memory, badger or redis, got %q", c.CacheBackend)
}

// Words splits MODERATION_WORDS on commas.
func (c Config) Words() []string {
	var words []string
	for _, w := range strings.Split(c.ModerationWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

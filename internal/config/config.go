package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/constants"
	"github.com/gagliardetto/solana-go"
)

type Config struct {
	// Service
	HTTPAddr   string
	DataDir    string
	TokensFile string
	QuoteToken string // symbol two-hop routes go through
	DevMode    bool
	LogLevel   string

	// Redis settings (relay cache, events, switches)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse settings; an empty address keeps archives local only
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// RPC settings
	RPCUrl           string
	Commitment       string
	PollInterval     time.Duration
	FetchDelay       time.Duration
	RelayTTL         time.Duration
	RelayMetricsAddr string // relay /metrics listener, empty disables it
	// token accounts of the treasury the relay watches besides the treasury
	WatchAddresses []string

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Ledger gateway
	LedgerGatewayURL string
	LedgerTimeout    time.Duration

	// Treasury
	Treasury         string // account on the token ledgers
	SolanaTreasury   string // base58 pubkey receiving Solana payments
	WalletPrivateKey string // signs Solana payouts; empty disables them
	ConfirmTimeout   time.Duration
	SignatureWindow  time.Duration

	// Fees and limits
	LPFeeBps       uint32
	ProtocolFeeBps uint32
	MaxSlippageBps uint32

	// Claims
	ClaimRetryInterval time.Duration
	ClaimMaxAttempts   int

	// Archive
	ArchiveRetention time.Duration
	ArchiveInterval  time.Duration
	ArchiveBatchSize int

	// API
	APIKeys      []string
	AdminCallers []string
	RateLimit    float64 // requests per second per caller, 0 disables
	RateBurst    int
}

func Load() *Config {
	return &Config{
		// Service
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		DataDir:    getEnv("DATA_DIR", "./data"),
		TokensFile: getEnv("TOKENS_FILE", "configs/tokens.json"),
		QuoteToken: getEnv("QUOTE_TOKEN", "ckUSDT"),
		DevMode:    getBoolEnv("DEV_MODE", false),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "settlement"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// RPC
		RPCUrl:           getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		Commitment:       getEnv("SOLANA_COMMITMENT", "confirmed"),
		PollInterval:     getDurationEnv("POLL_INTERVAL", 5*time.Second),
		FetchDelay:       getDurationEnv("FETCH_DELAY", constants.DelayBetweenTxFetch),
		RelayTTL:         getDurationEnv("RELAY_TTL", 24*time.Hour),
		RelayMetricsAddr: getEnv("RELAY_METRICS_ADDR", ":9102"),
		WatchAddresses:   getListEnv("RELAY_WATCH_ADDRESSES"),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// Ledger gateway
		LedgerGatewayURL: getEnv("LEDGER_GATEWAY_URL", "http://localhost:8000"),
		LedgerTimeout:    getDurationEnv("LEDGER_TIMEOUT", 30*time.Second),

		// Treasury
		Treasury:         getEnv("TREASURY_ACCOUNT", ""),
		SolanaTreasury:   getEnv("SOLANA_TREASURY", ""),
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		ConfirmTimeout:   getDurationEnv("CONFIRM_TIMEOUT", 60*time.Second),
		SignatureWindow:  getDurationEnv("SIGNATURE_WINDOW", 5*time.Minute),

		// Fees
		LPFeeBps:       getUint32Env("LP_FEE_BPS", constants.DefaultLPFeeBps),
		ProtocolFeeBps: getUint32Env("PROTOCOL_FEE_BPS", constants.DefaultProtocolFeeBps),
		MaxSlippageBps: getUint32Env("MAX_SLIPPAGE_BPS", constants.DefaultMaxSlippageBps),

		// Claims
		ClaimRetryInterval: getDurationEnv("CLAIM_RETRY_INTERVAL", constants.DefaultClaimRetryEvery),
		ClaimMaxAttempts:   getIntEnv("CLAIM_MAX_ATTEMPTS", constants.DefaultClaimMaxAttempts),

		// Archive
		ArchiveRetention: getDurationEnv("ARCHIVE_RETENTION", 30*24*time.Hour),
		ArchiveInterval:  getDurationEnv("ARCHIVE_INTERVAL", time.Hour),
		ArchiveBatchSize: getIntEnv("ARCHIVE_BATCH_SIZE", 500),

		// API
		APIKeys:      getListEnv("API_KEYS"),
		AdminCallers: getListEnv("ADMIN_CALLERS"),
		RateLimit:    getFloatEnv("RATE_LIMIT", 10),
		RateBurst:    getIntEnv("RATE_BURST", 20),
	}
}

// Validate checks what the API service needs to start
func (c *Config) Validate() error {
	var errs []error
	if c.Treasury == "" {
		errs = append(errs, errors.New("TREASURY_ACCOUNT is required"))
	}
	if c.LedgerGatewayURL == "" {
		errs = append(errs, errors.New("LEDGER_GATEWAY_URL is required"))
	}
	if c.SolanaTreasury != "" {
		if _, err := solana.PublicKeyFromBase58(c.SolanaTreasury); err != nil {
			errs = append(errs, fmt.Errorf("SOLANA_TREASURY: %w", err))
		}
	}
	if c.WalletPrivateKey != "" && c.SolanaTreasury == "" {
		errs = append(errs, errors.New("WALLET_PRIVATE_KEY needs SOLANA_TREASURY"))
	}
	if c.LPFeeBps == 0 || c.LPFeeBps >= 10_000 {
		errs = append(errs, fmt.Errorf("LP_FEE_BPS must be in 1..9999, got %d", c.LPFeeBps))
	}
	if c.ProtocolFeeBps > c.LPFeeBps {
		errs = append(errs, fmt.Errorf("PROTOCOL_FEE_BPS %d exceeds LP_FEE_BPS %d", c.ProtocolFeeBps, c.LPFeeBps))
	}
	if c.MaxSlippageBps == 0 || c.MaxSlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("MAX_SLIPPAGE_BPS must be in 1..10000, got %d", c.MaxSlippageBps))
	}
	if c.ClaimRetryInterval <= 0 || c.ArchiveInterval <= 0 {
		errs = append(errs, errors.New("CLAIM_RETRY_INTERVAL and ARCHIVE_INTERVAL must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateRelay checks what the relay needs to start
func (c *Config) ValidateRelay() error {
	if c.RPCUrl == "" {
		return errors.New("SOLANA_RPC_URL is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.SolanaTreasury); err != nil {
		return fmt.Errorf("SOLANA_TREASURY: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint32Env(key string, defaultVal uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(i)
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getListEnv splits a comma separated value, dropping blanks
func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

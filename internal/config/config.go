package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "Akatsuki"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultRunLockTTL       = 20 * time.Minute
	defaultRunBudget        = 14 * time.Minute
	defaultStepTimeout      = 30 * time.Second
	defaultSettleDelay      = 5 * time.Second
	defaultActionInterval   = 300 * time.Millisecond
	defaultTimezone         = "Asia/Tokyo"
	defaultPortalURL        = "https://www.ipat.jra.go.jp/"
	defaultSecretName       = "akatsuki/portal-credentials"
	defaultRoundingUnit     = 100
	defaultStakeFloor       = 100
	defaultTotalBudget      = 5000
	defaultDepositAmount    = 10000
	defaultDepositMaxPerDay = 50000
	defaultNotifyAttempts   = 3
	defaultNotifyDelay      = time.Second
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// PortalTicketUnit is the yen value of one ticket on the portal.
const PortalTicketUnit = 100

// Backend names accepted by LEDGER_BACKEND and SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendObject   = "object"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Insufficient funds policies.
const (
	PolicyReduce = "reduce"
	PolicyFail   = "fail"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	LedgerBackend  string
	SessionBackend string

	ObjectStore ObjectStoreConfig
	Portal      PortalConfig
	Secrets     SecretsConfig
	Stake       StakeConfig
	Funding     FundingConfig
	Run         RunConfig
	Notify      NotifyConfig

	TriggerTokenHash string
	RunLockTTL       time.Duration
}

// ObjectStoreConfig locates the S3 compatible bucket holding ledgers, sessions and summaries.
type ObjectStoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// PortalConfig drives the browser automation surface.
type PortalConfig struct {
	URL         string
	RemoteURL   string
	Headless    bool
	StepTimeout time.Duration
	SettleDelay time.Duration
	DownloadDir string
	// ActionInterval is the minimum spacing between portal interactions.
	ActionInterval time.Duration
}

// SecretsConfig selects where portal credentials come from.
type SecretsConfig struct {
	Provider  string
	Name      string
	EnvPrefix string
}

// StakeConfig holds the allocation parameters in minor currency units.
type StakeConfig struct {
	RoundingUnit  int64
	Floor         int64
	DefaultBudget int64
	SchedulePath  string
}

// FundingConfig holds the deposit policy.
type FundingConfig struct {
	DefaultDeposit     int64
	MaxPerDay          int64
	InsufficientPolicy string
}

// RunConfig holds per-invocation policy.
type RunConfig struct {
	Budget                    time.Duration
	UnverifiedCountsAsFailure bool
	ExecutionIdentity         string
	Timezone                  string
}

// NotifyConfig selects the notification backend and its retry policy.
type NotifyConfig struct {
	Backend       string
	KafkaBrokers  []string
	KafkaTopic    string
	MaxAttempts   int
	RetryDelay    time.Duration
	ChannelOps    string
	ChannelAlerts string
	ChannelBets   string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		LedgerBackend:  strings.ToLower(getEnv("LEDGER_BACKEND", BackendObject)),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendRedis)),
		ObjectStore: ObjectStoreConfig{
			Bucket:   os.Getenv("OBJECT_STORE_BUCKET"),
			Region:   getEnv("OBJECT_STORE_REGION", getEnv("AWS_REGION", "ap-northeast-1")),
			Endpoint: os.Getenv("OBJECT_STORE_ENDPOINT"),
			Prefix:   strings.Trim(os.Getenv("OBJECT_STORE_PREFIX"), "/"),
		},
		Portal: PortalConfig{
			URL:         getEnv("PORTAL_URL", defaultPortalURL),
			RemoteURL:   os.Getenv("CHROME_REMOTE_URL"),
			DownloadDir: getEnv("DOWNLOAD_DIR", os.TempDir()),
		},
		Secrets: SecretsConfig{
			Provider:  strings.ToLower(getEnv("SECRET_PROVIDER", "aws")),
			Name:      getEnv("SECRET_NAME", defaultSecretName),
			EnvPrefix: getEnv("CREDENTIALS_ENV_PREFIX", "PORTAL"),
		},
		Stake: StakeConfig{
			SchedulePath: getEnv("STAKE_SCHEDULE_KEY", "config/bet_amount_schedule.csv"),
		},
		Funding: FundingConfig{
			InsufficientPolicy: strings.ToLower(getEnv("INSUFFICIENT_FUNDS_POLICY", PolicyReduce)),
		},
		Run: RunConfig{
			ExecutionIdentity: getEnv("EXECUTION_IDENTITY", "default"),
			Timezone:          getEnv("TIMEZONE", defaultTimezone),
		},
		Notify: NotifyConfig{
			Backend:       strings.ToLower(getEnv("NOTIFY_BACKEND", "log")),
			KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "akatsuki.notifications"),
			ChannelOps:    getEnv("NOTIFY_CHANNEL_OPS", "ops"),
			ChannelAlerts: getEnv("NOTIFY_CHANNEL_ALERTS", "alerts"),
			ChannelBets:   getEnv("NOTIFY_CHANNEL_BETS", "bets"),
		},
		TriggerTokenHash: os.Getenv("TRIGGER_TOKEN_HASH"),
	}

	var err error
	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if cfg.ShutdownPeriod, err = getDuration(shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}

	if cfg.RunLockTTL, err = getDuration("RUN_LOCK_TTL", defaultRunLockTTL); err != nil {
		return Config{}, err
	}
	if cfg.Run.Budget, err = getDuration("RUN_BUDGET", defaultRunBudget); err != nil {
		return Config{}, err
	}
	if cfg.Run.UnverifiedCountsAsFailure, err = getBool("UNVERIFIED_COUNTS_AS_FAILURE", true); err != nil {
		return Config{}, err
	}
	if cfg.Portal.StepTimeout, err = getDuration("STEP_TIMEOUT", defaultStepTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Portal.SettleDelay, err = getDuration("SETTLE_DELAY", defaultSettleDelay); err != nil {
		return Config{}, err
	}
	if cfg.Portal.ActionInterval, err = getDuration("PORTAL_ACTION_INTERVAL", defaultActionInterval); err != nil {
		return Config{}, err
	}
	if cfg.Portal.Headless, err = getBool("BROWSER_HEADLESS", true); err != nil {
		return Config{}, err
	}
	if cfg.Stake.RoundingUnit, err = getInt64("STAKE_ROUNDING_UNIT", defaultRoundingUnit); err != nil {
		return Config{}, err
	}
	if cfg.Stake.Floor, err = getInt64("STAKE_FLOOR", defaultStakeFloor); err != nil {
		return Config{}, err
	}
	if cfg.Stake.DefaultBudget, err = getInt64("DEFAULT_TOTAL_BUDGET", defaultTotalBudget); err != nil {
		return Config{}, err
	}
	if cfg.Funding.DefaultDeposit, err = getInt64("DEPOSIT_DEFAULT_AMOUNT", defaultDepositAmount); err != nil {
		return Config{}, err
	}
	if cfg.Funding.MaxPerDay, err = getInt64("DEPOSIT_MAX_PER_DAY", defaultDepositMaxPerDay); err != nil {
		return Config{}, err
	}
	attempts, err := getInt64("NOTIFY_MAX_ATTEMPTS", defaultNotifyAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.Notify.MaxAttempts = int(attempts)
	if cfg.Notify.RetryDelay, err = getDuration("NOTIFY_RETRY_DELAY", defaultNotifyDelay); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Backends that need an external
// connection must have it configured.
func (c Config) Validate() error {
	if c.Stake.RoundingUnit <= 0 {
		return fmt.Errorf("STAKE_ROUNDING_UNIT must be positive")
	}
	if c.Stake.RoundingUnit%PortalTicketUnit != 0 {
		return fmt.Errorf("STAKE_ROUNDING_UNIT must be a multiple of %d", PortalTicketUnit)
	}
	if c.Stake.Floor <= 0 || c.Stake.Floor%c.Stake.RoundingUnit != 0 || c.Stake.Floor > c.Stake.RoundingUnit {
		return fmt.Errorf("STAKE_FLOOR must be a positive multiple of STAKE_ROUNDING_UNIT no greater than it")
	}
	if c.Stake.DefaultBudget < 0 {
		return fmt.Errorf("DEFAULT_TOTAL_BUDGET must not be negative")
	}
	if c.Funding.DefaultDeposit < 0 || c.Funding.MaxPerDay < 0 {
		return fmt.Errorf("deposit amounts must not be negative")
	}
	switch c.Funding.InsufficientPolicy {
	case PolicyReduce, PolicyFail:
	default:
		return fmt.Errorf("INSUFFICIENT_FUNDS_POLICY must be %q or %q", PolicyReduce, PolicyFail)
	}
	if c.Run.Budget <= 0 {
		return fmt.Errorf("RUN_BUDGET must be positive")
	}
	if c.Portal.StepTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT must be positive")
	}
	if c.RunLockTTL <= c.Run.Budget+c.Portal.StepTimeout {
		return fmt.Errorf("RUN_LOCK_TTL must exceed RUN_BUDGET plus STEP_TIMEOUT")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Run.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendObject:
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("OBJECT_STORE_BUCKET must be set for the object ledger backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres ledger backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendObject:
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("OBJECT_STORE_BUCKET must be set for the object session backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.Secrets.Provider {
	case "aws", "env":
	default:
		return fmt.Errorf("unknown SECRET_PROVIDER %q", c.Secrets.Provider)
	}

	switch c.Notify.Backend {
	case "log":
	case "kafka":
		if len(c.Notify.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be set for the kafka notifier")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_BACKEND %q", c.Notify.Backend)
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// Location returns the time zone target dates are resolved in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Run.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

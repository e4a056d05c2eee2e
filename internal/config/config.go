package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Gateway       GatewayConfig
	Control       ControlConfig
	Quota         QuotaConfig
	Redis         RedisConfig
	Etcd          EtcdConfig
	Observability ObservabilityConfig
}

type GatewayConfig struct {
	Address         string
	GRPCAddress     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxRequestSize  int64
	MaxGRPCConns    int

	// Mode selects the record store: "fast" keeps records in process memory,
	// "strong" shares them through Redis.
	Mode string

	// UpstreamURL is where admitted transactions are forwarded. Empty means
	// the gateway accepts them locally.
	UpstreamURL string

	// APIKeys authenticate ordinary callers; PrivilegedKeys take the
	// anonymous path and bypass quota enforcement.
	APIKeys        []string
	PrivilegedKeys []string
}

type ControlConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AdminToken gates every control-plane endpoint.
	AdminToken string
}

// QuotaConfig holds the per-deployment window constants. Fixed at startup,
// shared by all accounts.
type QuotaConfig struct {
	// MaxTxPerWindow is the number of transactions admitted per window.
	MaxTxPerWindow uint32

	// MaxBytesPerWindow is the cumulative size ceiling per window.
	MaxBytesPerWindow uint32

	// WindowEpochs is the window length in epochs.
	WindowEpochs uint64

	// EpochLength is the wall-time length of one epoch.
	EpochLength time.Duration
}

type RedisConfig struct {
	Address      string
	Password     string
	Database     int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsAddress string
	TracingEnabled bool
	JaegerEndpoint string
	ServiceName    string
	ServiceVersion string
	LogLevel       string
}

// Load reads the configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Address:         getEnv("TOLLGATE_GATEWAY_ADDRESS", ":8080"),
			GRPCAddress:     getEnv("TOLLGATE_GATEWAY_GRPC_ADDRESS", ":9080"),
			ReadTimeout:     getEnvDuration("TOLLGATE_GATEWAY_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("TOLLGATE_GATEWAY_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("TOLLGATE_GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxRequestSize:  getEnvInt64("TOLLGATE_GATEWAY_MAX_REQUEST_SIZE", 1024*1024), // 1MB
			MaxGRPCConns:    getEnvInt("TOLLGATE_GATEWAY_MAX_GRPC_CONNS", 1024),
			Mode:            getEnv("TOLLGATE_MODE", "fast"),
			UpstreamURL:     getEnv("TOLLGATE_GATEWAY_UPSTREAM_URL", ""),
			APIKeys:         getEnvStringSlice("TOLLGATE_GATEWAY_API_KEYS", nil),
			PrivilegedKeys:  getEnvStringSlice("TOLLGATE_GATEWAY_PRIVILEGED_KEYS", nil),
		},
		Control: ControlConfig{
			Address:         getEnv("TOLLGATE_CONTROL_ADDRESS", ":8081"),
			ReadTimeout:     getEnvDuration("TOLLGATE_CONTROL_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("TOLLGATE_CONTROL_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("TOLLGATE_CONTROL_SHUTDOWN_TIMEOUT", 30*time.Second),
			AdminToken:      getEnv("TOLLGATE_CONTROL_ADMIN_TOKEN", ""),
		},
		Quota: QuotaConfig{
			MaxTxPerWindow:    getEnvUint32("TOLLGATE_QUOTA_MAX_TX", 128),
			MaxBytesPerWindow: getEnvUint32("TOLLGATE_QUOTA_MAX_BYTES", 1024*1024),
			WindowEpochs:      getEnvUint64("TOLLGATE_QUOTA_WINDOW_EPOCHS", 60),
			EpochLength:       getEnvDuration("TOLLGATE_QUOTA_EPOCH_LENGTH", time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnv("TOLLGATE_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("TOLLGATE_REDIS_PASSWORD", ""),
			Database:     getEnvInt("TOLLGATE_REDIS_DATABASE", 0),
			PoolSize:     getEnvInt("TOLLGATE_REDIS_POOL_SIZE", 100),
			MinIdleConns: getEnvInt("TOLLGATE_REDIS_MIN_IDLE_CONNS", 10),
			MaxRetries:   getEnvInt("TOLLGATE_REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvDuration("TOLLGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("TOLLGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("TOLLGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Etcd: EtcdConfig{
			Endpoints:   getEnvStringSlice("TOLLGATE_ETCD_ENDPOINTS", []string{"localhost:2379"}),
			DialTimeout: getEnvDuration("TOLLGATE_ETCD_DIAL_TIMEOUT", 5*time.Second),
			Username:    getEnv("TOLLGATE_ETCD_USERNAME", ""),
			Password:    getEnv("TOLLGATE_ETCD_PASSWORD", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("TOLLGATE_METRICS_ENABLED", true),
			MetricsAddress: getEnv("TOLLGATE_METRICS_ADDRESS", ":2112"),
			TracingEnabled: getEnvBool("TOLLGATE_TRACING_ENABLED", false),
			JaegerEndpoint: getEnv("TOLLGATE_JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("TOLLGATE_SERVICE_NAME", "tollgate-gateway"),
			ServiceVersion: getEnv("TOLLGATE_SERVICE_VERSION", "dev"),
			LogLevel:       getEnv("TOLLGATE_LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint32(uintValue)
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

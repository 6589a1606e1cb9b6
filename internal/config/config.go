// Package config provides configuration management for the qrng-gateway
// application. Configuration is loaded from environment variables with
// sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment constants define the application runtime environments.
const (
	EnvironmentDevelopment = "dev"
	EnvironmentProduction  = "prod"

	defaultAPIAddr           = "127.0.0.1:9797"
	defaultPoolMinBits       = 4096
	defaultPoolMaxBits       = 131072
	defaultReadyMinBits      = 8192
	defaultRetryAfterSeconds = 1
	defaultMetricsBind       = "127.0.0.1:8080"
	defaultMaxRequestBits    = 4096

	defaultBatchSizeBits = 2048    // Bits per batch, roughly ten seconds of nominal acquisition.
	minBatchSizeBits     = 256     // Minimum supported batch size.
	maxBatchSizeBits     = 1048576 // Maximum supported batch size.

	defaultFlushInterval = 10 * time.Second
)

// MQTT contains configuration for the MQTT broker connection.
type MQTT struct {
	BrokerURL string   `json:"broker_url"`  // MQTT broker URL (e.g., "tcp://localhost:1883" or "ssl://mqtt.example.com:8883")
	ClientID  string   `json:"client_id"`   // MQTT client ID (auto-generated if empty)
	Topics    []string `json:"topics"`      // MQTT topics to subscribe to (e.g., ["qrng/measurements/1"])
	QoS       byte     `json:"qos"`         // Quality of Service level (0 or 1)
	Username  string   `json:"username"`    // MQTT username for authentication (optional)
	Password  string   `json:"password"`    // MQTT password for authentication (optional)
	TLSCAFile string   `json:"tls_ca_file"` // Path to CA certificate for TLS verification (optional)
}

// BitPool contains bit pool and block health check configuration.
type BitPool struct {
	PoolMinBits      int `json:"pool_min_bits"`     // Minimum pool size in bits before draws are served
	PoolMaxBits      int `json:"pool_max_bits"`     // Maximum pool size in bits (oldest bits evicted)
	ReadyMinBits     int `json:"ready_min_bits"`    // Minimum bits before the gateway reports ready
	RepetitionCutoff int `json:"repetition_cutoff"` // Longest tolerated run of identical bits per block
	ProportionCutoff int `json:"proportion_cutoff"` // Max count of the dominant bit per proportion window
	ProportionWindow int `json:"proportion_window"` // Proportion check window size in bits
}

// Collector contains batch collector configuration.
type Collector struct {
	BatchSizeBits int           `json:"batch_size_bits"` // Bits per batch (256-1048576)
	FlushInterval time.Duration `json:"flush_interval"`  // Max time a partial batch may sit before flushing
}

// Metrics contains Prometheus metrics server configuration.
type Metrics struct {
	Bind          string `json:"bind"`            // Bind address for metrics server (e.g., "127.0.0.1:8080")
	Enabled       bool   `json:"enabled"`         // Enable metrics server
	TLSEnabled    bool   `json:"tls_enabled"`     // Enable TLS for metrics server
	TLSCertFile   string `json:"tls_cert_file"`   // Path to server certificate for TLS
	TLSKeyFile    string `json:"tls_key_file"`    // Path to server private key for TLS
	TLSCAFile     string `json:"tls_ca_file"`     // Path to CA certificate for mTLS client verification (optional)
	TLSClientAuth string `json:"tls_client_auth"` // mTLS client auth mode: "none", "request", "require" (default: "none")
}

// API contains analysis API server configuration.
type API struct {
	Bind           string `json:"bind"` // Bind address for the analysis API server
	RetryAfterSec  int    `json:"retry_after_sec"`
	AllowPublic    bool   `json:"allow_public"`
	MaxRequestBits int    `json:"max_request_bits"` // Largest bit count a single request may ask for
	RateLimitRPS   int    `json:"rate_limit_rps"`   // Rate limit: requests per second (default: 25)
	RateLimitBurst int    `json:"rate_limit_burst"` // Rate limit: burst allowance (default: 25)
	TLSEnabled     bool   `json:"tls_enabled"`      // Enable TLS for the API server
	TLSCertFile    string `json:"tls_cert_file"`    // Path to server certificate for TLS
	TLSKeyFile     string `json:"tls_key_file"`     // Path to server private key for TLS
	TLSCAFile      string `json:"tls_ca_file"`      // Path to CA certificate for mTLS client verification (optional)
	TLSClientAuth  string `json:"tls_client_auth"`  // mTLS client auth mode: "none", "request", "require" (default: "none")
}

// Baseline contains the pseudorandom baseline generator configuration.
type Baseline struct {
	Seed int64 `json:"seed"` // Seed for the classical baseline generator (0 = time-based)
}

// Config holds the complete application configuration.
type Config struct {
	MQTT        MQTT      `json:"mqtt"`        // MQTT broker configuration
	BitPool     BitPool   `json:"bit_pool"`    // Bit pool configuration
	Collector   Collector `json:"collector"`   // Batch collector configuration
	Metrics     Metrics   `json:"metrics"`     // Metrics server configuration
	API         API       `json:"api"`         // Analysis API server configuration
	Baseline    Baseline  `json:"baseline"`    // Classical baseline generator configuration
	Environment string    `json:"environment"` // Runtime environment ("dev" or "prod")
}

// Load reads configuration from environment variables and returns a validated
// Config. It applies defaults first, then overrides with environment
// variables. Returns an error if the required configuration is missing or
// invalid.
func Load() (Config, error) {
	configuration := Config{
		MQTT: MQTT{
			BrokerURL: "tcp://127.0.0.1:1883",
			ClientID:  "",
			Topics:    []string{"qrng/measurements/#"},
			QoS:       0,
		},
		BitPool: BitPool{
			PoolMinBits:      defaultPoolMinBits,
			PoolMaxBits:      defaultPoolMaxBits,
			ReadyMinBits:     defaultReadyMinBits,
			RepetitionCutoff: 41,
			ProportionCutoff: 624,
			ProportionWindow: 1024,
		},
		Collector: Collector{
			BatchSizeBits: defaultBatchSizeBits,
			FlushInterval: defaultFlushInterval,
		},
		Metrics: Metrics{
			Bind:    defaultMetricsBind, // Default to localhost only
			Enabled: true,
		},
		API: API{
			Bind:           defaultAPIAddr, // Default to localhost only
			RetryAfterSec:  defaultRetryAfterSeconds,
			MaxRequestBits: defaultMaxRequestBits,
		},
		Baseline: Baseline{
			Seed: 0,
		},
		Environment: EnvironmentDevelopment,
	}

	if err := applyMQTTEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyBitPoolEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyCollectorEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyMetricsEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyAPIEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyBaselineEnvVars(&configuration); err != nil {
		return configuration, err
	}
	if err := applyEnvironmentEnvVars(&configuration); err != nil {
		return configuration, err
	}

	if err := validate(&configuration); err != nil {
		return configuration, err
	}

	return configuration, nil
}

// applyMQTTEnvVars reads MQTT environment variables and applies them to the
// provided configuration. MQTT_BROKER_URL picks the broker, MQTT_CLIENT_ID
// overrides the identifier, MQTT_TOPICS controls the subscription filters
// (comma-separated), and MQTT_QOS clamps QoS to 0 or 1.
func applyMQTTEnvVars(configuration *Config) error {
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		configuration.MQTT.BrokerURL = v
	}

	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		configuration.MQTT.ClientID = v
	}

	if v := os.Getenv("MQTT_TOPICS"); v != "" {
		topics := strings.Split(v, ",")
		var cleanTopics []string
		for _, topic := range topics {
			trimmed := strings.TrimSpace(topic)
			if trimmed != "" {
				cleanTopics = append(cleanTopics, trimmed)
			}
		}
		if len(cleanTopics) > 0 {
			configuration.MQTT.Topics = cleanTopics
		}
	}

	if v := os.Getenv("MQTT_QOS"); v != "" {
		cleaned := cleanEnvValue(v)

		qos, err := strconv.Atoi(cleaned)
		if err != nil {
			return errors.New("config: MQTT_QOS must be a number (0 or 1)")
		}
		// Clamp QoS to valid range [0, 1]
		if qos < 0 {
			qos = 0
		}
		if qos > 1 {
			qos = 1
		}
		configuration.MQTT.QoS = byte(qos)
	}

	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		configuration.MQTT.Username = v
	}

	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		configuration.MQTT.Password = v
	}

	// Read password from file if MQTT_PASSWORD_FILE is set (more secure)
	if passwordFile := os.Getenv("MQTT_PASSWORD_FILE"); passwordFile != "" {
		passwordBytes, err := readSecretFile(passwordFile)
		if err != nil {
			return fmt.Errorf("config: failed to read MQTT_PASSWORD_FILE: %w", err)
		}
		configuration.MQTT.Password = strings.TrimSpace(string(passwordBytes))
	}

	if v := os.Getenv("MQTT_TLS_CA_FILE"); v != "" {
		configuration.MQTT.TLSCAFile = v
	}

	return nil
}

func readSecretFile(path string) ([]byte, error) {
	absPath, err := sanitizeAbsolutePath(path)
	if err != nil {
		return nil, err
	}
	return readFileWithinRoot(absPath)
}

func sanitizeAbsolutePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("config: empty file path")
	}
	clean := filepath.Clean(path)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("config: resolve path %q: %w", path, err)
	}
	return abs, nil
}

func readFileWithinRoot(absPath string) ([]byte, error) {
	dir := filepath.Dir(absPath)
	base := filepath.Base(absPath)
	f, err := os.OpenInRoot(dir, base)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("error closing file: %v", err)
		}
	}()
	return io.ReadAll(f)
}

// applyBitPoolEnvVars reads bit pool environment variables.
func applyBitPoolEnvVars(configuration *Config) error {
	configuration.BitPool.PoolMinBits = ParsePositiveEnvInt("POOL_MIN_BITS", configuration.BitPool.PoolMinBits)
	configuration.BitPool.PoolMaxBits = ParsePositiveEnvInt("POOL_MAX_BITS", configuration.BitPool.PoolMaxBits)
	configuration.BitPool.ReadyMinBits = ParsePositiveEnvInt("POOL_READY_MIN_BITS", configuration.BitPool.ReadyMinBits)
	configuration.BitPool.RepetitionCutoff = ParsePositiveEnvInt("HEALTH_REPETITION_CUTOFF", configuration.BitPool.RepetitionCutoff)
	configuration.BitPool.ProportionCutoff = ParsePositiveEnvInt("HEALTH_PROPORTION_CUTOFF", configuration.BitPool.ProportionCutoff)
	configuration.BitPool.ProportionWindow = ParsePositiveEnvInt("HEALTH_PROPORTION_WINDOW", configuration.BitPool.ProportionWindow)

	if configuration.BitPool.PoolMaxBits < configuration.BitPool.PoolMinBits {
		log.Printf("config: POOL_MAX_BITS (%d) lower than min (%d), adjusting to min",
			configuration.BitPool.PoolMaxBits, configuration.BitPool.PoolMinBits)
		configuration.BitPool.PoolMaxBits = configuration.BitPool.PoolMinBits
	}

	return nil
}

// applyCollectorEnvVars reads batch collector environment variables and
// validates the batch size. COLLECTOR_BATCH_SIZE_BITS must be between
// minBatchSizeBits and maxBatchSizeBits; values outside this range are
// clamped with a warning log.
func applyCollectorEnvVars(configuration *Config) error {
	if v := os.Getenv("COLLECTOR_BATCH_SIZE_BITS"); v != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			log.Printf("config: COLLECTOR_BATCH_SIZE_BITS invalid (%q), using default %d", v, defaultBatchSizeBits)
			configuration.Collector.BatchSizeBits = defaultBatchSizeBits
			return nil
		}

		if parsed < minBatchSizeBits {
			log.Printf("config: COLLECTOR_BATCH_SIZE_BITS (%d) below minimum (%d), clamping to min", parsed, minBatchSizeBits)
			configuration.Collector.BatchSizeBits = minBatchSizeBits
		} else if parsed > maxBatchSizeBits {
			log.Printf("config: COLLECTOR_BATCH_SIZE_BITS (%d) above maximum (%d), clamping to max", parsed, maxBatchSizeBits)
			configuration.Collector.BatchSizeBits = maxBatchSizeBits
		} else {
			configuration.Collector.BatchSizeBits = parsed
		}
	}

	configuration.Collector.FlushInterval = ParseDurationEnv("COLLECTOR_FLUSH_INTERVAL", configuration.Collector.FlushInterval)

	return nil
}

// applyMetricsEnvVars reads Prometheus metrics server environment variables.
func applyMetricsEnvVars(configuration *Config) error {
	configuration.Metrics.Bind = GetEnvDefault("METRICS_BIND", configuration.Metrics.Bind)
	configuration.Metrics.Enabled = ParseBoolEnv("METRICS_ENABLED", configuration.Metrics.Enabled)

	configuration.Metrics.TLSEnabled = ParseBoolEnv("METRICS_TLS_ENABLED", configuration.Metrics.TLSEnabled)

	// Use component-specific TLS files if set, otherwise fall back to shared TLS_* variables
	configuration.Metrics.TLSCertFile = GetEnvDefault("METRICS_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.Metrics.TLSKeyFile = GetEnvDefault("METRICS_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.Metrics.TLSCAFile = GetEnvDefault("METRICS_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))

	if v := os.Getenv("METRICS_TLS_CLIENT_AUTH"); v != "" {
		configuration.Metrics.TLSClientAuth = strings.ToLower(strings.TrimSpace(v))
	} else {
		configuration.Metrics.TLSClientAuth = "none"
	}

	return nil
}

// applyAPIEnvVars reads analysis API server environment variables.
func applyAPIEnvVars(configuration *Config) error {
	configuration.API.Bind = GetEnvDefault("API_BIND", configuration.API.Bind)
	configuration.API.RetryAfterSec = ParsePositiveEnvInt("API_RETRY_AFTER_SEC", configuration.API.RetryAfterSec)
	configuration.API.AllowPublic = ParseBoolEnv("ALLOW_PUBLIC_HTTP", configuration.API.AllowPublic)
	configuration.API.MaxRequestBits = ParsePositiveEnvInt("API_MAX_REQUEST_BITS", configuration.API.MaxRequestBits)
	configuration.API.RateLimitRPS = ParsePositiveEnvInt("API_RATE_LIMIT_RPS", 25)
	configuration.API.RateLimitBurst = ParsePositiveEnvInt("API_RATE_LIMIT_BURST", 25)

	configuration.API.TLSEnabled = ParseBoolEnv("API_TLS_ENABLED", configuration.API.TLSEnabled)

	// Use component-specific TLS files if set, otherwise fall back to shared TLS_* variables
	configuration.API.TLSCertFile = GetEnvDefault("API_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.API.TLSKeyFile = GetEnvDefault("API_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.API.TLSCAFile = GetEnvDefault("API_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))

	if v := os.Getenv("API_TLS_CLIENT_AUTH"); v != "" {
		configuration.API.TLSClientAuth = strings.ToLower(strings.TrimSpace(v))
	} else {
		configuration.API.TLSClientAuth = "none"
	}

	return nil
}

// applyBaselineEnvVars reads the classical baseline generator environment
// variables. BASELINE_SEED accepts any int64; zero keeps the time-based seed.
func applyBaselineEnvVars(configuration *Config) error {
	if v := os.Getenv("BASELINE_SEED"); v != "" {
		cleaned := cleanEnvValue(v)
		parsed, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return fmt.Errorf("config: BASELINE_SEED must be an integer, got %q", v)
		}
		configuration.Baseline.Seed = parsed
	}
	return nil
}

// applyEnvironmentEnvVars normalizes ENVIRONMENT into "dev" or "prod".
// Valid inputs are "dev"/"development" and "prod"/"production"; other values
// error out.
func applyEnvironmentEnvVars(configuration *Config) error {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		env := strings.ToLower(strings.TrimSpace(v))

		switch env {
		case "dev", "development":
			configuration.Environment = EnvironmentDevelopment
		case "prod", "production":
			configuration.Environment = EnvironmentProduction
		default:
			return errors.New("config: ENVIRONMENT must be 'dev' or 'prod'")
		}
	}

	return nil
}

// validate checks that required configuration fields are present and valid.
func validate(configuration *Config) error {
	if configuration.MQTT.BrokerURL == "" {
		return errors.New("config: MQTT_BROKER_URL is required")
	}
	if len(configuration.MQTT.Topics) == 0 {
		return errors.New("config: MQTT_TOPICS is required (at least one topic)")
	}

	if configuration.Environment != EnvironmentDevelopment && configuration.Environment != EnvironmentProduction {
		return errors.New("config: environment must be 'dev' or 'prod'")
	}

	if configuration.BitPool.ProportionCutoff > configuration.BitPool.ProportionWindow {
		return fmt.Errorf("config: HEALTH_PROPORTION_CUTOFF (%d) must not exceed HEALTH_PROPORTION_WINDOW (%d)",
			configuration.BitPool.ProportionCutoff, configuration.BitPool.ProportionWindow)
	}

	if configuration.API.TLSEnabled {
		if configuration.API.TLSCertFile == "" {
			return errors.New("config: API_TLS_CERT_FILE is required when API_TLS_ENABLED=true")
		}
		if configuration.API.TLSKeyFile == "" {
			return errors.New("config: API_TLS_KEY_FILE is required when API_TLS_ENABLED=true")
		}

		if !validClientAuthMode(configuration.API.TLSClientAuth) {
			return fmt.Errorf("config: API_TLS_CLIENT_AUTH must be 'none', 'request', or 'require', got %q", configuration.API.TLSClientAuth)
		}

		if configuration.API.TLSClientAuth == "require" && configuration.API.TLSCAFile == "" {
			return errors.New("config: API_TLS_CA_FILE is required when API_TLS_CLIENT_AUTH=require")
		}
	}

	// SECURITY: public HTTP without TLS is forbidden in production
	if configuration.API.AllowPublic && !configuration.API.TLSEnabled {
		if configuration.IsProduction() {
			return errors.New("config: SECURITY: TLS is required when ALLOW_PUBLIC_HTTP=true in production mode")
		}
		log.Printf("WARNING: Running public HTTP without TLS in development mode - this is insecure!")
	}

	if configuration.Metrics.TLSEnabled {
		if configuration.Metrics.TLSCertFile == "" {
			return errors.New("config: METRICS_TLS_CERT_FILE is required when METRICS_TLS_ENABLED=true")
		}
		if configuration.Metrics.TLSKeyFile == "" {
			return errors.New("config: METRICS_TLS_KEY_FILE is required when METRICS_TLS_ENABLED=true")
		}

		if !validClientAuthMode(configuration.Metrics.TLSClientAuth) {
			return fmt.Errorf("config: METRICS_TLS_CLIENT_AUTH must be 'none', 'request', or 'require', got %q", configuration.Metrics.TLSClientAuth)
		}

		if configuration.Metrics.TLSClientAuth == "require" && configuration.Metrics.TLSCAFile == "" {
			return errors.New("config: METRICS_TLS_CA_FILE is required when METRICS_TLS_CLIENT_AUTH=require")
		}
	}

	return nil
}

func validClientAuthMode(mode string) bool {
	switch mode {
	case "none", "request", "require":
		return true
	}
	return false
}

// IsProduction returns true if the application is running in production mode.
func (cfg *Config) IsProduction() bool {
	return cfg.Environment == EnvironmentProduction
}

// IsDevelopment returns true if the application is running in development mode.
func (cfg *Config) IsDevelopment() bool {
	return cfg.Environment == EnvironmentDevelopment
}

// String returns a human-readable representation of the configuration.
func (cfg *Config) String() string {
	return "Config{" +
		"Environment=" + cfg.Environment +
		", MQTT.BrokerURL=" + cfg.MQTT.BrokerURL +
		", MQTT.Topics=" + strings.Join(cfg.MQTT.Topics, ",") +
		"}"
}

// cleanEnvValue removes inline comments and trims whitespace from environment
// variable values. This handles systemd EnvironmentFile format where inline
// comments are included in the value.
// Example: "127.0.0.1:8080 # bind address" becomes "127.0.0.1:8080"
func cleanEnvValue(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, "#"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}

// GetEnvDefault retrieves an environment variable or returns a fallback value.
// Empty or whitespace-only values are treated as unset.
// Inline comments (e.g., "value # comment") are stripped.
func GetEnvDefault(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		cleaned := cleanEnvValue(value)
		if cleaned != "" {
			return cleaned
		}
	}
	return fallback
}

// ParsePositiveEnvInt reads an integer environment variable with validation.
// Returns the fallback if the variable is unset, invalid, or non-positive.
// Invalid or non-positive values are logged before falling back.
// Inline comments (e.g., "512 # comment") are stripped.
func ParsePositiveEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %d", key, value, fallback)
		return fallback
	}
	if parsed <= 0 {
		log.Printf("config: %s non-positive (%d), using fallback %d", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseDurationEnv reads a duration environment variable with validation.
// Values must include a unit suffix (e.g., "500ms", "30s", "5m").
// Returns the fallback if the variable is unset, invalid, or negative.
// Inline comments (e.g., "5s # comment") are stripped.
func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	hasUnit := false
	for i := 0; i < len(cleaned); i++ {
		ch := cleaned[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
			hasUnit = true
			break
		}
	}
	if !hasUnit {
		log.Printf("config: %s missing duration unit (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	parsed, err := time.ParseDuration(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	if parsed < 0 {
		log.Printf("config: %s negative (%s), using fallback %s", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseBoolEnv interprets typical boolean environment values (true/false, 1/0, yes/no).
// Inline comments (e.g., "true # enable feature") are stripped.
func ParseBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	trimmed := strings.ToLower(cleaned)
	switch trimmed {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		log.Printf("config: %s has unrecognised boolean value %q, using fallback %v", key, value, fallback)
		return fallback
	}
}

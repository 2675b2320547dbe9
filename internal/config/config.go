package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jscgfz/asterisk-events-worker-service/internal/ami"
	"github.com/jscgfz/asterisk-events-worker-service/internal/auth"
	"github.com/jscgfz/asterisk-events-worker-service/internal/bus"
	"github.com/jscgfz/asterisk-events-worker-service/internal/publisher"
	"github.com/jscgfz/asterisk-events-worker-service/internal/resolver"
	"github.com/jscgfz/asterisk-events-worker-service/internal/storage"
	"github.com/jscgfz/asterisk-events-worker-service/internal/store"
	"github.com/jscgfz/asterisk-events-worker-service/internal/websocket"
)

// DefaultAllowedOrigins is the dashboard dev server
const DefaultAllowedOrigins = "http://localhost:5173"

// Bus modes
const (
	BusModeKafka     = "kafka"
	BusModeWebSocket = "websocket"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration

	// Manager connection
	AMIHost              string
	AMIPort              int
	AMIUsername          string
	AMISecret            string
	AMIEvents            string
	AMIHeartbeatInterval time.Duration
	AMIReadTimeout       time.Duration
	AMIWatchdogThreshold time.Duration
	CommandBreak         string
	LineBreak            string
	PropertyBreak        string

	WindowSpan  time.Duration
	WindowCount int

	SnapshotRefreshInterval time.Duration

	RoutingFile      string
	ExtensionPattern *regexp.Regexp
	ClientPattern    *regexp.Regexp

	MySQLHost               string
	MySQLPort               string
	MySQLUser               string
	MySQLPassword           string
	MySQLDatabase           string
	MySQLExternalIDDatabase string
	ResolverRefreshInterval time.Duration

	BusMode            string
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaCommandTopic  string
	KafkaGroupID       string

	SkipAuth           bool
	VerifyJWTSignature bool
	OIDCIssuer         string
	Env                string

	DynamoMode             storage.DynamoMode
	DynamoEndpoint         string
	DynamoRegion           string
	DynamoCallRecordsTable string
}

// Load loads configuration from environment variables, after an optional
// .env file that does not override variables already set
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return fromEnv()
}

// Reload re-reads the given env files (default .env), letting their values
// override the process environment, and rebuilds the configuration
func Reload(files ...string) (*Config, error) {
	if err := godotenv.Overload(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to reload env file: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		AMIHost:       getEnv("AMI_HOST", "127.0.0.1"),
		AMIUsername:   getEnv("AMI_USERNAME", ""),
		AMISecret:     getEnv("AMI_SECRET", ""),
		AMIEvents:     getEnv("AMI_EVENTS", "on"),
		CommandBreak:  unescape(getEnv("AMI_COMMAND_BREAK", `\r\n\r\n`)),
		LineBreak:     unescape(getEnv("AMI_LINE_BREAK", `\r\n`)),
		PropertyBreak: unescape(getEnv("AMI_PROPERTY_BREAK", ": ")),

		RoutingFile: getEnv("ROUTING_FILE", "routing.json"),

		MySQLHost:               getEnv("MYSQL_HOST", ""),
		MySQLPort:               getEnv("MYSQL_PORT", "3306"),
		MySQLUser:               getEnv("MYSQL_USER", ""),
		MySQLPassword:           getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase:           getEnv("MYSQL_DATABASE", ""),
		MySQLExternalIDDatabase: getEnv("MYSQL_EXTERNAL_ID_DATABASE", ""),

		BusMode:            strings.ToLower(getEnv("BUS_MODE", BusModeWebSocket)),
		KafkaBrokers:       bus.ParseBrokers(getEnv("KAFKA_BROKERS", "")),
		KafkaSnapshotTopic: getEnv("KAFKA_SNAPSHOT_TOPIC", "resume"),
		KafkaCommandTopic:  getEnv("KAFKA_COMMAND_TOPIC", "ami-commands"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "switchboard"),

		SkipAuth:   getEnv("SKIP_AUTH", "") == "true",
		OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		Env:        getEnv("ENV", ""),

		DynamoMode:             storage.ParseDynamoMode(getEnv("DYNAMO_MODE", "none")),
		DynamoEndpoint:         getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		DynamoRegion:           getEnv("DYNAMO_REGION", "eu-central-1"),
		DynamoCallRecordsTable: getEnv("DYNAMO_CALL_RECORDS_TABLE", "switchboard-call-records"),
	}

	// Production verifies signatures regardless of the flag
	config.VerifyJWTSignature = getEnv("VERIFY_JWT_SIGNATURE", "") == "true" ||
		(config.Env != "" && config.Env != "development")

	var err error

	// WebSocket timeouts are whole seconds
	if config.WSReadTimeout, err = seconds("WS_READ_TIMEOUT", "60"); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = seconds("WS_WRITE_TIMEOUT", "10"); err != nil {
		return nil, err
	}

	if config.AMIPort, err = integer("AMI_PORT", "5038"); err != nil {
		return nil, err
	}
	if config.AMIHeartbeatInterval, err = duration("AMI_HEARTBEAT_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if config.AMIReadTimeout, err = duration("AMI_READ_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if config.AMIWatchdogThreshold, err = duration("AMI_WATCHDOG_THRESHOLD", "120s"); err != nil {
		return nil, err
	}

	if config.WindowSpan, err = duration("WINDOW_SPAN", "1s"); err != nil {
		return nil, err
	}
	if config.WindowCount, err = integer("WINDOW_COUNT", "500"); err != nil {
		return nil, err
	}

	if config.SnapshotRefreshInterval, err = duration("SNAPSHOT_REFRESH_INTERVAL", "10s"); err != nil {
		return nil, err
	}

	if config.ResolverRefreshInterval, err = duration("RESOLVER_REFRESH_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	if config.ExtensionPattern, err = pattern("CHANNEL_EXTENSION_PATTERN", `^(SIP/\d+-[a-z0-9]+)$`); err != nil {
		return nil, err
	}
	if config.ClientPattern, err = pattern("CHANNEL_CLIENT_PATTERN", `^(SIP/troncal-panasonic-[a-z0-9]+)$`); err != nil {
		return nil, err
	}

	if config.CommandBreak == "" || config.LineBreak == "" || config.PropertyBreak == "" {
		return nil, fmt.Errorf("ami separators must not be empty")
	}

	switch config.BusMode {
	case BusModeWebSocket:
	case BusModeKafka:
		if len(config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("BUS_MODE=kafka requires KAFKA_BROKERS")
		}
	default:
		return nil, fmt.Errorf("invalid BUS_MODE %q", config.BusMode)
	}

	return config, nil
}

// AMIParams returns the manager connection parameters
func (c *Config) AMIParams() ami.Params {
	return ami.Params{
		Host:              c.AMIHost,
		Port:              c.AMIPort,
		Username:          c.AMIUsername,
		Secret:            c.AMISecret,
		Events:            c.AMIEvents,
		HeartbeatInterval: c.AMIHeartbeatInterval,
		ReadTimeout:       c.AMIReadTimeout,
		WatchdogThreshold: c.AMIWatchdogThreshold,
	}
}

// Separators returns the configured wire dialect
func (c *Config) Separators() ami.Separators {
	return ami.Separators{
		Command:  c.CommandBreak,
		Line:     c.LineBreak,
		Property: c.PropertyBreak,
	}
}

// Window returns the publisher window thresholds
func (c *Config) Window() publisher.Window {
	return publisher.Window{Span: c.WindowSpan, Count: c.WindowCount}
}

// StoreOptions returns channel classification settings
func (c *Config) StoreOptions() store.Options {
	opts := store.DefaultOptions()
	opts.ExtensionPattern = c.ExtensionPattern
	opts.ClientPattern = c.ClientPattern
	return opts
}

// MySQL returns resolver database settings
func (c *Config) MySQL() resolver.MySQLConfig {
	return resolver.MySQLConfig{
		Host:               c.MySQLHost,
		Port:               c.MySQLPort,
		User:               c.MySQLUser,
		Password:           c.MySQLPassword,
		Database:           c.MySQLDatabase,
		ExternalIDDatabase: c.MySQLExternalIDDatabase,
	}
}

// Kafka returns broker settings
func (c *Config) Kafka() bus.KafkaConfig {
	return bus.KafkaConfig{
		Brokers:       c.KafkaBrokers,
		SnapshotTopic: c.KafkaSnapshotTopic,
		CommandTopic:  c.KafkaCommandTopic,
		GroupID:       c.KafkaGroupID,
	}
}

// Auth returns token validation settings
func (c *Config) Auth() auth.Options {
	return auth.Options{
		SkipAuth:        c.SkipAuth,
		VerifySignature: c.VerifyJWTSignature,
		IssuerURL:       c.OIDCIssuer,
	}
}

// WebSocket returns dashboard connection timeouts
func (c *Config) WebSocket() websocket.Timeouts {
	return websocket.NewTimeouts(c.WSReadTimeout, c.WSWriteTimeout)
}

// Dynamo returns archive settings
func (c *Config) Dynamo() storage.DynamoConfig {
	return storage.DynamoConfig{
		Mode:             c.DynamoMode,
		Endpoint:         c.DynamoEndpoint,
		Region:           c.DynamoRegion,
		CallRecordsTable: c.DynamoCallRecordsTable,
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func integer(key, def string) (int, error) {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func seconds(key, def string) (time.Duration, error) {
	v, err := integer(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

// duration accepts Go durations ("30s") or bare seconds ("30")
func duration(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func pattern(key, def string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(getEnv(key, def))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return re, nil
}

var escapes = strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t")

// unescape turns literal \r, \n and \t into control characters
func unescape(s string) string {
	return escapes.Replace(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	// Storage
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Google / Gmail
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string // service account JSON file, used for Pub/Sub and domain-wide Gmail access
	GoogleClientID           string
	GoogleClientSecret       string
	GmailRefreshToken        string

	// Push notifications and watch
	PushSharedSecret       string
	Mailboxes              []string
	WatchLabelIDs          []string
	WatchLabelFilterAction string

	// Sync tuning
	SyncMaxPages         int
	SyncMaxHoldAttempts  int
	SyncFetchConcurrency int
	ProviderCallTimeout  time.Duration

	// Attribution
	AgentAddresses []string

	// Admin API
	AdminJWTSecret string

	// Ingest event sinks
	FirebaseCredentials string
	FCMTopic            string

	// Reconciler (0 disables)
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment (and .env if present)
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "mailsync"),

		GoogleProjectID:          getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:        getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GooglePubSubSubscription: getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", ""),
		GoogleCredentials:        getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleClientID:           getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:       getEnv("GOOGLE_CLIENT_SECRET", ""),
		GmailRefreshToken:        getEnv("GMAIL_REFRESH_TOKEN", ""),

		PushSharedSecret:       getEnv("PUSH_SHARED_SECRET", ""),
		Mailboxes:              lowerAll(getList("MAILSYNC_MAILBOXES", nil)),
		WatchLabelIDs:          getList("WATCH_LABEL_IDS", []string{"INBOX"}),
		WatchLabelFilterAction: getEnv("WATCH_LABEL_FILTER_ACTION", "include"),

		SyncMaxPages:         getInt("SYNC_MAX_PAGES", 5),
		SyncMaxHoldAttempts:  getInt("SYNC_MAX_HOLD_ATTEMPTS", 5),
		SyncFetchConcurrency: getInt("SYNC_FETCH_CONCURRENCY", 3),
		ProviderCallTimeout:  getDuration("PROVIDER_CALL_TIMEOUT", 15*time.Second),

		AgentAddresses: getList("AGENT_ADDRESSES", nil),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FCMTopic:            getEnv("FCM_TOPIC", ""),

		ReconcileInterval:   getDuration("RECONCILE_INTERVAL", 0),
		ReconcileStaleAfter: getDuration("RECONCILE_STALE_AFTER", 30*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.SyncMaxPages < 1 {
		errs = append(errs, errors.New("SYNC_MAX_PAGES must be at least 1"))
	}
	if c.SyncFetchConcurrency < 1 {
		errs = append(errs, errors.New("SYNC_FETCH_CONCURRENCY must be at least 1"))
	}
	if c.ProviderCallTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_CALL_TIMEOUT must be positive"))
	}
	if c.WatchLabelFilterAction != "include" && c.WatchLabelFilterAction != "exclude" {
		errs = append(errs, fmt.Errorf("WATCH_LABEL_FILTER_ACTION must be include or exclude, got %q", c.WatchLabelFilterAction))
	}

	return errors.Join(errs...)
}

// HasGmailCredentials reports whether any Gmail auth mode is configured
func (c *Config) HasGmailCredentials() bool {
	if c.GoogleCredentials != "" {
		return true
	}
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GmailRefreshToken != ""
}

// PubSubTopicName returns the short topic name, accepting either
// "gmail-updates" or "projects/<p>/topics/gmail-updates".
func (c *Config) PubSubTopicName() string {
	topic := c.GooglePubSubTopic
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		topic = parts[len(parts)-1]
	}
	return topic
}

// PubSubTopicPath returns the fully qualified topic used in users.watch
func (c *Config) PubSubTopicPath() string {
	if c.GooglePubSubTopic == "" || strings.HasPrefix(c.GooglePubSubTopic, "projects/") {
		return c.GooglePubSubTopic
	}
	if c.GoogleProjectID == "" {
		return c.GooglePubSubTopic
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.GoogleProjectID, c.GooglePubSubTopic)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getList splits a comma separated value, dropping empty items
func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func lowerAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return values
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential is one accepted HTTP Basic pair for the webhook.
type Credential struct {
	Username string
	Password string
}

type Config struct {
	Port                     string
	StoreURL                 string
	StoreServiceKey          string
	MigrateOnStart           bool
	MaxBodyBytes             int64
	WebhookCredentials       []Credential
	CronSecret               string
	APIKeys                  map[string]struct{}
	RateLimitAnalyticsPerMin int
	SlowRequestThreshold     time.Duration
	TaskQueueSize            int
	TaskWorkers              int
	TaskTimeout              time.Duration
	AlertCheckInterval       time.Duration
	AlertMinSample           int
	LogLevel                 string
	RedisAddr                string
	MetricsReportInterval    time.Duration
	KafkaBrokers             []string
	KafkaAlertTopic          string
	ResendAPIKey             string
	AlertEmailFrom           string
	AlertEmailTo             []string
}

// credentialEnv lists the accepted username/password variable pairs in order.
var credentialEnv = [][2]string{
	{"WEBHOOK_USERNAME", "WEBHOOK_PASSWORD"},
	{"EMAIL_WEBHOOK_USERNAME", "EMAIL_WEBHOOK_PASSWORD"},
}

// Load reads configuration from the environment, after loading an optional
// .env file. It fails listing every missing required variable.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse()
}

func parse() (Config, error) {
	var missing []string

	cfg := Config{
		Port:                     getString("PORT", "8080"),
		StoreURL:                 firstEnv("STORE_URL", "DATABASE_URL"),
		StoreServiceKey:          getString("STORE_SERVICE_KEY", ""),
		MigrateOnStart:           getBool("MIGRATE_ON_START", true),
		MaxBodyBytes:             int64(getInt("MAX_BODY_BYTES", 1_048_576)),
		WebhookCredentials:       loadCredentials(),
		CronSecret:               getString("CRON_SECRET", ""),
		APIKeys:                  parseKeys(getString("API_KEYS", "")),
		RateLimitAnalyticsPerMin: getInt("RATE_LIMIT_ANALYTICS_PER_MIN", 60),
		SlowRequestThreshold:     time.Duration(getInt("SLOW_REQUEST_MS", 200)) * time.Millisecond,
		TaskQueueSize:            getInt("TASK_QUEUE_SIZE", 1_000),
		TaskWorkers:              getInt("TASK_WORKERS", 4),
		TaskTimeout:              time.Duration(getInt("TASK_TIMEOUT_MS", 5_000)) * time.Millisecond,
		AlertCheckInterval:       getDuration("ALERT_CHECK_INTERVAL", 0),
		AlertMinSample:           getInt("ALERT_MIN_SAMPLE", 10),
		LogLevel:                 getString("LOG_LEVEL", "info"),
		RedisAddr:                getString("REDIS_ADDR", ""),
		MetricsReportInterval:    getDuration("METRICS_REPORT_INTERVAL", 30*time.Second),
		KafkaBrokers:             splitList(getString("KAFKA_BROKERS", "")),
		KafkaAlertTopic:          getString("KAFKA_ALERT_TOPIC", "email-alerts"),
		ResendAPIKey:             getString("RESEND_API_KEY", ""),
		AlertEmailFrom:           getString("ALERT_EMAIL_FROM", ""),
		AlertEmailTo:             splitList(getString("ALERT_EMAIL_TO", "")),
	}

	if cfg.StoreURL == "" {
		missing = append(missing, "STORE_URL")
	}
	if len(cfg.WebhookCredentials) == 0 {
		missing = append(missing, "WEBHOOK_USERNAME/WEBHOOK_PASSWORD")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %v", missing)
	}
	return cfg, nil
}

// loadCredentials collects every fully configured pair, in lookup order.
func loadCredentials() []Credential {
	var out []Credential
	for _, pair := range credentialEnv {
		u, p := os.Getenv(pair[0]), os.Getenv(pair[1])
		if u == "" || p == "" {
			continue
		}
		out = append(out, Credential{Username: u, Password: p})
	}
	return out
}

// MaskURL hides everything but the scheme and host of a connection URL.
func MaskURL(u string) string {
	if i := strings.Index(u, "@"); i >= 0 {
		if j := strings.Index(u, "://"); j >= 0 && j < i {
			return u[:j+3] + "***" + u[i:]
		}
		return "***" + u[i:]
	}
	return u
}

func parseKeys(csv string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, k := range splitList(csv) {
		m[k] = struct{}{}
	}
	return m
}

func splitList(csv string) []string {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(csv, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getDuration accepts Go durations ("5m") or bare seconds ("300").
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

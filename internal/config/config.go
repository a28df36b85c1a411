package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// DefaultNominatimURL is the public reverse geocoding endpoint template.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse?format=jsonv2&lon={longitude}&lat={latitude}&accept-language={language}"

// Storage backends.
const (
	StorageDisk = "disk"
	StorageFTP  = "ftp"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	PublicBaseURL   string
	DatabaseURL     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaBrokers         []string
	KafkaEnrichmentTopic string
	KafkaGroupID         string
	BatchSize            int
	BatchFlushInterval   time.Duration

	// Geocoding configuration.
	NominatimURL     string
	NominatimTimeout time.Duration
	GeocodeCacheSize int
	GeocodeCacheTTL  time.Duration
	RedisURL         string

	// Enrichment configuration.
	EnrichmentLocales     []string
	EnrichmentConcurrency int
	EnrichmentMaxAttempts int
	ReenrichInterval      time.Duration
	// ReenrichMaxEnqueues caps how often one report is queued for enrichment.
	ReenrichMaxEnqueues int

	// Image storage configuration.
	StorageBackend string
	StorageDir     string
	FTPAddr        string
	FTPUser        string
	FTPPassword    string

	MaxPageSize  int
	OperatorRole string
	RoleHeader   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	nominatimTimeout, err := parsePositiveDuration("NOMINATIM_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("GEOCODE_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	reenrichInterval, err := parseDuration("REENRICH_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("ENRICHMENT_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("ENRICHMENT_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	maxEnqueues, err := parsePositiveInt("REENRICH_MAX_ENQUEUES", 5)
	if err != nil {
		return nil, err
	}
	maxPageSize, err := parsePositiveInt("MAX_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	locales, err := parseLocales(sharedcfg.EnvOrDefault("ENRICHMENT_LOCALES", "el-GR,en-US"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		PublicBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEnrichmentTopic: sharedcfg.EnvOrDefault("KAFKA_ENRICHMENT_TOPIC", "report-enrichment"),
		KafkaGroupID:         sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "alerthub-enrichment"),
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,

		NominatimURL:     sharedcfg.EnvOrDefault("NOMINATIM_URL", DefaultNominatimURL),
		NominatimTimeout: nominatimTimeout,
		GeocodeCacheSize: cacheSize,
		GeocodeCacheTTL:  cacheTTL,
		RedisURL:         os.Getenv("REDIS_URL"),

		EnrichmentLocales:     locales,
		EnrichmentConcurrency: concurrency,
		EnrichmentMaxAttempts: maxAttempts,
		ReenrichInterval:      reenrichInterval,
		ReenrichMaxEnqueues:   maxEnqueues,

		StorageBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORAGE_BACKEND", StorageDisk)),
		StorageDir:     sharedcfg.EnvOrDefault("STORAGE_DIR", "./wwwroot"),
		FTPAddr:        os.Getenv("FTP_ADDR"),
		FTPUser:        os.Getenv("FTP_USER"),
		FTPPassword:    os.Getenv("FTP_PASSWORD"),

		MaxPageSize:  maxPageSize,
		OperatorRole: sharedcfg.EnvOrDefault("OPERATOR_ROLE", "Civil_Protection"),
		RoleHeader:   sharedcfg.EnvOrDefault("ROLE_HEADER", "X-User-Role"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaEnrichmentTopic == "" {
		return errors.New("KAFKA_ENRICHMENT_TOPIC is required")
	}
	for _, placeholder := range []string{"{longitude}", "{latitude}", "{language}"} {
		if !strings.Contains(c.NominatimURL, placeholder) {
			return fmt.Errorf("NOMINATIM_URL must contain %s", placeholder)
		}
	}
	if _, err := url.Parse(c.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
	}
	switch c.StorageBackend {
	case StorageDisk:
	case StorageFTP:
		if c.FTPAddr == "" {
			return errors.New("STORAGE_BACKEND is ftp but FTP_ADDR is not set")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseLocales(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		culture, ok := domain.NormalizeCulture(part)
		if !ok {
			return nil, fmt.Errorf("invalid ENRICHMENT_LOCALES: unsupported culture %q", part)
		}
		if !seen[culture] {
			seen[culture] = true
			out = append(out, culture)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("ENRICHMENT_LOCALES is required")
	}
	return out, nil
}

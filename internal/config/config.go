package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka claim pipeline. Disabled means the service only serves HTTP.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Upstream collaborators. An empty URL selects the offline implementation.
	SatelliteAPIURL  string
	SatelliteAPIKey  string
	SatelliteTimeout time.Duration
	WeatherAPIURL    string
	WeatherAPIKey    string
	WeatherTimeout   time.Duration

	AIEngineURL      string
	AIRiskTimeout    time.Duration
	AIDamageTimeout  time.Duration
	AIFraudTimeout   time.Duration
	AIMaxAttempts    int
	AIRetryBaseDelay time.Duration
	AIRateLimit      float64

	// Assessment reuse cache. An empty RedisAddr keeps it in memory.
	AssessmentCacheSize   int
	AssessmentReuseWindow time.Duration
	AssessmentValidity    time.Duration
	RedisAddr             string
	RedisPassword         string
	RedisDB               int

	HeatmapMaxPoints      int
	HeatmapConcurrency    int
	HeatmapRateLimit      float64
	ClaimBatchConcurrency int
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

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "claims-submitted"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "claim-decisions"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "peril-risk-service"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SatelliteAPIURL: os.Getenv("SATELLITE_API_URL"),
		SatelliteAPIKey: os.Getenv("SATELLITE_API_KEY"),
		WeatherAPIURL:   os.Getenv("WEATHER_API_URL"),
		WeatherAPIKey:   os.Getenv("WEATHER_API_KEY"),
		AIEngineURL:     os.Getenv("AI_ENGINE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"SATELLITE_TIMEOUT", "10s", &cfg.SatelliteTimeout},
		{"WEATHER_TIMEOUT", "10s", &cfg.WeatherTimeout},
		{"AI_RISK_TIMEOUT", "30s", &cfg.AIRiskTimeout},
		{"AI_DAMAGE_TIMEOUT", "60s", &cfg.AIDamageTimeout},
		{"AI_FRAUD_TIMEOUT", "30s", &cfg.AIFraudTimeout},
		{"AI_RETRY_BASE_DELAY", "500ms", &cfg.AIRetryBaseDelay},
		{"ASSESSMENT_REUSE_WINDOW", "24h", &cfg.AssessmentReuseWindow},
		{"ASSESSMENT_VALIDITY", "720h", &cfg.AssessmentValidity},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"AI_MAX_ATTEMPTS", 3, &cfg.AIMaxAttempts},
		{"ASSESSMENT_CACHE_SIZE", 1000, &cfg.AssessmentCacheSize},
		{"HEATMAP_MAX_POINTS", 2500, &cfg.HeatmapMaxPoints},
		{"HEATMAP_CONCURRENCY", 8, &cfg.HeatmapConcurrency},
		{"CLAIM_BATCH_CONCURRENCY", 4, &cfg.ClaimBatchConcurrency},
	}
	for _, n := range ints {
		if *n.dst, err = parsePositiveInt(n.key, n.def); err != nil {
			return nil, err
		}
	}

	if cfg.AIRateLimit, err = parsePositiveFloat("AI_RATE_LIMIT", "20"); err != nil {
		return nil, err
	}
	if cfg.HeatmapRateLimit, err = parsePositiveFloat("HEATMAP_RATE_LIMIT", "50"); err != nil {
		return nil, err
	}

	db, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || db < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}
	cfg.RedisDB = db

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.AssessmentValidity < cfg.AssessmentReuseWindow {
		return nil, errors.New("ASSESSMENT_VALIDITY must not be shorter than ASSESSMENT_REUSE_WINDOW")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
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

// Package config loads orchestrator configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// Config is the umbrella configuration object returned by LoadFromEnv
// and used throughout the application.
type Config struct {
	// AWS transport settings. Credentials are resolved from the ambient
	// identity chain unless AccessKeyID/SecretAccessKey are set.
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// EndpointURL overrides the S3/SQS endpoint for local development
	// (LocalStack). Empty in production.
	EndpointURL string

	// ArtifactBucket is the single bucket holding all job artifacts.
	ArtifactBucket string

	// Queue URLs, one per logical stream.
	SubmissionsQueueURL string
	EventsQueueURL      string
	StageQueueURLs      map[pipeline.Stage]string

	// HTTP surface.
	HTTPPort    string
	MetricsPort string
	LogLevel    string

	// Consumer tuning.
	ReceiveBatchSize int32
	ReceiveWait      time.Duration

	// Reaper behavior.
	ReapInterval time.Duration
	JobTTL       time.Duration

	// StageDeadline fails a job whose current stage has been in flight
	// longer than this. Zero disables the deadline (source behavior).
	StageDeadline time.Duration

	// AcceptLegacyKeys makes artifact reads fall back to hyphenated
	// result keys written by historical workers.
	AcceptLegacyKeys bool
}

// LoadFromEnv builds a Config from environment variables, applying
// built-in defaults where a variable is unset.
func LoadFromEnv() (*Config, error) {
	receiveWait, err := durationEnv("RECEIVE_WAIT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	reapInterval, err := durationEnv("REAP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	jobTTL, err := durationEnv("JOB_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	stageDeadline, err := durationEnv("STAGE_DEADLINE", 0)
	if err != nil {
		return nil, err
	}

	batch, err := strconv.Atoi(getEnvOrDefault("RECEIVE_BATCH_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECEIVE_BATCH_SIZE: %w", err)
	}
	if batch < 1 || batch > 10 {
		return nil, fmt.Errorf("RECEIVE_BATCH_SIZE must be in [1,10], got %d", batch)
	}

	acceptLegacy, err := strconv.ParseBool(getEnvOrDefault("ACCEPT_LEGACY_KEYS", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCEPT_LEGACY_KEYS: %w", err)
	}

	cfg := &Config{
		Region:              getEnvOrDefault("AWS_REGION", "us-east-1"),
		AccessKeyID:         os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		EndpointURL:         os.Getenv("AWS_ENDPOINT_URL"),
		ArtifactBucket:      getEnvOrDefault("ARTIFACT_BUCKET", "pagesmith-artifacts"),
		SubmissionsQueueURL: os.Getenv("SUBMISSIONS_QUEUE_URL"),
		EventsQueueURL:      os.Getenv("EVENTS_QUEUE_URL"),
		StageQueueURLs: map[pipeline.Stage]string{
			pipeline.StageResearch:       os.Getenv("RESEARCH_QUEUE_URL"),
			pipeline.StageProductManager: os.Getenv("PRODUCT_MANAGER_QUEUE_URL"),
			pipeline.StageDrawer:         os.Getenv("DRAWER_QUEUE_URL"),
			pipeline.StageDesigner:       os.Getenv("DESIGNER_QUEUE_URL"),
			pipeline.StageCoder:          os.Getenv("CODER_QUEUE_URL"),
		},
		HTTPPort:         getEnvOrDefault("HTTP_PORT", "8080"),
		MetricsPort:      getEnvOrDefault("METRICS_PORT", "9090"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		ReceiveBatchSize: int32(batch),
		ReceiveWait:      receiveWait,
		ReapInterval:     reapInterval,
		JobTTL:           jobTTL,
		StageDeadline:    stageDeadline,
		AcceptLegacyKeys: acceptLegacy,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	if c.ArtifactBucket == "" {
		return fmt.Errorf("ARTIFACT_BUCKET is required")
	}
	if c.SubmissionsQueueURL == "" {
		return fmt.Errorf("SUBMISSIONS_QUEUE_URL is required")
	}
	if c.EventsQueueURL == "" {
		return fmt.Errorf("EVENTS_QUEUE_URL is required")
	}
	for _, stage := range pipeline.Order {
		if c.StageQueueURLs[stage] == "" {
			return fmt.Errorf("queue URL for stage %q is required", stage)
		}
	}
	return nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Pagesmith orchestrator server — accepts landing-page jobs over HTTP
// and the submissions queue, dispatches pipeline stages to worker
// queues, consumes completion events, and serves job status.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/joho/godotenv"

	"github.com/pagesmith/pagesmith/pkg/api"
	"github.com/pagesmith/pagesmith/pkg/blob"
	"github.com/pagesmith/pagesmith/pkg/config"
	"github.com/pagesmith/pagesmith/pkg/controller"
	"github.com/pagesmith/pagesmith/pkg/dispatch"
	"github.com/pagesmith/pagesmith/pkg/events"
	"github.com/pagesmith/pagesmith/pkg/intake"
	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
	"github.com/pagesmith/pagesmith/pkg/queue"
	"github.com/pagesmith/pagesmith/pkg/reaper"
	"github.com/pagesmith/pagesmith/pkg/version"
)

// httpDrainTimeout is the budget for in-flight HTTP requests on shutdown.
const httpDrainTimeout = 5 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Path to optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	configureLogging(cfg.LogLevel)

	slog.Info("Starting pagesmith",
		"version", version.String(),
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"region", cfg.Region)

	ctx := context.Background()

	// 1. AWS clients. Credentials fall back to the ambient identity
	// chain; the endpoint override points both services at LocalStack.
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		slog.Error("Failed to load AWS configuration", "error", err)
		os.Exit(1)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	// 2. Eager transport validation: a broken bucket or queue config
	// should fail the boot, not the first job.
	if err := probeTransport(ctx, cfg, s3Client, sqsClient); err != nil {
		slog.Error("Startup transport validation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Transport validated", "bucket", cfg.ArtifactBucket)

	// 3. Core components.
	m := metrics.New()
	blobs := blob.NewStore(s3Client, cfg.ArtifactBucket)
	queues := queue.NewClient(sqsClient)
	index := jobs.NewIndex()
	dispatcher := dispatch.NewDispatcher(blobs, queues, cfg.StageQueueURLs)
	ctrl := controller.New(index, blobs, dispatcher, queues, m, cfg.EventsQueueURL, cfg.AcceptLegacyKeys)
	admitter := intake.NewAdmitter(ctrl)

	// 4. Background consumers and the reaper.
	eventsConsumer := events.NewConsumer(queues, ctrl, m, cfg.EventsQueueURL, cfg.ReceiveBatchSize, cfg.ReceiveWait)
	eventsConsumer.Start(ctx)

	submissionsConsumer := intake.NewConsumer(queues, blobs, admitter, cfg.SubmissionsQueueURL, cfg.ReceiveBatchSize, cfg.ReceiveWait)
	submissionsConsumer.Start(ctx)

	jobReaper := reaper.New(index, m, cfg.ReapInterval, cfg.JobTTL, cfg.StageDeadline)
	jobReaper.Start(ctx)

	// 5. Metrics listener on its own port.
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server error", "error", err)
		}
	}()

	// 6. HTTP API server (non-blocking).
	httpServer := api.NewServer(index, admitter, m)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Pagesmith started successfully")

	// 7. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting HTTP work first, then stop
	// the consumers. Undeleted messages stay queued and are reprocessed
	// after restart.
	shutdownCtx, cancel := context.WithTimeout(ctx, httpDrainTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	submissionsConsumer.Stop()
	eventsConsumer.Stop()
	jobReaper.Stop()

	slog.Info("Shutdown complete")
}

// configureLogging installs the default slog handler at the configured level.
func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// probeTransport verifies the bucket and every configured queue are
// reachable before the orchestrator starts taking work.
func probeTransport(ctx context.Context, cfg *config.Config, s3Client *s3.Client, sqsClient *sqs.Client) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s3Client.HeadBucket(probeCtx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.ArtifactBucket),
	}); err != nil {
		return err
	}

	urls := []string{cfg.SubmissionsQueueURL, cfg.EventsQueueURL}
	for _, u := range cfg.StageQueueURLs {
		urls = append(urls, u)
	}
	for _, u := range urls {
		if _, err := sqsClient.GetQueueAttributes(probeCtx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(u),
			AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
		}); err != nil {
			return err
		}
	}
	return nil
}

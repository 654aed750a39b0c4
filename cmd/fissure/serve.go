package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pithecene-io/fissure/config"
	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/iox"
	"github.com/pithecene-io/fissure/log"
	"github.com/pithecene-io/fissure/mover"
	"github.com/pithecene-io/fissure/publish"
	natspub "github.com/pithecene-io/fissure/publish/nats"
	pubsubpub "github.com/pithecene-io/fissure/publish/pubsub"
	redispub "github.com/pithecene-io/fissure/publish/redis"
	webhookpub "github.com/pithecene-io/fissure/publish/webhook"
	"github.com/pithecene-io/fissure/server"
	"github.com/pithecene-io/fissure/storage"
	gcsstore "github.com/pithecene-io/fissure/storage/gcs"
	s3store "github.com/pithecene-io/fissure/storage/s3"
	"github.com/pithecene-io/fissure/throttler"
)

// defaultShutdownGrace bounds queue draining when no grace is configured.
const defaultShutdownGrace = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "accept crash report submissions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				EnvVars: []string{"FISSURE_CONFIG"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	logger := log.NewLogger("fissure")
	defer iox.DiscardErr(logger.Sync)

	ctx := context.Background()

	th, err := buildThrottler(cfg.Throttler)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	store, closeStore, err := buildStore(ctx, cfg.CrashMover.CrashStorage)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	defer iox.DiscardErr(closeStore)

	pub, closePub, err := buildPublisher(ctx, cfg.CrashMover.CrashPublish)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	defer iox.DiscardErr(closePub)

	mv := mover.New(store, pub, logger, mover.Config{
		QueueSize: cfg.CrashMover.QueueSize,
		Workers:   cfg.CrashMover.Workers,
		Retry: mover.RetryPolicy{
			MaxAttempts: cfg.CrashMover.MaxAttempts,
			Sleep:       cfg.CrashMover.RetrySleep.Duration,
		},
	})

	registry := health.NewRegistry(health.DefaultHeartbeatInterval, logger)
	registry.RegisterVerify("crashstorage", store.VerifyWrite)
	registry.RegisterVerify("crashpublish", pub.VerifyTopic)
	mv.RegisterHealth(registry)

	// Refuse to serve with unreachable sinks. Crash reports are not
	// resubmittable, so a collector that cannot save must not accept.
	if err := registry.Verify(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Error: startup verification failed: %v", err), 1)
	}

	mv.Start()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go registry.Run(heartbeatCtx)

	srv := server.New(server.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		BaseDir: cfg.BaseDir,
	}, th, mv, registry, logger, nil, server.LoadVersion(cfg.BaseDir))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		mv.Stop(shutdownGrace(cfg))
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	// Stop taking submissions first, then drain queued reports.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	mv.Stop(shutdownGrace(cfg))

	logger.Info("collector stopped")
	return nil
}

func shutdownGrace(cfg *config.Config) time.Duration {
	if cfg.CrashMover.ShutdownGrace.Duration > 0 {
		return cfg.CrashMover.ShutdownGrace.Duration
	}
	return defaultShutdownGrace
}

func buildThrottler(cfg config.ThrottlerConfig) (*throttler.Throttler, error) {
	rules, ok := throttler.RuleSetByName(cfg.Rules)
	if !ok {
		return nil, fmt.Errorf("unknown throttler rule set %q", cfg.Rules)
	}
	products, ok := throttler.ProductsByName(cfg.Products)
	if !ok {
		return nil, fmt.Errorf("unknown throttler product list %q", cfg.Products)
	}
	return throttler.New(rules, products), nil
}

// buildStore constructs the configured store backend. The returned
// close function releases the backend client and is safe to call even
// for backends without one.
func buildStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Class {
	case "", "noop":
		return storage.NewNoOpStore(), noClose, nil

	case "s3":
		client, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.BucketName,
			Region:       cfg.Region,
			Endpoint:     cfg.EndpointURL,
			UsePathStyle: cfg.S3PathStyle,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build S3 crash storage: %w", err)
		}
		return storage.NewCrashStore(client), client.Close, nil

	case "gcs":
		client, err := gcsstore.New(ctx, gcsstore.Config{Bucket: cfg.BucketName})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build GCS crash storage: %w", err)
		}
		return storage.NewCrashStore(client), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown crash storage class %q", cfg.Class)
	}
}

// buildPublisher constructs the configured notification-queue backend.
func buildPublisher(ctx context.Context, cfg config.PublishConfig) (publish.Publisher, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Class {
	case "", "noop":
		return publish.NewNoOpPublisher(), noClose, nil

	case "pubsub":
		pub, err := pubsubpub.New(ctx, pubsubpub.Config{
			ProjectID: cfg.ProjectID,
			TopicName: cfg.TopicName,
			Timeout:   cfg.Timeout.Duration,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build Pub/Sub crash publish: %w", err)
		}
		return pub, pub.Close, nil

	case "nats":
		pub, err := natspub.New(natspub.Config{
			URL:     cfg.URL,
			Subject: cfg.QueueName,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build NATS crash publish: %w", err)
		}
		return pub, pub.Close, nil

	case "redis":
		pub, err := redispub.New(redispub.Config{
			URL:     cfg.URL,
			Queue:   cfg.QueueName,
			Timeout: cfg.Timeout.Duration,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build Redis crash publish: %w", err)
		}
		return pub, pub.Close, nil

	case "webhook":
		pub, err := webhookpub.New(webhookpub.Config{
			URL:     cfg.URL,
			Timeout: cfg.Timeout.Duration,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot build webhook crash publish: %w", err)
		}
		return pub, pub.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown crash publish class %q", cfg.Class)
	}
}

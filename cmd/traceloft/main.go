// Command traceloft runs the trace ingestion and project management API
// server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/traceloft/traceloft/pkg/api"
	"github.com/traceloft/traceloft/pkg/apikeys"
	"github.com/traceloft/traceloft/pkg/audit"
	"github.com/traceloft/traceloft/pkg/config"
	"github.com/traceloft/traceloft/pkg/ingest"
	"github.com/traceloft/traceloft/pkg/observability"
	"github.com/traceloft/traceloft/pkg/orgs"
	"github.com/traceloft/traceloft/pkg/outbox"
	"github.com/traceloft/traceloft/pkg/rbac"
	"github.com/traceloft/traceloft/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "traceloft: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slogger := observability.NewLogger(
		observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, slogger)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}

	connMgr, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	db := connMgr.Primary()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		redisClient = redis.NewClient(opts)
	}

	rbacStore := rbac.NewStore(db)
	gate := rbac.NewPermissionGate(rbac.NewRoleResolver(rbacStore))
	audits := audit.NewStore(db)
	orgService := orgs.NewService(db, gate, audits)

	keyCache := apikeys.NewIdentityCache(redisClient, logger)
	keyManager := apikeys.NewManager(apikeys.NewStore(db), gate, keyCache, logger)

	outboxStore := outbox.NewStore(db)
	janitor := outbox.NewJanitor(outboxStore, cfg.Outbox.JanitorSchedule, cfg.Outbox.Retention, logger)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("outbox janitor failed to start: %w", err)
	}

	var archiver *ingest.Archiver
	if cfg.Archive.Enabled {
		s3Client, err := newS3Client(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("archive setup failed: %w", err)
		}
		archiver = ingest.NewArchiver(s3Client, cfg.Archive.S3Bucket, logger)
	}

	metrics := observability.NewMetrics()
	gate.SetRecorder(metrics)
	keyManager.SetRecorder(metrics)
	ingestMetrics := ingest.NewMetrics(metrics.Registry())
	pipeline := ingest.NewPipeline(gate, ingest.NewStore(db), outboxStore, orgService,
		archiver, ingestMetrics, logger)

	server := api.NewServer(orgService, keyManager, pipeline, keyManager, metrics, logger)

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)
	health.AddCheck("postgres", connMgr.HealthCheck)
	if redisClient != nil {
		health.AddOptionalCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	healthMux.Handle("/metrics", metrics.Handler())

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	poolCtx, stopPoolStats := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-poolCtx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.UpdateDBStats(observability.DBStats{
					OpenConnections: stats.OpenConnections,
					Idle:            stats.Idle,
				})
			}
		}
	}()

	sm := observability.NewShutdownManager(slogger, cfg.Server.ShutdownTimeout)
	sm.Register(apiServer.Shutdown)
	sm.Register(healthServer.Shutdown)
	sm.Register(func(context.Context) error {
		janitor.Stop()
		stopPoolStats()
		return nil
	})
	sm.Register(func(context.Context) error { return connMgr.Close() })
	sm.Register(shutdownTracing)
	if redisClient != nil {
		sm.Register(func(context.Context) error { return redisClient.Close() })
	}

	logger.WithFields(logrus.Fields{
		"addr":        apiServer.Addr,
		"health_addr": healthServer.Addr,
	}).Info("starting traceloft")

	var g errgroup.Group
	g.Go(func() error {
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(sm.Wait)

	return g.Wait()
}

func newS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

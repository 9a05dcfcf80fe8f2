package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	achievementhandler "accolade/internal/achievement/handler"
	achievementmetrics "accolade/internal/achievement/metrics"
	"accolade/internal/achievement/ports"
	achievementservice "accolade/internal/achievement/service"
	achievementmemory "accolade/internal/achievement/store/memory"
	achievementpostgres "accolade/internal/achievement/store/postgres"
	authhandler "accolade/internal/auth/handler"
	authservice "accolade/internal/auth/service"
	"accolade/internal/auth/store/challenge"
	jwttoken "accolade/internal/jwt_token"
	"accolade/internal/platform/config"
	"accolade/internal/platform/httpserver"
	"accolade/internal/platform/logger"
	"accolade/internal/platform/metrics"
	"accolade/internal/platform/postgres"
	"accolade/internal/platform/redis"
	"accolade/internal/signature"
	httptransport "accolade/internal/transport/http"
	id "accolade/pkg/domain"
	audit "accolade/pkg/platform/audit"
	"accolade/pkg/platform/audit/publisher"
	auditkafka "accolade/pkg/platform/audit/store/kafka"
	auditmemory "accolade/pkg/platform/audit/store/memory"
)

const (
	shutdownTimeout  = 10 * time.Second
	auditBufferSize  = 1024
	auditPartitions  = 3
	auditReplication = 1
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	healthChecks := map[string]httptransport.HealthCheck{}

	backend, db, err := openAchievementBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		healthChecks["postgres"] = db.PingContext
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var challenges authservice.ChallengeStore = challenge.NewInMemory()
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = redisClient.Health
		challenges = challenge.NewRedis(redisClient.Client)
		log.Info("challenge store: redis")
	}

	auditStore, closeAudit, err := openAuditStore(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	achievements, err := achievementservice.New(backend.Stores(), backend, signature.NewECDSAVerifier(),
		achievementservice.WithLogger(log),
		achievementservice.WithAuditPublisher(auditPublisher),
		achievementservice.WithMetrics(achievementmetrics.New(reg)),
		achievementservice.WithTracer(otel.Tracer("accolade/achievement")),
	)
	if err != nil {
		return fmt.Errorf("create achievement service: %w", err)
	}
	if err := initializeRoles(ctx, achievements, cfg.Contract); err != nil {
		return err
	}

	if cfg.Auth.DevSigningKey {
		log.Warn("using built-in development JWT signing key; set JWT_SIGNING_KEY outside development",
			"env", cfg.Env,
		)
	}
	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	auth, err := authservice.New(challenges, jwt,
		authservice.Config{
			Domain:       cfg.Auth.JWTIssuer,
			ChallengeTTL: cfg.Auth.ChallengeTTL,
			TokenTTL:     cfg.Auth.TokenTTL,
		},
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Validator:    jwttoken.NewJWTServiceAdapter(jwt),
		Achievements: achievementhandler.New(achievements, log),
		Auth:         authhandler.New(auth, log),
		HealthChecks: healthChecks,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting accolade", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type achievementBackend interface {
	ports.StoreTx
	Stores() ports.Stores
}

// openAchievementBackend uses Postgres when a database URL is configured and
// falls back to the in-memory backend otherwise.
func openAchievementBackend(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (achievementBackend, *sql.DB, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if db == nil {
		log.Warn("DATABASE_URL not set, using in-memory achievement store")
		return achievementmemory.NewInMemory(), nil, nil
	}
	store := achievementpostgres.NewPostgres(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info("achievement store: postgres", "driver", cfg.Driver)
	return store, db, nil
}

// openAuditStore forwards audit events to Kafka when brokers are configured.
func openAuditStore(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (audit.Store, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, keeping audit events in memory")
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
	store, err := auditkafka.New(ctx, cfg.Brokers, cfg.AuditTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := store.EnsureTopic(ctx, auditPartitions, auditReplication); err != nil {
		store.Close()
		return nil, nil, err
	}
	log.Info("audit store: kafka", "topic", cfg.AuditTopic)
	return store, store.Close, nil
}

func initializeRoles(ctx context.Context, svc *achievementservice.Service, cfg config.ContractConfig) error {
	admin, err := id.ParseAddress(cfg.Admin)
	if err != nil {
		return fmt.Errorf("ADMIN_ADDRESS: %w", err)
	}
	giver, err := id.ParseAddress(cfg.PermissionGiver)
	if err != nil {
		return fmt.Errorf("PERMISSION_GIVER_ADDRESS: %w", err)
	}
	if err := svc.Initialize(ctx, admin, giver, cfg.SeedLabels); err != nil {
		return fmt.Errorf("initialize roles: %w", err)
	}
	return nil
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	eventadapter "github.com/viralforge/sessionauth/internal/adapters/events"
	grpcadapter "github.com/viralforge/sessionauth/internal/adapters/grpc"
	httpadapter "github.com/viralforge/sessionauth/internal/adapters/http"
	"github.com/viralforge/sessionauth/internal/adapters/security"
	"github.com/viralforge/sessionauth/internal/application"
	"github.com/viralforge/sessionauth/internal/ports"
)

type eventSink interface {
	ports.EventPublisher
	io.Closer
}

// Runtime owns the wired service and its adapters. Transports are created by
// RunAPI so that worker and provisioning processes never open listeners.
type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	service   *application.Service
	store     storage
	publisher eventSink
	outbox    *eventadapter.OutboxWorker
	shutdown  func(context.Context) error
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	level, _ := parseLogLevel(cfg.Service.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.Service.ID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping session auth service",
		"storage_driver", cfg.Storage.Driver,
		"jwt_algorithm", cfg.JWT.Algorithm,
	)

	shutdownTracing, err := setupTracing(ctx, cfg.Telemetry, cfg.Service.ID)
	if err != nil {
		return nil, err
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	codec, err := newTokenCodec(cfg.JWT, logger)
	if err != nil {
		store.close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		store.close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
			LockDuration:     cfg.Auth.LockDuration,
		},
		Users:  store.users,
		Hasher: security.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens: codec,
	})

	outbox := eventadapter.NewOutboxWorker(logger, store.outbox, publisher, eventadapter.OutboxWorkerConfig{
		Interval:   cfg.Events.OutboxPollInterval,
		BatchSize:  cfg.Events.OutboxBatchSize,
		ClaimTTL:   cfg.Events.OutboxClaimTTL,
		MaxRetries: cfg.Events.OutboxMaxRetries,
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		service:   svc,
		store:     store,
		publisher: publisher,
		outbox:    outbox,
		shutdown:  shutdownTracing,
	}, nil
}

// Service exposes the wired engine to command-line tools.
func (r *Runtime) Service() *application.Service { return r.service }

func newTokenCodec(cfg JWTConfig, logger *slog.Logger) (*security.JWTCodec, error) {
	jwtCfg := security.JWTConfig{
		Algorithm:     cfg.Algorithm,
		Secret:        []byte(cfg.Secret),
		PrivateKeyPEM: cfg.PrivateKeyPEM,
		PublicKeyPEM:  cfg.PublicKeyPEM,
		KeyID:         cfg.KeyID,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	codec, err := security.NewJWTCodec(jwtCfg)
	if err == nil {
		return codec, nil
	}
	if !cfg.AllowEphemeral {
		return nil, fmt.Errorf("init jwt codec: %w", err)
	}
	logger.Warn("using ephemeral JWT keys; tokens will not survive a restart", "error", err)
	codec, err = security.NewEphemeralJWTCodec(jwtCfg)
	if err != nil {
		return nil, fmt.Errorf("init ephemeral jwt codec: %w", err)
	}
	return codec, nil
}

func newPublisher(cfg EventsConfig, logger *slog.Logger) (eventSink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("no kafka brokers configured; outbox events will be logged only")
		return eventadapter.NewLoggingPublisher(logger), nil
	}
	publisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return publisher, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := httpadapter.NewHandler(r.service, r.store.ready)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.Service.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(r.service))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Service.GRPCPort))
	if err != nil {
		r.Close(context.Background())
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		r.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	workerDone := make(chan struct{})
	// The memory driver keeps the outbox in this process, so nothing else can drain it.
	if r.cfg.Events.OutboxInProcess || r.cfg.Storage.Driver == StorageDriverMemory {
		go func() {
			defer close(workerDone)
			r.logger.Info("in-process outbox worker started")
			if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("outbox worker: %w", err)
			}
		}()
	} else {
		close(workerDone)
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}
	stop()

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	<-workerDone
	r.Close(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Close(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases storage, publisher and tracing resources.
func (r *Runtime) Close(ctx context.Context) {
	if err := r.publisher.Close(); err != nil {
		r.logger.Warn("close publisher", "error", err)
	}
	r.store.close()
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("shutdown tracing", "error", err)
	}
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/nimbusworks/console-identity-service/internal/adapters/cache"
	eventadapter "github.com/nimbusworks/console-identity-service/internal/adapters/events"
	grpcadapter "github.com/nimbusworks/console-identity-service/internal/adapters/grpc"
	httpadapter "github.com/nimbusworks/console-identity-service/internal/adapters/http"
	"github.com/nimbusworks/console-identity-service/internal/adapters/postgres"
	"github.com/nimbusworks/console-identity-service/internal/adapters/security"
	"github.com/nimbusworks/console-identity-service/internal/application"
	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	worker     *eventadapter.DeliveryWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping console identity service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init redis client: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	tokens, err := security.NewJWTCodec(cfg.AuthJWTSecret)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init jwt codec: %w", err)
	}

	oauthClient := security.NewOAuthClient(security.OAuthConfig{
		HTTPClient: &http.Client{Timeout: cfg.OAuthHTTPTimeout},
		Providers: map[domain.ProviderType]security.OAuthProviderConfig{
			domain.ProviderGithub: {
				ClientID:     cfg.OAuthGithubClientID,
				ClientSecret: cfg.OAuthGithubClientSecret,
			},
			domain.ProviderGoogle: {
				ClientID:     cfg.OAuthGoogleClientID,
				ClientSecret: cfg.OAuthGoogleClientSecret,
			},
			domain.ProviderWechat: {
				ClientID:     cfg.OAuthWechatAppID,
				ClientSecret: cfg.OAuthWechatAppSecret,
			},
			domain.ProviderOAuth2: {
				ClientID:     cfg.OAuthGenericClientID,
				ClientSecret: cfg.OAuthGenericClientSecret,
				TokenURL:     cfg.OAuthGenericTokenURL,
				UserInfoURL:  cfg.OAuthGenericUserInfoURL,
				IDField:      cfg.OAuthGenericIDField,
			},
		},
	})

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			AuthTokenTTL:          cfg.AuthTokenTTL,
			RegionTokenTTL:        cfg.RegionTokenTTL,
			CodeTTL:               cfg.CodeTTL,
			CodeCooldown:          cfg.CodeCooldown,
			PasswordSignupEnabled: cfg.PasswordSignupEnabled,
			EnabledProviders:      cfg.EnabledProviderSet(),
		},
		Accounts:         repos.Accounts,
		Bindings:         repos.Bindings,
		Regions:          repos.Regions,
		RegionIdentities: repos.RegionIdentities,
		Workspaces:       repos.Workspaces,
		Outbox:           repos.Outbox,
		Codes:            cacheadapter.NewRedisCodeStore(redisClient),
		ChangeProofs:     cacheadapter.NewRedisChangeProofStore(redisClient),
		Hasher:           security.NewBcryptHasher(cfg.BcryptCost),
		Tokens:           tokens,
		OAuth:            oauthClient,
	})

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewIdentityInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	var sender ports.CodeSender
	if cfg.DeliveryGatewayURL != "" {
		sender = eventadapter.NewGatewayCodeSender(cfg.DeliveryGatewayURL, cfg.DeliveryGatewayAPIKey, nil)
	} else {
		logger.Warn("delivery gateway not configured; codes are logged instead of sent")
		sender = eventadapter.NewLoggingCodeSender(logger)
	}

	worker := eventadapter.NewDeliveryWorker(
		logger,
		repos.Outbox,
		eventadapter.NewLoggingPublisher(logger),
		sender,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		worker:     worker,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("delivery worker started")
	err := r.worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}

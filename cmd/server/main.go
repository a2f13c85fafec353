package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/qcom/recruitauth/internal/config"
	"github.com/qcom/recruitauth/internal/handlers"
	"github.com/qcom/recruitauth/internal/middleware"
	"github.com/qcom/recruitauth/internal/models"
	"github.com/qcom/recruitauth/internal/notify"
	"github.com/qcom/recruitauth/internal/repository"
	"github.com/qcom/recruitauth/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Records outlive their TTL by this factor so expired codes can still be
// reported as expired rather than missing.
const retentionFactor = 2

type stores struct {
	otp    service.OTPRepository
	users  handlers.UserStore
	tokens service.TokenRepository
	closer []io.Closer
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.OTP.DevMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.Warn("OTP dev mode enabled: codes are logged, not sent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := initStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer func() {
		for _, c := range st.closer {
			c.Close()
		}
	}()

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	limiter := service.NewRateLimiter(logger)
	go limiter.Run(ctx, time.Minute)

	otpStore := service.NewOTPStore(st.otp, &cfg.OTP, logger)
	otpService := service.NewOTPService(otpStore, limiter, initSenders(cfg, logger), &cfg.OTP, &cfg.RateLimit, logger)
	refreshTokenService := service.NewRefreshTokenService(st.tokens, logger)

	authHandlers := handlers.NewAuthHandlers(
		otpService,
		jwtService,
		refreshTokenService,
		st.users,
		logger,
	).WithTrustedProxies(cfg.Server.TrustedProxies)

	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	router := setupRouter(cfg, authHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":      cfg.Server.Port,
			"otp_store": cfg.OTP.Store,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	retention := cfg.OTP.Expiry * retentionFactor

	if cfg.OTP.Store == config.StoreMemory {
		logger.Warn("Using in-memory storage; state is lost on restart")
		return &stores{
			otp:    repository.NewMemoryOTPRepository(),
			users:  repository.NewMemoryUserRepository(),
			tokens: repository.NewMemoryTokenRepository(),
		}, nil
	}

	dynamoClient, err := initDynamoDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	st := &stores{
		users:  repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger),
		tokens: repository.NewRedisTokenRepository(redisClient, logger),
		closer: []io.Closer{redisClient},
	}

	switch cfg.OTP.Store {
	case config.StoreDynamoDB:
		st.otp = repository.NewDynamoOTPRepository(dynamoClient, cfg.DynamoDB.TableName, retention, logger)
	case config.StoreRedis:
		st.otp = repository.NewRedisOTPRepository(redisClient, retention, logger)
	case config.StoreFirestore:
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, firebaseOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
		}
		fs, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firestore: %w", err)
		}
		st.otp = repository.NewFirestoreOTPRepository(fs, cfg.Firebase.Collection, retention, logger)
		st.closer = append(st.closer, fs)
		logger.Info("Firestore client initialized")
	}

	return st, nil
}

func firebaseOptions(cfg *config.Config) []option.ClientOption {
	if cfg.Firebase.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.Firebase.CredentialsFile)}
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized")
	return client, nil
}

func initSenders(cfg *config.Config, logger *logrus.Logger) map[service.Channel]notify.Sender {
	if cfg.OTP.DevMode {
		return map[service.Channel]notify.Sender{
			service.ChannelSMS:   notify.NewConsole(models.SourceSMS, logger),
			service.ChannelSmart: notify.NewConsole(models.SourceWhatsApp, logger),
		}
	}

	sms := notify.NewBeonSMS(&cfg.SMS, logger)
	return map[service.Channel]notify.Sender{
		service.ChannelSMS:   sms,
		service.ChannelSmart: notify.NewFallback(logger, notify.NewWhatsAppOTP(&cfg.WhatsApp, logger), sms),
	}
}

func setupRouter(
	cfg *config.Config,
	authHandlers *handlers.AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORS(cfg.Server.AllowOrigin))
	router.Use(middleware.Logging(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	authHandlers.Register(router, authMiddleware)

	return router
}

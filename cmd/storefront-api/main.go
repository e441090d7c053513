package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/shopswift/storefront/cache"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/common/logger"
	"github.com/shopswift/storefront/config"
	"github.com/shopswift/storefront/controllers"
	"github.com/shopswift/storefront/database"
	"github.com/shopswift/storefront/events"
	"github.com/shopswift/storefront/middleware"
	"github.com/shopswift/storefront/models"
	aws_pkg "github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"github.com/shopswift/storefront/routes"
	"github.com/shopswift/storefront/services"
)

const serviceName = "storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	log := logger.Initialize(cfg.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var awsCfg *sdkaws.Config
	if cfg.AWSUseSecrets || cfg.SNSTopicARN != "" || cfg.S3Bucket != "" || cfg.CloudWatchEnabled {
		c, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatal("Failed to load AWS config", zap.Error(err))
		}
		awsCfg = &c
	}

	if cfg.AWSUseSecrets {
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(*awsCfg)); err != nil {
			log.Fatal("Failed to apply secrets", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := models.Migrate(db); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		log.Warn("REDIS_URL not set, product cache and idempotency keys disabled")
	} else {
		defer redisClient.Close()
	}

	publisher := buildPublisher(cfg, awsCfg, log)
	defer publisher.Close()

	var metrics *aws_pkg.MetricsClient
	if awsCfg != nil {
		metrics = aws_pkg.NewMetricsClient(*awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)
	}

	var presigner services.ImagePresigner
	if cfg.S3Bucket != "" {
		presigner = aws_pkg.NewPresigner(*awsCfg, cfg.S3Bucket)
	}

	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	tokenSvc := services.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authSvc := services.NewAuthService(userRepo, tokenSvc, cfg.RotateRefreshToken, metrics, log)
	productSvc := services.NewProductService(productRepo, cache.NewProductCache(redisClient, cache.DefaultCacheTTL, log), presigner, log)
	cartSvc := services.NewCartService(cartRepo, productRepo, metrics, log)
	orderSvc := services.NewOrderService(orderRepo, cache.NewIdempotencyStore(redisClient, cache.DefaultIdempotencyTTL), publisher, metrics, log)
	userSvc := services.NewUserService(userRepo, log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		logger.RequestID(),
		logger.RequestLogger(log),
		gin.Recovery(),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.SecurityHeaders(),
		middleware.RateLimit(middleware.NewRateLimiter(ctx, rate.Limit(20), 40, 10*time.Minute)),
		middleware.Metrics(metrics, serviceName),
		apperrors.ErrorMiddleware(),
	)

	routes.Register(router, routes.Handlers{
		Auth: controllers.NewAuthController(authSvc, controllers.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: int(cfg.RefreshTokenTTL.Seconds()),
		}),
		Cart:     controllers.NewCartController(cartSvc),
		Products: controllers.NewProductController(productSvc),
		Orders:   controllers.NewOrderController(orderSvc),
		Users:    controllers.NewUserController(userSvc),
	}, middleware.Auth(tokenSvc), healthCheck(db, redisClient))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Storefront API is running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
	}
	log.Info("Server shutdown complete")
}

// buildPublisher fans order events out to Kafka and SNS, whichever is configured.
func buildPublisher(cfg *config.Config, awsCfg *sdkaws.Config, log *zap.Logger) events.Publisher {
	var pubs events.Multi
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log))
	}
	if cfg.SNSTopicARN != "" {
		pubs = append(pubs, events.NewSNSPublisher(aws_pkg.NewSNSClient(*awsCfg), cfg.SNSTopicARN, log))
	}
	if len(pubs) == 0 {
		log.Warn("No event sink configured, order.placed events are dropped")
		return events.Nop{}
	}
	return pubs
}

func healthCheck(db *gorm.DB, rdb *redis.Client) routes.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	}
}

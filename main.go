package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tachyontex/tachyon-tex/handlers"
	"github.com/tachyontex/tachyon-tex/internal/blobstore"
	"github.com/tachyontex/tachyon-tex/internal/bundle"
	"github.com/tachyontex/tachyon-tex/internal/cache"
	"github.com/tachyontex/tachyon-tex/internal/compile"
	"github.com/tachyontex/tachyon-tex/internal/config"
	"github.com/tachyontex/tachyon-tex/internal/database"
	"github.com/tachyontex/tachyon-tex/internal/engine"
	"github.com/tachyontex/tachyon-tex/internal/ingestion"
	"github.com/tachyontex/tachyon-tex/internal/orchestrator"
	"github.com/tachyontex/tachyon-tex/internal/storage"
	"github.com/tachyontex/tachyon-tex/internal/webhook"
	"github.com/tachyontex/tachyon-tex/internal/webhookauth"
	"github.com/tachyontex/tachyon-tex/pkg/logger"
	"github.com/tachyontex/tachyon-tex/pkg/metrics"
	"github.com/tachyontex/tachyon-tex/pkg/middleware"
)

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Errorf("invalid configuration: %v", err)
		os.Exit(2)
	}

	b, err := loadBundle(context.Background(), cfg)
	if err != nil {
		logger.Errorf("failed to load bundle: %v", err)
		os.Exit(1)
	}
	logger.Infof("bundle loaded: source=%s packages=%d", cfg.Bundle.Source, len(b.Packages()))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Compile-Time-Ms, X-Cache, X-Original-Compile-Time-Ms, X-Files-Received, X-Preamble-Hash, X-HMR")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	var importedRedis *redis.Client
	if cfg.Redis.Host != "" {
		importedRedis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := importedRedis.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			importedRedis = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	var rateLimit []gin.HandlerFunc // applied to /compile and /validate only
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && importedRedis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			rateLimit = append(rateLimit, middleware.RedisRateLimitMiddleware(importedRedis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			rateLimit = append(rateLimit, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	blockingPoolSize := cfg.Compile.BlockingPoolSize
	if blockingPoolSize <= 0 {
		blockingPoolSize = runtime.NumCPU()
	}

	blobs := blobstore.New(cfg.BlobStore.CapMB * 1024 * 1024)
	pdfCache := cache.New[uint64](cfg.PDFCache.Enabled, cfg.PDFCache.CapMB*1024*1024, cfg.PDFCache.TTL).
		WithWaiterGauge(func(n int64) { metrics.SingleflightWaiters.WithLabelValues("pdf").Set(float64(n)) })
	formatCache := cache.New[uint64](cfg.FormatCache.Enabled, cfg.FormatCache.CapMB*1024*1024, cfg.FormatCache.TTL).
		WithWaiterGauge(func(n int64) { metrics.SingleflightWaiters.WithLabelValues("format").Set(float64(n)) })
	metrics.BlobStoreBytesUsed.Set(float64(blobs.Size()))

	eng := engine.NewExecEngine(os.TempDir())

	subRepo, suppression := wireWebhookState(context.Background(), cfg, importedRedis)
	dispatcher := webhook.NewDispatcher(subRepo, suppression, 4)

	orch := orchestrator.New(pdfCache, formatCache, b, eng, dispatcher, metrics.OrchestratorSink{}, newMongoAuditSink(cfg), orchestrator.Config{
		CompileTimeout:     cfg.Compile.Timeout,
		BlockingPoolSize:   blockingPoolSize,
		BackpressureFactor: 2,
		MaxProjectBytes:    cfg.Compile.MaxProjectSizeMB * 1024 * 1024,
	})

	limits := ingestion.DefaultLimits(cfg.Compile.MaxProjectSizeMB)

	handlers.RegisterEditor(r)
	handlers.RegisterSwagger(r)
	r.GET("/packages", handlers.NewPackagesHandler(b).Handle)
	r.POST("/validate", append(rateLimit, handlers.NewValidateHandler(limits).Handle)...)
	r.POST("/compile", append(rateLimit, handlers.NewCompileHandler(orch, limits).Handle)...)
	r.GET("/ws", handlers.NewWebSocketHandler(orch).Handle)

	webhookIssuer := webhookauth.NewIssuer(cfg.Webhook.JWTSecret)
	webhookHandler := handlers.NewWebhookHandler(subRepo)
	webhookGroup := r.Group("/webhooks", webhookauth.Middleware(webhookIssuer))
	webhookGroup.GET("", webhookHandler.List)
	webhookGroup.POST("", webhookHandler.Subscribe)
	webhookGroup.DELETE("/:id", webhookHandler.Unsubscribe)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := ":" + cfg.Server.Port
	logger.Infof("tachyon-tex listening on %s (env=%s, blocking_pool=%d)", addr, cfg.Server.Environment, blockingPoolSize)
	if err := r.Run(addr); err != nil {
		logger.Errorf("server failed: %v", err)
		os.Exit(1)
	}
}

func loadBundle(ctx context.Context, cfg *config.Config) (*bundle.Bundle, error) {
	switch cfg.Bundle.Source {
	case "minio":
		minioCfg := &storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		}
		b, err := bundle.LoadMinIO(ctx, minioCfg, cfg.Bundle.MinioArchiveKey)
		if err != nil {
			return nil, fmt.Errorf("load minio bundle: %w", err)
		}
		b.Warmup(ctx)
		return b, nil
	default:
		b, err := bundle.LoadLocal(cfg.Bundle.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("load local bundle: %w", err)
		}
		b.Warmup(ctx)
		return b, nil
	}
}

// mongoAuditSink adapts internal/compile's Mongo-backed audit persistence
// to orchestrator.AuditSink. Save is a no-op whenever mongoURI is empty, so
// this sink is always safe to wire in, even without Mongo configured.
type mongoAuditSink struct {
	mongoURI string
	database string
}

func newMongoAuditSink(cfg *config.Config) *mongoAuditSink {
	return &mongoAuditSink{mongoURI: cfg.MongoDB.URI, database: cfg.MongoDB.Database}
}

func (s *mongoAuditSink) Record(ctx context.Context, rec orchestrator.AuditRecord) {
	if err := compile.Save(ctx, s.mongoURI, s.database, &compile.AuditRecord{
		Fingerprint:  rec.Fingerprint,
		CacheStatus:  rec.CacheStatus,
		CompileMs:    rec.CompileMs,
		Success:      rec.Success,
		ErrorMessage: rec.ErrorMessage,
	}); err != nil {
		logger.Warnf("compile audit: save failed: %v", err)
	}
}

// wireWebhookState chooses Mongo-backed subscription storage and
// Redis-backed suppression when those dependencies are configured,
// preferring the durable backend when available and falling back to an
// equivalent in-memory implementation.
func wireWebhookState(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (webhook.Repository, webhook.Suppression) {
	var repo webhook.Repository = webhook.NewMemoryRepository()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("webhook subscriptions: mongo unavailable, using in-memory repository: %v", err)
		} else {
			col := client.Database(cfg.MongoDB.Database).Collection("webhook_subscriptions")
			repo = webhook.NewMongoRepository(col)
			logger.Infof("webhook subscriptions backed by MongoDB")
		}
	}

	var suppression webhook.Suppression = webhook.NewMemorySuppression()
	if redisClient != nil {
		suppression = webhook.NewRedisSuppression(redisClient)
		logger.Infof("webhook suppression backed by Redis")
	}

	return repo, suppression
}

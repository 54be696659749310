package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/handlers"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/jobs"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/mutation"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/notify"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/planner"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/realtime"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/storage"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/store"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/uploads"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/cache"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/config"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/database"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/logging"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/monitoring"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/server"
	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("almanac")
	config.LoadEnv(logger)

	logger.Info("Starting Almanac (Planner & Calendar API)")

	httpPort := config.GetEnv("ALMANAC_PORT", "18020")
	databaseURL := config.RequireEnv("DATABASE_URL")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("almanac", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("almanac", version.Version, version.GitCommit)

	mutations, rollbacks, commitDuration := metricsCollector.CreateMutationMetrics()
	mutationMetrics := &mutation.Metrics{
		Mutations:      mutations,
		Rollbacks:      rollbacks,
		CommitDuration: commitDuration,
	}

	// Database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = databaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))

	eventStore := store.New(db, logger)

	// Object storage (optional)
	var s3Client *storage.S3Client
	s3Bucket := config.GetEnv("S3_BUCKET", "")
	if s3Bucket != "" {
		var err error
		s3Client, err = storage.NewS3Client(storage.S3Config{
			Bucket:    s3Bucket,
			Prefix:    config.GetEnv("S3_PREFIX", ""),
			Region:    config.GetEnv("S3_REGION", "us-east-1"),
			Endpoint:  config.GetEnv("S3_ENDPOINT", ""),
			AccessKey: config.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: config.GetEnv("S3_SECRET_KEY", ""),
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create S3 client")
		}
	} else {
		logger.Warn("S3_BUCKET not set, media uploads disabled")
	}

	// Redis (optional, fans notifications out across instances)
	var redisClient *redis.Client
	redisAddr := config.GetEnv("REDIS_ADDR", "")
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, continuing without pub/sub")
			redisClient = nil
		}
		cancel()
	}
	if redisClient != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	} else {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(nil))
	}

	// Websocket hub
	hub := realtime.NewHub(logger)
	go hub.Run()

	// Notification fan-out: logs always, websocket clients, redis when present
	sinks := notify.Multi{
		notify.NewLogNotifier(logger),
		realtime.NewHubNotifier(hub),
	}
	if redisClient != nil {
		redisNotifier := notify.NewRedisNotifier(redisClient, logger)
		sinks = append(sinks, redisNotifier)

		// Rebroadcast notifications settled on other instances to local
		// websocket clients. Messages this instance published are skipped
		// by origin so clients don't see them twice.
		hubSink := realtime.NewHubNotifier(hub)
		go func() {
			for {
				err := notify.Subscribe(context.Background(), redisClient, logger, func(n notify.Notification) {
					if n.Origin == redisNotifier.Origin() {
						return
					}
					hubSink.Notify(context.Background(), n)
				})
				if err != nil {
					logger.WithError(err).Warn("Notification subscription lost, retrying")
				}
				time.Sleep(5 * time.Second)
			}
		}()
	}

	// Range cache
	cacheHits := metricsCollector.NewCounter("range_cache_events_total", "Range cache events", []string{"event"})
	rangeCache := cache.New(cache.Options{
		TTL:                  config.GetEnvDuration("RANGE_CACHE_TTL", 30*time.Second),
		StaleWhileRevalidate: 5 * time.Minute,
		MaxEntries:           config.GetEnvInt("RANGE_CACHE_MAX_ENTRIES", 1024),
	}, cache.MetricsHooks{
		OnHit:   func(string) { cacheHits.WithLabelValues("hit").Inc() },
		OnMiss:  func(string) { cacheHits.WithLabelValues("miss").Inc() },
		OnStale: func(string) { cacheHits.WithLabelValues("stale").Inc() },
		OnStore: func(string) { cacheHits.WithLabelValues("store").Inc() },
	})

	// Upload signing
	var signer handlers.UploadSigner
	var mediaDeleter planner.MediaDeleter
	if s3Client != nil {
		expiry := config.GetEnvDuration("UPLOAD_URL_EXPIRY", 15*time.Minute)
		signer = uploads.NewSigner(s3Client, eventStore, expiry, logger)
		mediaDeleter = s3Client
	}

	// Media cleanup job
	if s3Client != nil {
		cleanup := jobs.NewMediaCleanupJob(jobs.MediaCleanupConfig{
			Ledger:   eventStore,
			Objects:  s3Client,
			Logger:   logger,
			Interval: config.GetEnvDuration("MEDIA_CLEANUP_INTERVAL", 10*time.Minute),
			MaxAge:   config.GetEnvDuration("MEDIA_CLEANUP_MAX_AGE", 30*time.Minute),
		})
		cleanup.Start()
		defer cleanup.Stop()
	}

	// Router
	router := server.SetupServiceRouter(logger, "almanac", healthChecker, metricsCollector)

	app := handlers.NewApp(eventStore, mediaDeleter, signer, sinks, rangeCache, logger, mutationMetrics)
	app.RegisterRoutes(router)

	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})
	router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(200, hub.GetStats())
	})

	serverConfig := server.DefaultConfig("almanac", httpPort)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

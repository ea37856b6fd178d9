package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mailbridge/mailbridge/handlers"
	"github.com/mailbridge/mailbridge/internal/config"
	"github.com/mailbridge/mailbridge/internal/database"
	"github.com/mailbridge/mailbridge/internal/files/repository"
	"github.com/mailbridge/mailbridge/internal/graph"
	"github.com/mailbridge/mailbridge/internal/msauth"
	"github.com/mailbridge/mailbridge/internal/oidc"
	"github.com/mailbridge/mailbridge/internal/scheduler"
	"github.com/mailbridge/mailbridge/internal/sessions"
	"github.com/mailbridge/mailbridge/internal/storage"
	"github.com/mailbridge/mailbridge/internal/tokens"
	"github.com/mailbridge/mailbridge/pkg/logger"
	"github.com/mailbridge/mailbridge/pkg/metrics"
	"github.com/mailbridge/mailbridge/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: azure=%v mongo=%v redis=%v", cfg.Azure.ClientID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(corsMiddleware(cfg.CORS.Origins))
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so the rate limiter and sessions can use it
	var importedRedis *redis.Client
	if cfg.Redis.Host != "" {
		importedRedis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := importedRedis.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			importedRedis = nil
		} else {
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && importedRedis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(importedRedis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prefer Redis-based sessions when available (fast, shared across replicas)
	var srepo sessions.Repository
	if importedRedis != nil {
		srepo = sessions.NewRedisRepository(importedRedis, "session:")
		logger.Infof("Using Redis for session storage")
	} else {
		srepo = sessions.NewMemoryRepository()
		logger.Infof("Using in-memory session storage (dev mode)")
	}
	sessionsSvc := sessions.NewService(srepo, cfg.Session.TTL)

	// ID-token verifier against the tenant issuer. Startup continues without
	// one; claims are then parsed unverified, which is acceptable for dev only.
	var verifier msauth.ClaimsVerifier
	if cfg.Azure.ClientID != "" {
		issuer := strings.TrimRight(cfg.Azure.Authority, "/") + "/v2.0"
		if ver, verr := oidc.NewVerifier(ctx, issuer, cfg.Azure.ClientID); verr != nil {
			logger.Warnf("failed to initialize OIDC verifier for %s: %v (id_token claims will be parsed unverified)", issuer, verr)
		} else {
			verifier = ver
		}
	}

	oauthClient := msauth.NewClient(&cfg.Azure, verifier)
	graphClient := graph.NewClient(cfg.Graph.BaseURL, cfg.Graph.Timeout)
	tokenMgr := tokens.NewManager(sessionsSvc, oauthClient)

	// File metadata: MongoDB when configured, memory repo otherwise.
	// Retry/backoff when connecting to tolerate startup races.
	var filesRepo repository.Repository = repository.NewMemoryRepo()
	mongoConnected := false
	if cfg.MongoDB.URI != "" {
		client, errConn := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB: %v; using memory-backed file repo", errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			filesRepo = repository.NewMongoRepo(client.Database(cfg.MongoDB.Database).Collection("files"))
			mongoConnected = true
		}
	}

	// Uploaded bytes: MinIO when configured, local disk otherwise.
	var blobs storage.BlobStore
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		if s, serr := storage.NewMinIOStorage(mcfg); serr != nil {
			logger.Warnf("failed to initialize MinIO storage: %v; falling back to local disk", serr)
		} else {
			blobs = s
			logger.Infof("Using MinIO blob storage: %s/%s", mcfg.Endpoint, mcfg.Bucket)
		}
	}
	if blobs == nil {
		s, serr := storage.NewLocalStorage(cfg.Upload.Dir)
		if serr != nil {
			logger.Fatalf("failed to prepare upload dir %s: %v", cfg.Upload.Dir, serr)
		}
		blobs = s
	}

	// Deferred jobs live in-process only; pending jobs do not survive a restart.
	sched := scheduler.New(cfg.Scheduler.Tick)
	sched.Start()

	// readiness endpoint: 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"sessions": true,
			"oidc":     verifier != nil || cfg.Azure.ClientID == "",
			"mongodb":  mongoConnected || cfg.MongoDB.URI == "",
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = importedRedis != nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}
		if !deps["mongodb"] {
			ready = false
		}
		status := http.StatusOK
		label := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			label = "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	requireAuth := middleware.RequireSession(cfg.Session.CookieName, sessionsSvc, tokenMgr)
	handlers.NewAuthHandler(cfg, oauthClient, sessionsSvc, graphClient).Register(r, requireAuth)
	handlers.NewMailHandler(graphClient, tokenMgr, sched).Register(r, requireAuth)
	handlers.NewFilesHandler(filesRepo, blobs).Register(r, requireAuth)
	handlers.RegisterSwagger(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting mailbridge on %s", addr)
	go func() {
		if err := r.Run(addr); err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Infof("shutdown: stopping scheduler and waiting for in-flight jobs")
	sched.Stop()
}

// corsMiddleware allows the configured origins with credentials and answers
// preflight requests.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			h.Set("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

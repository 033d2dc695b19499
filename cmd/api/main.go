package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "stockledger/api/swagger" // swagger docs
	"stockledger/internal/config"
	"stockledger/internal/database"
	"stockledger/internal/events"
	"stockledger/internal/handler"
	"stockledger/internal/lock"
	"stockledger/internal/logger"
	"stockledger/internal/metrics"
	"stockledger/internal/middleware"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Stock Ledger API
// @version         1.0
// @description     Multi-tier stock ledger with request dispatch and claim workflow.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Info("Connected to PostgreSQL successfully.")

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.WithField("addr", cfg.Redis.Addr).Info("Using Redis locks")
	} else {
		log.Warn("REDIS_ADDR not set, using in-process locks")
	}

	wsHub := websocket.NewHub(log, cfg.CORS.AllowedOrigins)

	sinks := []events.Notifier{events.NewHubNotifier(wsHub)}
	var publisher *events.Publisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, events go to websocket clients only")
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
		}
	}
	notifier := events.NewMulti(log, sinks...)

	m := metrics.New()

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	stockRepo := repository.NewStockRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	historyRepo := repository.NewApprovalHistoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	statsRepo := repository.NewStatisticsRepository(db)

	ledgerService := service.NewLedgerService(stockRepo, auditRepo, txManager, locker, notifier, m, log)
	workflowService := service.NewWorkflowService(requestRepo, historyRepo, auditRepo, txManager, ledgerService, notifier, cfg.Ledger.DispatchShortage, m, log)
	claimService := service.NewClaimService(historyRepo, requestRepo, auditRepo, txManager, ledgerService, locker, notifier, m, log)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(statsRepo)

	worker := service.NewReconcileWorker(ledgerService, stockRepo, cfg.Ledger.ReconcileInterval, m, log)
	background := goAll(ctx, wsHub.Run, worker.Run)

	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	requestHandler := handler.NewRequestHandler(workflowService, claimService)
	auditHandler := handler.NewAuditHandler(auditService)
	statisticsHandler := handler.NewStatisticsHandler(statisticsService)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), m.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", m.Handler())
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		body := gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()}
		if publisher != nil {
			body["events"] = "UP"
			if !publisher.IsHealthy() {
				body["events"] = "DOWN"
			}
		}
		c.JSON(http.StatusOK, body)
	})

	secret := []byte(cfg.JWT.Secret)
	router.GET("/ws", func(c *gin.Context) {
		wsHub.ServeWs(c, secret)
	})

	api := router.Group("", middleware.Authenticate(secret))
	ledgerHandler.RegisterRoutes(api)
	requestHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)
	statisticsHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	background.Wait()
	log.Info("Server exited")
}

// goAll runs each loop in its own goroutine; the returned group is done once all of them returned
func goAll(ctx context.Context, loops ...func(context.Context)) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}
	return &wg
}

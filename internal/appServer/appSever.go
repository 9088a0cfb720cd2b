package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/dealslot/config"
	repository "github.com/ds124wfegd/dealslot/internal/database/postgres"
	"github.com/ds124wfegd/dealslot/internal/service"
	"github.com/ds124wfegd/dealslot/internal/transport"
	"github.com/ds124wfegd/dealslot/internal/worker"

	"github.com/ds124wfegd/dealslot/pkg/codes"
	"github.com/ds124wfegd/dealslot/pkg/kafka"
	"github.com/ds124wfegd/dealslot/pkg/postgres"
	"github.com/ds124wfegd/dealslot/pkg/queue"
	"github.com/ds124wfegd/dealslot/pkg/redis"
	"github.com/ds124wfegd/dealslot/pkg/scheduler"
	"github.com/ds124wfegd/dealslot/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	slotRepo := repository.NewSlotRepository(db)
	claimRepo := repository.NewClaimRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Initialize Telegram bot
	var telegramBot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		telegramBot = telegram.NewBot(cfg.Telegram.BotToken)
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot token not provided, notifications disabled")
	}

	// Kafka producer for claim lifecycle events; falls back to a mock when
	// brokers are unreachable
	var producer kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
	}

	// Shared Redis client: six-code store + delayed task queue
	redisClient := redis.NewRedisClient(&cfg.Redis)
	defer redisClient.Close()

	codeStore := codes.NewStore(redisClient)

	var redisQueue queue.Queue
	var taskPublisher service.TaskPublisher

	if cfg.Redis.URL != "" {
		queueConfig := queue.DefaultRedisQueueConfig()
		queueConfig.Addr = cfg.Redis.URL
		queueConfig.Password = cfg.Redis.Password
		queueConfig.DB = cfg.Redis.DB
		if cfg.Queue.MainQueue != "" {
			queueConfig.MainQueue = cfg.Queue.MainQueue
		}
		if cfg.Queue.DelayedQueue != "" {
			queueConfig.DelayedQueue = cfg.Queue.DelayedQueue
		}
		if cfg.Queue.DLQ != "" {
			queueConfig.DLQ = cfg.Queue.DLQ
		}
		if cfg.Queue.MaxRetries > 0 {
			queueConfig.MaxRetries = cfg.Queue.MaxRetries
		}

		retryManager := queue.NewRetryManager(queueConfig.MaxRetries, 5*time.Second)
		dlqHandler := queue.NewDefaultDLQHandler(redisClient, queueConfig.DLQ, queueConfig.MainQueue)

		redisQueue, err = queue.NewRedisQueue(queueConfig, retryManager, dlqHandler)
		if err != nil {
			logrus.Errorf("Failed to initialize Redis queue: %v. Continuing without queue...", err)
		} else {
			logrus.Info("Redis queue initialized")
			// Создаем адаптер для очереди
			taskPublisher = service.NewQueueAdapter(redisQueue)
		}
	}

	// Initialize services
	reservationService := service.NewReservationService(
		claimRepo, slotRepo, offerRepo, userRepo, waitlistRepo,
		codeStore, taskPublisher, producer, cfg.ClaimTTL())
	waitlistService := service.NewWaitlistService(
		waitlistRepo, offerRepo, userRepo, reservationService, taskPublisher)
	sweeperService := service.NewSweeperService(
		claimRepo, offerRepo, userRepo, waitlistService, codeStore, taskPublisher, producer)
	slotService := service.NewSlotService(slotRepo, claimRepo, offerRepo, waitlistService)
	redemptionService := service.NewRedemptionService(
		claimRepo, offerRepo, userRepo, codeStore, producer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize task handler if queue is available
	if redisQueue != nil {
		claimProvider := service.NewClaimProviderAdapter(reservationService, sweeperService)

		// Типизированный nil в интерфейсе обошёл бы проверку в обработчике
		var taskBot queue.TelegramBot
		if telegramBot != nil {
			taskBot = telegramBot
		}
		taskHandler := queue.NewTaskHandler(claimProvider, taskBot)

		// Start queue consumer
		go func() {
			if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
				logrus.Errorf("Queue subscriber error: %v", err)
			}
		}()
		logrus.Info("Queue subscriber started")

		// Periodic queue depth report
		if rq, ok := redisQueue.(*queue.RedisQueue); ok {
			statsReporter := scheduler.NewScheduler("queue-stats", func(ctx context.Context) error {
				stats, err := rq.Stats(ctx)
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{
					"main":       stats.MainQueue,
					"delayed":    stats.DelayedQueue,
					"processing": stats.ProcessingQueue,
					"dlq":        stats.DLQ,
				}).Debug("Queue depth")
				return nil
			}, 5*time.Minute)
			go statsReporter.Start(ctx)
		}
	}

	// Expiry sweeper: reserved claims past their TTL release inventory back
	sweepWorker := worker.NewClaimSweepWorker(sweeperService, cfg.SweepInterval())
	go sweepWorker.Start(ctx)
	logrus.Info("Claim sweep worker started")

	// Drip release worker
	dripWorker := worker.NewDripReleaseWorker(slotService, cfg.DripInterval())
	go dripWorker.Start(ctx)
	logrus.Info("Drip release worker started")

	// Initialize handlers
	claimHandler := transport.NewClaimHandler(reservationService, redemptionService, sweeperService)
	waitlistHandler := transport.NewWaitlistHandler(waitlistService)
	slotHandler := transport.NewSlotHandler(slotService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(claimHandler, waitlistHandler, slotHandler)); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	if redisQueue != nil {
		if err := redisQueue.Close(); err != nil {
			logrus.Errorf("error occured on queue shutdown: %s", err.Error())
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logrus.Errorf("error occured on producer shutdown: %s", err.Error())
		}
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

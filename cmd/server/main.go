package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/api/handlers"
	"github.com/maheshrc27/tweetflow/internal/api/middleware"
	"github.com/maheshrc27/tweetflow/internal/database"
	job "github.com/maheshrc27/tweetflow/internal/jobs"
	"github.com/maheshrc27/tweetflow/internal/queue"
	"github.com/maheshrc27/tweetflow/internal/repository"
	"github.com/maheshrc27/tweetflow/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if cfg.KeysShared() {
		log.Fatalf("TOKEN_ENCRYPTION_KEY must differ from SECRET_KEY")
	}

	var (
		db          *sql.DB
		jobRepo     repository.JobRepository
		accountRepo repository.AccountRepository
	)

	if cfg.PostgresURI != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}

		if err := database.Migrate(db, "up", 0); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}

		jobRepo = repository.NewJobRepository(db)
		accountRepo = repository.NewAccountRepository(db, cfg.TokenKey)
	} else {
		log.Println("Warning: POSTGRES_URI not set, using in-memory storage")
		jobRepo = repository.NewMemoryJobRepository()
		accountRepo = repository.NewMemoryAccountRepository()
	}

	xService := service.NewXService(cfg.X, &http.Client{Timeout: cfg.Dispatch.PublishTimeout})
	handshakeService := service.NewHandshakeService(accountRepo, xService, cfg.Dispatch.HandshakeTTL, time.Now)
	jobService := service.NewJobService(jobRepo, time.Now)

	// cron jobs
	dispatcher := job.NewDispatcher(jobRepo, accountRepo, xService, cfg.Dispatch, time.Now)
	cleanupJob := job.NewHandshakeCleanupJob(handshakeService)

	scheduler := job.NewScheduler()
	scheduler.Every(cfg.Dispatch.Interval, dispatcher.Run)
	scheduler.Every(cfg.Dispatch.SweepInterval, cleanupJob.ClearExpired)
	scheduler.Start()

	//queue
	var (
		enqueuer    queue.Enqueuer
		asynqServer *asynq.Server
	)
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		enqueuer = queue.NewEnqueuer(client)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Dispatch.Concurrency,
		})

		queueW := queue.NewQueue(dispatcher)
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDispatchPost, queueW.HandleDispatchTask)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Start(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	store := session.New(session.Config{
		Expiration:     cfg.Dispatch.HandshakeTTL,
		KeyLookup:      "cookie:tweetflow_session",
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	account := handlers.NewAccountHandler(handshakeService, store, *cfg)
	app.Get("/auth/x", authMiddleware.AuthMiddleware(), account.Connect)
	app.Get("/auth/x/callback", account.Callback)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/accounts/x", account.Status)
	api.Post("/accounts/x/disconnect", account.Disconnect)

	jobs := handlers.NewJobHandler(jobService, enqueuer)
	api.Post("/jobs", jobs.CreateJob)
	api.Get("/jobs", jobs.ListJobs)
	api.Get("/jobs/:id", jobs.GetJob)
	api.Put("/jobs/:id", jobs.UpdateJob)
	api.Delete("/jobs/:id", jobs.RemoveJob)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, scheduler, asynqServer, db)
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, scheduler *job.Scheduler, asynqServer *asynq.Server, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}

	// wait for in-flight dispatch cycles
	<-scheduler.Stop().Done()

	if asynqServer != nil {
		asynqServer.Shutdown()
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}

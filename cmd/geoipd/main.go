package main

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"geoipd/internal/config"
	"geoipd/internal/dataset"
	"geoipd/internal/handler"
	"geoipd/internal/service"
)

var (
	lastLogTime atomic.Value
	logMutex    sync.Mutex
)

func init() {
	lastLogTime.Store(time.Now())
}

func main() {
	// Initialize logger
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := logConfig.Build()
	defer logger.Sync()

	logger.Info("Starting up server...")

	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Load the dataset before anything can listen; a broken dataset must
	// stop the process, not serve wrong answers.
	db, err := dataset.Load(cfg.Blocks, cfg.Locations, logger)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	// Initialize services
	geoService, err := service.NewGeoService(db, cfg.CacheSize, logger)
	if err != nil {
		logger.Fatal("Failed to initialize geo service", zap.Error(err))
	}

	// Initialize HTTP server
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		// Always log errors and slow requests
		if err != nil || latency > 100*time.Millisecond || c.Response().StatusCode() != 200 {
			logger.Info("request",
				zap.Int("status", c.Response().StatusCode()),
				zap.Duration("latency", latency),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return err
		}

		// Check if 10 seconds have passed since last log
		last := lastLogTime.Load().(time.Time)
		if time.Since(last) >= 10*time.Second {
			logMutex.Lock()
			// Double-check after acquiring lock
			if time.Since(last) >= 10*time.Second {
				logger.Info("sampled_request",
					zap.Int("status", c.Response().StatusCode()),
					zap.Duration("latency", latency),
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
				)
				lastLogTime.Store(time.Now())
			}
			logMutex.Unlock()
		}

		return err
	})

	// Initialize and register handlers
	h := handler.NewHandler(geoService, logger)
	h.RegisterRoutes(app)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	addr := cfg.Host + ":" + cfg.Port
	logger.Info("Listening", zap.String("addr", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
}

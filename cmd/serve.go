package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doltsync/core/loader"
	"doltsync/core/logger"
	"doltsync/core/middleware/auth"
	"doltsync/core/middleware/rayid"
	"doltsync/core/storage"

	"doltsync/feature/export"
	syncFeature "doltsync/feature/sync"
	"doltsync/feature/verify"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync API server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load configuration and connect to both databases
		rt, err := newRuntime()
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
		logg := rt.log
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		logg = logg.With(zap.String("target", rt.cfg.TargetID()))
		logg.Info("Connected to dolt and target databases")

		// 2. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
			ReadTimeout:           time.Duration(rt.cfg.Server.ReadTimeoutSeconds) * time.Second,
		})

		// 3. Object storage is optional; without it the export feature
		// stays disabled.
		var objStore storage.Client
		if rt.cfg.Storage.Endpoint == "" {
			logg.Info("Object storage not configured, snapshot export disabled")
		} else if client, err := storage.NewClient(rt.cfg.Storage); err != nil {
			logg.Warn("Object storage unavailable, snapshot export disabled", zap.Error(err))
		} else {
			objStore = client
		}

		// 4. Initialize Feature Loader
		mgr := loader.NewManager()

		// Register Features
		mgr.Register(syncFeature.NewFeature(rt.engine, rt.source, rt.doltDB, rt.store, rt.cfg.TargetID(), rt.cfg.Sync, logg))
		mgr.Register(verify.NewFeature(rt.source, rt.target, rt.doltDB, rt.targetDB, 0, logg))
		mgr.Register(export.NewFeature(rt.source, rt.target, rt.doltDB, objStore, rt.cfg.Storage.Bucket, rt.cfg.Sync, logg))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			// Let's log the incoming request
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			// Log error if happened
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 2.5 Health probe (public)
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok"})
		})

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: rt.cfg.Server.ApiKey}))

		// 5. Load Features
		api := app.Group("/api/v1")
		if err := mgr.LoadAll(api); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 7. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", rt.cfg.Server.Port))
			if err := app.Listen(":" + rt.cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 7. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

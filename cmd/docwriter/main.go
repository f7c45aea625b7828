// Docwriter orchestrator server - runs the queue-driven document pipeline
// and exposes a minimal liveness/readiness surface plus the WebSocket
// observer console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/docwriter/pkg/cleanup"
	"github.com/codeready-toolchain/docwriter/pkg/config"
	"github.com/codeready-toolchain/docwriter/pkg/database"
	"github.com/codeready-toolchain/docwriter/pkg/diagram"
	"github.com/codeready-toolchain/docwriter/pkg/events"
	"github.com/codeready-toolchain/docwriter/pkg/kernel"
	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/masking"
	"github.com/codeready-toolchain/docwriter/pkg/metrics"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/objectstore"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
	"github.com/codeready-toolchain/docwriter/pkg/slack"
	"github.com/codeready-toolchain/docwriter/pkg/stages"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
	"github.com/codeready-toolchain/docwriter/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "debug"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	slog.Info("configuration loaded", "version", version.Full(), "config_dir", *configDir, "object_store_backend", cfg.ObjectStore.Backend)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	db, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL and applied migrations")

	objects, err := newObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	gateway := metrics.InstrumentGateway(llm.NewAnthropicGateway(apiKey))

	masker := masking.NewService(cfg.Defaults.Masking.Enabled, cfg.Defaults.Masking.PatternGroup)

	store := statusstore.New(db)
	broker := queue.NewBroker(db, cfg.Queue.MaxDeliveryCount)
	recorder := events.NewRecorder(db.DB)

	connManager := events.NewConnectionManager(recorder, 10*time.Second)
	listener := events.NewNotifyListener(pgDSN(dbConfig), connManager)
	connManager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("Failed to start NOTIFY listener: %v", err)
	}

	deps := stages.Deps{Store: store, Objects: objects, LLM: gateway, Masker: masker}

	var renderer diagram.Renderer
	if cfg.System.DiagramRenderURL != "" {
		renderer = diagram.NewHTTPRenderer(cfg.System.DiagramRenderURL)
	} else {
		renderer = diagram.NewFakeRenderer()
		slog.Warn("diagram_render_url not configured, using FakeRenderer")
	}

	reviewers := selectReviewers(cfg.ReviewFlags)

	queueConfig := queue.Config{
		WorkerCount:             cfg.Queue.WorkerCount,
		PollInterval:            cfg.Queue.PollInterval,
		LockDuration:            cfg.Queue.LockDuration,
		AbandonBackoff:          cfg.Queue.AbandonBackoff,
		HeartbeatInterval:       90 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}

	specs := []queue.QueueSpec{
		{Queue: models.StagePlanIntake, Handler: metrics.InstrumentHandler(models.StagePlanIntake, stages.NewPlanIntakeHandler(deps))},
		{Queue: models.StageIntakeResume, Handler: metrics.InstrumentHandler(models.StageIntakeResume, stages.NewIntakeResumeHandler(deps))},
		{Queue: models.StagePlan, Handler: metrics.InstrumentHandler(models.StagePlan, stages.NewPlanHandler(deps))},
		{Queue: models.StageWrite, Handler: metrics.InstrumentHandler(models.StageWrite, stages.NewWriteHandler(deps))},
		{Queue: models.StageReview, Handler: metrics.InstrumentHandler(models.StageReview, stages.NewReviewHandler(deps, reviewers))},
		{Queue: models.StageVerify, Handler: metrics.InstrumentHandler(models.StageVerify, stages.NewVerifyHandler(deps))},
		{Queue: models.StageRewrite, Handler: metrics.InstrumentHandler(models.StageRewrite, stages.NewRewriteHandler(deps))},
		{Queue: models.StageDiagramPrep, Handler: metrics.InstrumentHandler(models.StageDiagramPrep, stages.NewDiagramPrepHandler(deps))},
		{Queue: models.StageDiagramRender, Handler: metrics.InstrumentHandler(models.StageDiagramRender, stages.NewDiagramRenderHandler(deps, renderer))},
		{Queue: models.StageFinalize, Handler: metrics.InstrumentHandler(models.StageFinalize, stages.NewFinalizeHandler(deps, nil))},
	}
	queueNames := make([]string, len(specs))
	for i, s := range specs {
		queueNames[i] = s.Queue
	}

	pool := queue.NewWorkerPool(getEnv("POD_ID", "docwriter-0"), broker, recorder, queueConfig, specs)
	pool.Start(ctx)
	defer pool.Stop()

	sweeper := queue.NewDeadLetterSweeper(broker, queueNames, cfg.Retention.CleanupInterval).
		WithDeadLetterObserver(metrics.ObserveDeadLetterCount).
		WithDepthObserver(metrics.ObserveQueueDepth)
	go sweeper.Run(ctx)
	defer sweeper.Stop()

	cleanupSvc := cleanup.NewService(cfg.Retention, store)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	var slackSvc *slack.Service
	if cfg.Slack.Enabled {
		slackSvc = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.System.DashboardURL,
		})
	}
	_ = slackSvc // wired into the finalize/dead-letter paths via cmd-level hooks once the HTTP front-end lands

	k := kernel.New(store, objects, broker)
	_ = k // exposed to an HTTP front-end out of scope for this service

	router := gin.Default()
	router.GET("/healthz", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(reqCtx, db)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": dbHealth, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"version":     version.Full(),
			"database":    dbHealth,
			"connections": connManager.ActiveConnections(),
		})
	})
	router.GET("/ws/console", func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: cfg.System.AllowedWSOrigins,
		})
		if err != nil {
			return
		}
		connManager.HandleConnection(c.Request.Context(), conn)
	})

	srv := &http.Server{Addr: ":" + httpPort, Handler: router}
	go func() {
		slog.Info("HTTP server listening", "port", httpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	listener.Stop(shutdownCtx)
}

// selectReviewers filters the built-in reviewer flavors down to general
// (always enabled) plus whichever optional flavors the config turns on.
func selectReviewers(flags *config.ReviewFlagsConfig) []stages.Reviewer {
	all := stages.BuiltinReviewers()
	selected := make([]stages.Reviewer, 0, len(all))
	for _, r := range all {
		switch r.Flavor() {
		case models.ReviewFlavorGeneral:
			selected = append(selected, r)
		case models.ReviewFlavorStyle:
			if flags.EnableStyle {
				selected = append(selected, r)
			}
		case models.ReviewFlavorCohesion:
			if flags.EnableCohesion {
				selected = append(selected, r)
			}
		case models.ReviewFlavorSummary:
			if flags.EnableSummary {
				selected = append(selected, r)
			}
		}
	}
	return selected
}

// pgDSN builds the libpq connection string NotifyListener's dedicated pgx
// connection needs. database.Config itself has no such accessor since the
// pooled *sqlx.DB connects through pgx's database/sql driver instead.
func pgDSN(cfg database.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

func newObjectStore(ctx context.Context, cfg *config.ObjectStoreConfig) (objectstore.Store, error) {
	if cfg.Backend == "s3" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
				o.UsePathStyle = true
			}
		})
		return objectstore.NewS3Store(client, cfg.Bucket), nil
	}
	return objectstore.NewFSStore(cfg.LocalDir)
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chatwarden/warden/internal/aggregator"
	"github.com/chatwarden/warden/internal/ai"
	"github.com/chatwarden/warden/internal/moderation"
	"github.com/chatwarden/warden/internal/queue"
	"github.com/chatwarden/warden/internal/reputation"
	"github.com/chatwarden/warden/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ModeratorLogDir specifies where moderator log files are stored.
const ModeratorLogDir = "logs/moderator_logs"

// cleanupInterval is how often a retention sweep is scheduled.
const cleanupInterval = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "moderator",
		Usage: "Start the warden moderation coordinator",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of concurrent decision consumers",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			runModerator(ctx, c.Int("workers"))
			return nil
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runModerator starts the decision pipeline: inbound event consumers sharing
// one orchestrator, plus a periodic retention sweep producer.
func runModerator(ctx context.Context, count int64) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, "moderator", ModeratorLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	classifierCfg := &app.Config.Common.Classifier

	builder := aggregator.NewBuilder(aggregator.NewStore(app.DB), app.Cache, &app.Config.Common.Cache, app.Logger)
	engine := reputation.NewEngine(&app.Config.Common.Moderation)
	classifier := ai.NewClassifier(app.AIClient, classifierCfg, app.Logger)

	orchestrator := moderation.NewOrchestrator(
		app.DB, app.Cache, app.ActorLock, builder, engine,
		classifier, nil, app.Queue, &app.Config.Common, app.Logger,
	)

	go scheduleCleanup(ctx, app)

	var wg sync.WaitGroup

	for i := range count {
		wg.Add(1)

		go func(workerID int64) {
			defer wg.Done()

			consumerLogger := app.LogManager.GetWorkerLogger(
				fmt.Sprintf("moderator_consumer_%d", workerID),
			)

			consumer := moderation.NewConsumer(app, orchestrator, consumerLogger)

			if err := consumer.Start(ctx); err != nil {
				consumerLogger.Warn("Consumer stopped", zap.Error(err))
			}
		}(i)
	}

	log.Printf("Started moderator with %d consumers", count)
	wg.Wait()
	log.Println("Moderator shut down. Exiting.")
}

// scheduleCleanup enqueues a retention sweep on startup and then daily. The
// cleanup workers consume the sweeps; duplicate sweeps are harmless.
func scheduleCleanup(ctx context.Context, app *setup.App) {
	enqueue := func() {
		if _, err := app.Queue.Enqueue(ctx, queue.TopicCleanup, queue.CleanupJob{}); err != nil {
			app.Logger.Warn("Failed to enqueue retention sweep", zap.Error(err))
		}
	}

	enqueue()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

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

	"github.com/chatwarden/warden/internal/setup"
	"github.com/chatwarden/warden/internal/worker/cleanup"
	"github.com/chatwarden/warden/internal/worker/embedding"
	"github.com/chatwarden/warden/internal/worker/ingest"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// EmbeddingWorker embeds decided events for near-duplicate detection.
	EmbeddingWorker = "embedding"

	// IngestWorker summarizes decided events into the durable archive.
	IngestWorker = "ingest"

	// CleanupWorker applies the retention policy to events and audits.
	CleanupWorker = "cleanup"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start warden enrichment workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of workers to start",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  EmbeddingWorker,
				Usage: "Start embedding workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					runWorkers(ctx, EmbeddingWorker, c.Int("workers"))
					return nil
				},
			},
			{
				Name:  IngestWorker,
				Usage: "Start ingest workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					runWorkers(ctx, IngestWorker, c.Int("workers"))
					return nil
				},
			},
			{
				Name:  CleanupWorker,
				Usage: "Start cleanup workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					runWorkers(ctx, CleanupWorker, c.Int("workers"))
					return nil
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorkers starts multiple instances of a worker type.
func runWorkers(ctx context.Context, workerType string, count int64) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, "worker", WorkerLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	var wg sync.WaitGroup

	for i := range count {
		wg.Add(1)

		go func(workerID int64) {
			defer wg.Done()

			workerLogger := app.LogManager.GetWorkerLogger(
				fmt.Sprintf("%s_worker_%d", workerType, workerID),
			)

			var w interface {
				Start(context.Context) error
			}

			switch workerType {
			case EmbeddingWorker:
				w = embedding.New(app, workerLogger)
			case IngestWorker:
				w = ingest.New(app, workerLogger)
			case CleanupWorker:
				w = cleanup.New(app, workerLogger)
			default:
				log.Fatalf("Invalid worker type: %s", workerType)
			}

			runWorker(ctx, w, workerLogger)
		}(i)
	}

	log.Printf("Started %d %s workers", count, workerType)
	wg.Wait()
	log.Println("All workers have finished. Exiting.")
}

// runWorker runs a single worker in a loop with error recovery.
func runWorker(ctx context.Context, w interface {
	Start(context.Context) error
}, logger *zap.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping worker")
			return
		default:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Worker execution failed",
							zap.String("worker_type", fmt.Sprintf("%T", w)),
							zap.Any("panic", r),
						)
						logger.Info("Restarting worker in 5 seconds...")
						time.Sleep(5 * time.Second)
					}
				}()

				logger.Info("Starting worker")

				if err := w.Start(ctx); err != nil {
					logger.Warn("Worker stopped",
						zap.String("worker_type", fmt.Sprintf("%T", w)),
						zap.Error(err))
				}
			}()

			if ctx.Err() != nil {
				continue
			}

			time.Sleep(5 * time.Second)
		}
	}
}

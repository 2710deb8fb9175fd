package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framefolio/ms-go-downloads/app/service"
	"github.com/framefolio/ms-go-downloads/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	workerMode bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Run webhook event related commands",
}

var eventsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete processed webhook events past the retention horizon",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"events_purge",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PurgeInterval },
			func(s *service.GalleryService, ctx context.Context) error {
				for {
					purged, err := s.RunPurgeEventsBatch(ctx)
					if err != nil {
						return err
					}
					if purged == 0 {
						return nil
					}
				}
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsPurgeCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.GalleryService, ctx context.Context) error,
) {
	cfg, galleryService, _, cleanup := mustCreateGalleryService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), galleryService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(galleryService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	galleryService *service.GalleryService,
	fn func(s *service.GalleryService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(galleryService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(galleryService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}

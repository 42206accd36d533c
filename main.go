package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dealspulse/config"
	"dealspulse/dashboard"
	"dealspulse/feed"
	"dealspulse/internal/channel"
	"dealspulse/logger"
	"dealspulse/processor"
	"dealspulse/reader/postgrest"
	"dealspulse/reader/realtime"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Dealspulse.Name,
		"version": cfg.Dealspulse.Version,
	}).Info("starting dealspulse")

	if cfg.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.CloudWatch.Region, cfg.CloudWatch.Namespace, cfg.CloudWatch.Dashboard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.EventBuffer)
	defer channels.Close()

	store := feed.NewStore()
	snapshots := postgrest.NewClient(cfg)

	reconciler := processor.NewReconciler(cfg, store, snapshots, channels.Events)
	stream := realtime.NewReader(cfg, channels, reconciler.SetStreamConnected)

	var wg sync.WaitGroup

	if err := reconciler.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start reconciler")
		os.Exit(1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Start(ctx); err != nil {
			log.WithError(err).Warn("realtime reader failed to start")
		}
	}()

	if srv := dashboard.NewServer(cfg.Dashboard, store, reconciler); srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.WithError(err).Warn("dashboard server failed")
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled; running headless")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping realtime reader")
	stream.Stop()

	log.Info("stopping reconciler")
	reconciler.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("dealspulse stopped")
}

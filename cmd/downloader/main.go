package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/downloader/browser"
	"github.com/rizkirmdhn/paipu/internal/downloader/service"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/rizkirmdhn/paipu/pkg/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(cfg)

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component":  "downloader_main",
			"downloaded": stats.Downloaded,
			"skipped":    stats.Skipped,
			"error":      err,
		}).Fatal("Download failed")
	}

	log.WithField("component", "downloader_main").Info("Downloader finished")
}

// run owns every resource of a download session so they are released before
// main decides the exit status
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) (models.Stats, error) {
	dlCfg := cfg.GetDownloaderConfig()

	paths, err := dlCfg.Prepare()
	if err != nil {
		return models.Stats{}, err
	}

	log.WithFields(logrus.Fields{
		"component": "downloader_main",
		"urls":      paths.URLsFile,
		"script":    paths.ScriptFile,
		"profile":   paths.ProfileDir,
		"saveDir":   paths.SaveDir,
	}).Debug("Downloader configuration loaded")

	script, err := os.ReadFile(paths.ScriptFile)
	if err != nil {
		return models.Stats{}, fmt.Errorf("error reading page script: %w", err)
	}

	urls, err := utils.ReadLines(paths.URLsFile)
	if err != nil {
		return models.Stats{}, fmt.Errorf("error reading url list: %w", err)
	}

	messageClient, err := messaging.New(cfg.GetRabbitMQConfig(), log)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer messageClient.Close()

	page, err := browser.Launch(ctx, browser.Options{
		ProfileDir:        paths.ProfileDir,
		UserAgent:         dlCfg.UserAgent,
		ExecPath:          dlCfg.BrowserExecutePath,
		NavigationTimeout: dlCfg.NavigationTimeout,
	}, log)
	if err != nil {
		return models.Stats{}, err
	}
	defer page.Close()

	downloader := service.NewDownloaderService(dlCfg, cfg.GetRabbitMQConfig(), paths, log, page, string(script), messageClient)
	return downloader.Run(ctx, urls)
}

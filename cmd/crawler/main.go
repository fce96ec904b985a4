package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/crawler/service"
	"github.com/rizkirmdhn/paipu/internal/search"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	searchCfg := cfg.GetSearchConfig()
	rabbitCfg := cfg.GetRabbitMQConfig()

	// Initialize logger, stdout is reserved for urls
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "crawler_main",
		"endpoint":  searchCfg.Endpoint(),
		"channel":   searchCfg.ChannelID,
		"interval":  searchCfg.Interval,
	}).Debug("Search configuration loaded")

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messageClient, err := messaging.New(rabbitCfg, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "crawler_main",
			"error":     err,
		}).Fatal("Failed to initialize RabbitMQ")
	}
	defer messageClient.Close()

	client := search.NewClient(searchCfg, search.NewIntervalLimiter(searchCfg.Interval), log)
	crawler := service.NewCrawlerService(searchCfg, rabbitCfg, log, client, os.Stdout, messageClient)

	found, err := crawler.Run(ctx)
	if err != nil {
		messageClient.Close()
		log.WithFields(logrus.Fields{
			"component": "crawler_main",
			"found":     found,
			"error":     err,
		}).Fatal("Crawl failed")
	}

	log.WithField("component", "crawler_main").Infof("Crawl finished, %d links written", found)
}

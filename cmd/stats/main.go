package main

import (
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/stats"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	statsCfg := cfg.GetStatsConfig()

	// Initialize logger
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "stats_main",
		"logDir":    statsCfg.LogDir,
		"minKyoku":  statsCfg.MinKyoku,
	}).Debug("Stats configuration loaded")

	players, err := stats.Report(statsCfg, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "stats_main",
			"error":     err,
		}).Fatal("Failed to build statistics")
	}

	log.WithFields(logrus.Fields{
		"component": "stats_main",
		"info":      statsCfg.InfoOutput,
		"yaku":      statsCfg.YakuOutput,
	}).Infof("Statistics written for %d players", players)
}

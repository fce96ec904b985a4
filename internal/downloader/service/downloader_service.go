package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/downloader/browser"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/rizkirmdhn/paipu/pkg/paipu"
	"github.com/rizkirmdhn/paipu/pkg/utils"
	"github.com/sirupsen/logrus"
)

// DownloaderService visits log pages one at a time and saves what the page
// script downloads
type DownloaderService struct {
	config    *config.DownloaderConfig
	rabbitCfg *config.RabbitMQConfig
	paths     *config.Paths
	log       *logger.ComponentLogger
	page      browser.Page
	script    string
	message   messaging.Publisher
	runID     string
}

func NewDownloaderService(cfg *config.DownloaderConfig, rabbitCfg *config.RabbitMQConfig, paths *config.Paths, log *logrus.Logger, page browser.Page, script string, message messaging.Publisher) *DownloaderService {
	return &DownloaderService{
		config:    cfg,
		rabbitCfg: rabbitCfg,
		paths:     paths,
		log:       logger.NewComponentLogger(log, "downloader"),
		page:      page,
		script:    script,
		message:   message,
		runID:     uuid.NewString(),
	}
}

// Run processes urls in order. A url whose file already exists is skipped
// without touching the browser. The first failure stops the run; files saved
// before it are kept.
func (s *DownloaderService) Run(ctx context.Context, urls []string) (models.Stats, error) {
	stats := models.Stats{Total: len(urls)}

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		task := paipu.NewTask(url, s.paths.SaveDir)

		exists, err := utils.Exists(task.Path)
		if err != nil {
			return stats, fmt.Errorf("error checking %s: %w", task.Path, err)
		}
		if exists {
			stats.Skipped++
			s.log.WithFields(logrus.Fields{
				"progress": fmt.Sprintf("%d/%d", i+1, len(urls)),
				"path":     task.Path,
			}).Infof("Skip %s", url)
			s.publish(task, models.StatusSkipped, nil, stats)
			continue
		}

		if err := s.download(ctx, task); err != nil {
			s.publish(task, models.StatusFailed, err, stats)
			return stats, err
		}
		stats.Downloaded++

		s.log.WithFields(logrus.Fields{
			"progress": fmt.Sprintf("%d/%d", i+1, len(urls)),
			"url":      task.URL,
			"path":     task.Path,
		}).Info("Log saved")
		s.publish(task, models.StatusDownloaded, nil, stats)
	}

	s.log.WithFields(logrus.Fields{
		"total":      stats.Total,
		"skipped":    stats.Skipped,
		"downloaded": stats.Downloaded,
	}).Info("All downloads processed")

	return stats, nil
}

// download runs one navigate, evaluate, await, save cycle
func (s *DownloaderService) download(ctx context.Context, task models.DownloadTask) error {
	s.log.WithField("url", task.URL).Info("Navigating")
	if err := s.page.Navigate(ctx, task.URL); err != nil {
		return err
	}

	s.log.WithField("url", task.URL).Debug("Evaluating page script")
	if err := s.page.Evaluate(ctx, s.script); err != nil {
		return fmt.Errorf("%s: %w", task.URL, err)
	}

	data, err := s.page.AwaitDownload(ctx, s.config.DownloadTimeout)
	if err != nil {
		return fmt.Errorf("%s: %w", task.URL, err)
	}

	if err := utils.WriteFile(task.Path, data); err != nil {
		return fmt.Errorf("error saving %s: %w", task.Path, err)
	}

	return nil
}

// publish announces a task outcome. Broker failures are logged, never fatal.
func (s *DownloaderService) publish(task models.DownloadTask, status string, taskErr error, stats models.Stats) {
	event := models.Event{
		RunID:     s.runID,
		Source:    models.SourceDownloader,
		Status:    status,
		URL:       task.URL,
		Path:      task.Path,
		Stats:     &stats,
		Timestamp: time.Now(),
	}
	if taskErr != nil {
		event.Error = taskErr.Error()
	}

	if err := s.message.PublishJSON(s.rabbitCfg.Exchange, config.RoutingDownloaderLog, event); err != nil {
		s.log.WithError(err).Warn("Failed to publish downloader event")
	}
}

package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/rizkirmdhn/paipu/pkg/paipu"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 25
	SortBy          = "timestamp"
	SortOrder       = "desc"
)

// Searcher fetches one page of search results
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error)
}

// CrawlerService pages through message search results and writes every log
// link it finds, one per line
type CrawlerService struct {
	config    *config.SearchConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logger.ComponentLogger
	searcher  Searcher
	out       io.Writer
	message   messaging.Publisher
	runID     string
}

// NewCrawlerService creates a new CrawlerService
func NewCrawlerService(cfg *config.SearchConfig, rabbitCfg *config.RabbitMQConfig, log *logrus.Logger, searcher Searcher, out io.Writer, msg messaging.Publisher) *CrawlerService {
	return &CrawlerService{
		config:    cfg,
		rabbitCfg: rabbitCfg,
		log:       logger.NewComponentLogger(log, "crawler"),
		searcher:  searcher,
		out:       out,
		message:   msg,
		runID:     uuid.NewString(),
	}
}

// Run crawls from offset 0 until a page comes back empty. It returns the
// number of links written. Any search or write error ends the crawl.
func (s *CrawlerService) Run(ctx context.Context) (int, error) {
	pageSize := s.config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	stats := models.Stats{}
	for offset := 0; ; offset += pageSize {
		req := models.SearchRequest{
			ChannelID: s.config.ChannelID,
			Content:   s.config.Content,
			SortBy:    SortBy,
			SortOrder: SortOrder,
			Offset:    offset,
		}

		result, err := s.searcher.Search(ctx, req)
		if err != nil {
			return stats.Found, err
		}
		stats.Pages++

		if len(result.Messages) == 0 {
			s.log.WithFields(logrus.Fields{
				"offset": offset,
				"pages":  stats.Pages,
				"found":  stats.Found,
			}).Info("No more messages, crawl complete")
			return stats.Found, nil
		}

		for _, group := range result.Messages {
			for _, url := range paipu.Extract(group[0].Content) {
				if _, err := fmt.Fprintln(s.out, url); err != nil {
					return stats.Found, fmt.Errorf("failed to write url: %w", err)
				}
				stats.Found++
				s.publish(url, stats)
			}
		}

		s.log.WithFields(logrus.Fields{
			"offset":   offset,
			"messages": len(result.Messages),
			"found":    stats.Found,
		}).Debug("Page processed")
	}
}

// publish announces a found link. Broker failures are logged, never fatal.
func (s *CrawlerService) publish(url string, stats models.Stats) {
	err := s.message.PublishJSON(s.rabbitCfg.Exchange, config.RoutingCrawlerURL, models.Event{
		RunID:     s.runID,
		Source:    models.SourceCrawler,
		Status:    models.StatusFound,
		URL:       url,
		Stats:     &stats,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to publish crawler event")
	}
}

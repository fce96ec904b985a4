package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnexpectedStatus is returned for any non-2xx response
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMalformedResponse is returned when the body lacks the expected fields
	ErrMalformedResponse = errors.New("malformed search response")
)

// Client queries the message search endpoint
type Client struct {
	http     *resty.Client
	endpoint string
	log      *logger.ComponentLogger
}

// NewClient creates a search client. Every request waits on limiter first.
func NewClient(cfg *config.SearchConfig, limiter Limiter, log *logrus.Logger) *Client {
	httpClient := resty.New()
	httpClient.SetHeaders(cfg.Headers)
	httpClient.SetHeader("accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	} else {
		httpClient.SetTimeout(30 * time.Second)
	}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &Client{
		http:     httpClient,
		endpoint: cfg.Endpoint(),
		log:      logger.NewComponentLogger(log, "search_client"),
	}
}

// Search fetches one page of results
func (c *Client) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	params := map[string]string{
		"channel_id": req.ChannelID,
		"content":    req.Content,
		"sort_by":    req.SortBy,
		"sort_order": req.SortOrder,
		"offset":     strconv.Itoa(req.Offset),
	}

	c.log.WithFields(logrus.Fields{
		"endpoint": c.endpoint,
		"params":   params,
	}).Info("Searching messages")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("search request at offset %d: %w", req.Offset, err)
	}

	c.log.WithFields(logrus.Fields{
		"status": resp.StatusCode(),
		"body":   resp.String(),
	}).Info("Search response")

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("search request at offset %d: %w: %s", req.Offset, ErrUnexpectedStatus, resp.Status())
	}

	return decodeResult(resp.Body())
}

func decodeResult(body []byte) (*models.SearchResult, error) {
	var raw struct {
		TotalResults int                `json:"total_results"`
		Messages     *[][]models.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Messages == nil {
		return nil, fmt.Errorf("%w: missing messages", ErrMalformedResponse)
	}
	for i, group := range *raw.Messages {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: empty message group at index %d", ErrMalformedResponse, i)
		}
	}

	return &models.SearchResult{
		TotalResults: raw.TotalResults,
		Messages:     *raw.Messages,
	}, nil
}

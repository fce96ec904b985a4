package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/search"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const link = "https://mahjongsoul.game.yo-star.com/?paipu="

// fakeSearcher serves pages keyed by offset and records every request
type fakeSearcher struct {
	pages    map[int][]string
	failAt   int
	requests []models.SearchRequest
}

func (f *fakeSearcher) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	f.requests = append(f.requests, req)
	if f.failAt > 0 && req.Offset == f.failAt {
		return nil, search.ErrUnexpectedStatus
	}
	result := &models.SearchResult{}
	for _, content := range f.pages[req.Offset] {
		result.Messages = append(result.Messages, []models.Message{{Content: content}})
	}
	return result, nil
}

type recordingPublisher struct {
	events []models.Event
}

func (p *recordingPublisher) PublishJSON(exchange, routingKey string, data interface{}) error {
	p.events = append(p.events, data.(models.Event))
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(searcher Searcher, out io.Writer, pub messaging.Publisher) *CrawlerService {
	cfg := &config.SearchConfig{ChannelID: "1394370118318030888", Content: "mahjongsoul.game.yo-star.com", PageSize: 25}
	return NewCrawlerService(cfg, &config.RabbitMQConfig{Exchange: "paipu"}, quietLogger(), searcher, out, pub)
}

func fullPage(withLink string) []string {
	page := make([]string, 25)
	for i := range page {
		page[i] = fmt.Sprintf("message %d", i)
	}
	if withLink != "" {
		page[10] = "check this " + withLink + " out"
	}
	return page
}

func TestRunStopsAtFirstEmptyPage(t *testing.T) {
	searcher := &fakeSearcher{pages: map[int][]string{
		0: fullPage(link + "abc-123"),
	}}
	var out bytes.Buffer

	found, err := newService(searcher, &out, messaging.NoopClient{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, found)
	assert.Equal(t, link+"abc-123\n", out.String())
	require.Len(t, searcher.requests, 2)
	assert.Equal(t, 0, searcher.requests[0].Offset)
	assert.Equal(t, 25, searcher.requests[1].Offset)
}

func TestRunOffsetSequence(t *testing.T) {
	searcher := &fakeSearcher{pages: map[int][]string{
		0:  fullPage(""),
		25: fullPage(""),
		50: fullPage(""),
		75: {"tail"},
	}}

	_, err := newService(searcher, io.Discard, messaging.NoopClient{}).Run(context.Background())
	require.NoError(t, err)

	var offsets []int
	for _, req := range searcher.requests {
		offsets = append(offsets, req.Offset)
		assert.Equal(t, "1394370118318030888", req.ChannelID)
		assert.Equal(t, "mahjongsoul.game.yo-star.com", req.Content)
		assert.Equal(t, "timestamp", req.SortBy)
		assert.Equal(t, "desc", req.SortOrder)
	}
	assert.Equal(t, []int{0, 25, 50, 75, 100}, offsets)
}

func TestRunKeepsDuplicatesAcrossPages(t *testing.T) {
	searcher := &fakeSearcher{pages: map[int][]string{
		0:  {link + "dup", "no link here", link + "one " + link + "two"},
		25: {"https://example.com/?paipu=nope", link + "dup"},
	}}
	var out bytes.Buffer
	pub := &recordingPublisher{}

	found, err := newService(searcher, &out, pub).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, found)
	assert.Equal(t, []string{link + "dup", link + "one", link + "two", link + "dup"},
		strings.Fields(out.String()))

	require.Len(t, pub.events, 4)
	assert.Equal(t, models.StatusFound, pub.events[3].Status)
	assert.Equal(t, link+"dup", pub.events[3].URL)
	assert.Equal(t, 4, pub.events[3].Stats.Found)
}

func TestRunSearchErrorIsFatal(t *testing.T) {
	searcher := &fakeSearcher{
		pages:  map[int][]string{0: fullPage(link + "first")},
		failAt: 25,
	}
	var out bytes.Buffer

	found, err := newService(searcher, &out, messaging.NoopClient{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrUnexpectedStatus))
	assert.Equal(t, 1, found)
	assert.Len(t, searcher.requests, 2)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunWriteErrorIsFatal(t *testing.T) {
	searcher := &fakeSearcher{pages: map[int][]string{0: {link + "a"}}}

	_, err := newService(searcher, failingWriter{}, messaging.NoopClient{}).Run(context.Background())
	assert.Error(t, err)
}

type noWait struct{ waits int }

func (l *noWait) Wait(context.Context) error {
	l.waits++
	return nil
}

// The crawler against a real search client and a fake API: the first page
// holds 25 messages with one link, the second is empty.
func TestRunAgainstSearchAPI(t *testing.T) {
	var requests []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		require.NoError(t, err)
		requests = append(requests, offset)

		groups := [][]models.Message{}
		if offset == 0 {
			for _, content := range fullPage(link + "abc-123") {
				groups = append(groups, []models.Message{{Content: content}})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"total_results": len(groups), "messages": groups})
	}))
	defer server.Close()

	cfg := &config.SearchConfig{BaseURL: server.URL, GuildID: "563730522736689153"}
	limiter := &noWait{}
	client := search.NewClient(cfg, limiter, quietLogger())
	var out bytes.Buffer

	found, err := newService(client, &out, messaging.NoopClient{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, found)
	assert.Equal(t, link+"abc-123\n", out.String())
	assert.Equal(t, []int{0, 25}, requests)
	assert.Equal(t, 2, limiter.waits)
}

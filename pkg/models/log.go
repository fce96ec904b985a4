package models

import "time"

// Event statuses
const (
	StatusFound      = "found"
	StatusSkipped    = "skipped"
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// Event sources
const (
	SourceCrawler    = "crawler"
	SourceDownloader = "downloader"
)

// Stats represents the running totals of a crawler or downloader run
type Stats struct {
	Pages      int `json:"pages,omitempty"`
	Found      int `json:"found,omitempty"`
	Total      int `json:"total,omitempty"`
	Skipped    int `json:"skipped,omitempty"`
	Downloaded int `json:"downloaded,omitempty"`
}

// Event is published for every crawler match and downloader task outcome
type Event struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	URL       string    `json:"url"`
	Path      string    `json:"path,omitempty"`
	Error     string    `json:"error,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

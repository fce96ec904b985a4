package models

// SearchRequest is a single page request against the message search endpoint
type SearchRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
	Offset    int    `json:"offset"`
}

// Message is a chat message returned by the search endpoint
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// SearchResult is one page of search hits. Each hit is a group of messages
// whose first element is the matching message.
type SearchResult struct {
	TotalResults int         `json:"total_results"`
	Messages     [][]Message `json:"messages"`
}

// DownloadTask describes a single log to fetch
type DownloadTask struct {
	URL  string `json:"url"`
	ID   string `json:"id"`
	Path string `json:"path"`
}

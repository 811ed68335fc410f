package models

import "time"

// Document is the normalized text fetched from one URL (plus any
// same-domain pages folded in when link following is enabled).
type Document struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Text        string    `json:"text"`
	Pages       int       `json:"pages"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// CrawledPage is a single page captured during a crawl.
type CrawledPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	StatusCode int       `json:"status_code"`
	WordCount  int       `json:"word_count"`
	CrawledAt  time.Time `json:"crawled_at"`
}

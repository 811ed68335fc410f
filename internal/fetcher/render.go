package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"webchat-backend/internal/logger"
	"webchat-backend/models"
)

// renderFirstPage loads the URL in a headless browser so client-rendered
// content is visible, then extracts its text. Failures are soft: the
// plain HTTP path still runs.
func (f *Fetcher) renderFirstPage(ctx context.Context, pageURL string) (models.CrawledPage, bool) {
	html, err := f.renderPageHTML(ctx, pageURL)
	if err != nil || html == "" {
		if err != nil {
			logger.Warn("JS render failed, falling back to plain fetch", "url", pageURL, "error", err)
		}
		return models.CrawledPage{}, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.CrawledPage{}, false
	}

	title := strings.TrimSpace(doc.Find("title").Text())
	content := extractVisibleText(doc.Selection)
	if len(strings.Fields(content)) < 10 {
		return models.CrawledPage{}, false
	}

	return models.CrawledPage{
		URL:        pageURL,
		Title:      title,
		Content:    content,
		StatusCode: 200,
		WordCount:  len(strings.Fields(content)),
		CrawledAt:  time.Now(),
	}, true
}

func (f *Fetcher) renderPageHTML(ctx context.Context, urlStr string) (string, error) {
	timeout := f.renderTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(f.userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", err
	}

	// Soft-fail readiness wait; some pages never settle.
	stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second)
	_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	cancelStep()

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

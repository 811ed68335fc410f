package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	readability "github.com/go-shiori/go-readability"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/models"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Fetcher retrieves website content and normalizes it to plain text.
// Its only side effect is network I/O; nothing is cached past the
// returned Document.
type Fetcher struct {
	timeout       time.Duration
	maxPages      int
	renderJS      bool
	renderTimeout time.Duration
	userAgent     string
}

func New(cfg *config.Config) *Fetcher {
	return &Fetcher{
		timeout:       cfg.FetchTimeout,
		maxPages:      cfg.MaxCrawlPages,
		renderJS:      cfg.RenderJS,
		renderTimeout: cfg.RenderTimeout,
		userAgent:     defaultUserAgent,
	}
}

// Fetch retrieves the URL and returns its visible text. With followLinks
// set, same-domain links are followed breadth-first up to the configured
// page budget and folded into one document with per-page separation.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, followLinks bool) (*models.Document, error) {
	startURL, err := normalizeURL(rawURL)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: "invalid URL", Err: err}
	}

	parsed, _ := url.Parse(startURL)
	hostname := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	allowedDomains := []string{hostname, "www." + hostname}

	maxPages := f.maxPages
	if !followLinks || maxPages <= 0 {
		maxPages = 1
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(2),
		colly.AllowedDomains(allowedDomains...),
	)
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(f.timeout)
	c.UserAgent = f.userAgent
	c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2, RandomDelay: 500 * time.Millisecond})

	var (
		mu       sync.Mutex
		pages    []models.CrawledPage
		desc     string
		fetchErr error
	)
	queued := sync.Map{}
	queued.Store(startURL, true)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") &&
			!strings.Contains(contentType, "application/xhtml+xml") && !strings.Contains(contentType, "text/plain") {
			normalized, _ := normalizeURL(r.Request.URL.String())
			if normalized == startURL {
				mu.Lock()
				fetchErr = &models.FetchError{
					URL: startURL, Status: r.StatusCode,
					Reason: "unsupported content type " + contentType,
				}
				mu.Unlock()
			}
			return
		}

		// Go's transport decompresses gzip; brotli must be handled here.
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(r.Body))); err == nil {
				r.Body = decompressed
			}
		}
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bytes.NewReader(r.Body), contentType); err == nil {
				if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if len(pages) >= maxPages {
			return
		}

		pageURL, err := normalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}
		for _, p := range pages {
			if p.URL == pageURL {
				return
			}
		}

		title, content := extractReadableText(e.Response.Body, e.Request.URL)
		if content == "" {
			title = strings.TrimSpace(e.DOM.Find("title").Text())
			content = extractVisibleText(e.DOM)
		}
		if len(strings.Fields(content)) < 3 {
			return
		}
		if pageURL == startURL && desc == "" {
			desc, _ = e.DOM.Find("meta[name='description']").Attr("content")
		}

		pages = append(pages, models.CrawledPage{
			URL:        pageURL,
			Title:      title,
			Content:    content,
			StatusCode: e.Response.StatusCode,
			WordCount:  len(strings.Fields(content)),
			CrawledAt:  time.Now(),
		})

		if followLinks && len(pages) < maxPages {
			f.enqueueLinks(e, c, &queued)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		normalized, _ := normalizeURL(r.Request.URL.String())
		if normalized != startURL {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if fetchErr != nil {
			return
		}
		reason := "request failed"
		if r.StatusCode != 0 {
			reason = http.StatusText(r.StatusCode)
			if reason == "" {
				reason = "HTTP error"
			}
		}
		fetchErr = &models.FetchError{URL: startURL, Status: r.StatusCode, Reason: reason, Err: err}
	})

	// JS-heavy sites: prerender the first page in a headless browser.
	if f.renderJS {
		if page, ok := f.renderFirstPage(ctx, startURL); ok {
			mu.Lock()
			pages = append(pages, page)
			mu.Unlock()
		}
	}

	if err := c.Visit(startURL); err != nil && !strings.Contains(err.Error(), "already visited") {
		return nil, &models.FetchError{URL: startURL, Reason: "request failed", Err: err}
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(pages) == 0 {
		if fetchErr != nil {
			return nil, fetchErr
		}
		if ctx.Err() != nil {
			return nil, &models.FetchError{URL: startURL, Reason: "fetch canceled", Err: ctx.Err()}
		}
		return nil, &models.FetchError{URL: startURL, Reason: "no readable text content found"}
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, collapseWhitespace(p.Content))
	}

	doc := &models.Document{
		URL:         startURL,
		Title:       pages[0].Title,
		Description: strings.TrimSpace(desc),
		Text:        strings.Join(texts, "\n\n"),
		Pages:       len(pages),
		FetchedAt:   time.Now(),
	}
	logger.Debug("fetched document", "url", startURL, "pages", doc.Pages, "chars", len(doc.Text))
	return doc, nil
}

func (f *Fetcher) enqueueLinks(e *colly.HTMLElement, c *colly.Collector, queued *sync.Map) {
	linkCount := 0
	e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if linkCount >= 20 {
			return
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		hrefLower := strings.ToLower(href)
		if strings.HasPrefix(href, "#") || strings.HasPrefix(hrefLower, "javascript:") ||
			strings.HasPrefix(hrefLower, "mailto:") || strings.HasPrefix(hrefLower, "tel:") {
			return
		}
		absolute := e.Request.AbsoluteURL(href)
		if absolute == "" {
			return
		}
		normalized, err := normalizeURL(absolute)
		if err != nil {
			return
		}
		if _, seen := queued.LoadOrStore(normalized, true); seen {
			return
		}
		linkCount++
		c.Visit(normalized)
	})
}

// extractReadableText runs readability article extraction, which strips
// navigation, ads and other boilerplate.
func extractReadableText(body []byte, pageURL *url.URL) (title, content string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) < 100 {
		return "", ""
	}
	return strings.TrimSpace(article.Title), text
}

// extractVisibleText is the fallback for pages readability cannot parse:
// drop script/style/nav boilerplate and take the remaining text.
func extractVisibleText(sel *goquery.Selection) string {
	doc := sel.Clone()
	doc.Find("script, style, nav, footer, header, aside, noscript, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads").Remove()

	for _, selector := range []string{"main", "article", "[role='main']", ".main-content", ".content", "#content", "body"} {
		text := strings.TrimSpace(doc.Find(selector).Text())
		if len(text) > 100 {
			return text
		}
	}
	return strings.TrimSpace(doc.Find("body").Text())
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// normalizeURL canonicalizes a URL for duplicate detection: lowercase
// scheme/host, fragment dropped, default ports and non-root trailing
// slashes removed. A missing scheme defaults to https.
func normalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", &models.FetchError{URL: rawURL, Reason: "unsupported URL scheme " + parsed.Scheme}
	}
	if parsed.Hostname() == "" {
		return "", &models.FetchError{URL: rawURL, Reason: "missing host"}
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	path := parsed.Path
	if path != "" && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path

	if (parsed.Port() == "80" && parsed.Scheme == "http") || (parsed.Port() == "443" && parsed.Scheme == "https") {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

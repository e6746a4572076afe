package retrieval

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"scout/internal/research"
)

// BrowserFetch renders a page in headless Chrome and distils it to
// article text with readability.
type BrowserFetch struct {
	Timeout  time.Duration
	MaxChars int
}

func (f *BrowserFetch) Fetch(ctx context.Context, raw string) (research.Page, error) {
	if strings.TrimSpace(raw) == "" {
		return research.Page{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	html, err := fetchHTML(ctx, raw)
	if err != nil {
		return research.Page{}, err
	}
	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(raw))
	if err != nil {
		return research.Page{}, err
	}
	text := strings.TrimSpace(article.TextContent)
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return research.Page{
		URL:   raw,
		Title: strings.TrimSpace(article.Title),
		Text:  text,
	}, nil
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("ScoutResearch/1.0 (+contact@example.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

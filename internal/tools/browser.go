package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// BrowserFetcher renders pages in headless Chrome before extracting text,
// for sites that build their content with JavaScript.
type BrowserFetcher struct {
	Timeout time.Duration

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{Timeout: timeout}
}

func (b *BrowserFetcher) initBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserFetcher) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := b.initBrowser(); err != nil {
		return "", fmt.Errorf("failed to initialize browser: %v", err)
	}

	// a new tab per fetch, bounded by both the caller and our own timeout
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch failed: %w", err)
	}

	pageURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return CleanText(html), nil
	}
	return CleanText(article.TextContent), nil
}

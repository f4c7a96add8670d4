package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// URLProvider returns candidate result pages for a query.
type URLProvider interface {
	SearchURLs(ctx context.Context, query string, limit int) ([]string, error)
}

// DuckDuckGo is a URLProvider backed by the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	client *duckduckgo.Tool
}

func NewDuckDuckGo(maxResults int) (*DuckDuckGo, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{client: ddg}, nil
}

var resultURL = regexp.MustCompile(`(?m)^URL:[ \t]*(\S+)[ \t]*$`)

func (d *DuckDuckGo) SearchURLs(ctx context.Context, query string, limit int) ([]string, error) {
	res, err := d.client.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	urls := ParseResultURLs(res)
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

// ParseResultURLs extracts the URL lines of a formatted DuckDuckGo result.
func ParseResultURLs(formatted string) []string {
	var urls []string
	for _, m := range resultURL.FindAllStringSubmatch(formatted, -1) {
		u := m[1]
		// redirect links keep a tracking suffix after the target
		if i := strings.Index(u, "&rut="); i >= 0 {
			u = u[:i]
		}
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			urls = append(urls, u)
		}
	}
	return urls
}

package research

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/petvoyage/regsync/pkg/firecrawl"
	"github.com/petvoyage/regsync/pkg/jina"
)

// Page is a fetched page in reader-neutral form.
type Page struct {
	Title   string
	Content string

	// Links maps anchor text to URL. Readers that only report bare URLs
	// use an empty anchor.
	Links map[string]string
}

// Reader fetches a single URL as markdown plus outbound links.
type Reader interface {
	ReadPage(ctx context.Context, url string) (*Page, error)
	Name() string
}

type jinaReader struct {
	client jina.Client
}

// NewJinaReader wraps a Jina client as a Reader.
func NewJinaReader(c jina.Client) Reader {
	return &jinaReader{client: c}
}

func (r *jinaReader) Name() string { return "jina" }

func (r *jinaReader) ReadPage(ctx context.Context, url string) (*Page, error) {
	resp, err := r.client.Read(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Page{
		Title:   resp.Data.Title,
		Content: resp.Data.Content,
		Links:   resp.Data.Links,
	}, nil
}

type firecrawlReader struct {
	client firecrawl.Client
}

// NewFirecrawlReader wraps a Firecrawl client as a Reader.
func NewFirecrawlReader(c firecrawl.Client) Reader {
	return &firecrawlReader{client: c}
}

func (r *firecrawlReader) Name() string { return "firecrawl" }

func (r *firecrawlReader) ReadPage(ctx context.Context, url string) (*Page, error) {
	resp, err := r.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     url,
		Formats: []string{"markdown", "links"},
	})
	if err != nil {
		return nil, err
	}
	page := &Page{
		Title:   resp.Data.Title,
		Content: resp.Data.Markdown,
	}
	if len(resp.Data.Links) > 0 {
		// Firecrawl reports bare URLs without anchor text; key by the URL
		// itself so entries do not collide.
		page.Links = make(map[string]string, len(resp.Data.Links))
		for _, l := range resp.Data.Links {
			page.Links[l] = l
		}
	}
	return page, nil
}

type chainReader struct {
	readers []Reader
}

// NewReaderChain tries readers in order, returning the first success. A
// reader failure is logged and the next reader tried; the last error
// propagates when all fail.
func NewReaderChain(readers ...Reader) Reader {
	return &chainReader{readers: readers}
}

func (c *chainReader) Name() string { return "chain" }

func (c *chainReader) ReadPage(ctx context.Context, url string) (*Page, error) {
	var lastErr error
	for _, r := range c.readers {
		page, err := r.ReadPage(ctx, url)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("reader failed, trying next",
				zap.String("reader", r.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "research: all readers failed")
	}
	return nil, eris.Errorf("research: no reader produced %s", url)
}

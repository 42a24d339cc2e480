package core

import (
	"context"
	"fmt"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/tools/web_fetch"
	"github.com/scouthq/scout/tools/web_search"
)

// NewSearcher builds the configured web search backend.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("search provider %s has no API key configured", cfg.Provider)
	}
	ws, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey())
	if err != nil {
		return nil, err
	}
	return searcherAdapter{ws: ws}, nil
}

type searcherAdapter struct {
	ws web_search.WebSearcher
}

func (a searcherAdapter) Discover(ctx context.Context, q string, k int) ([]WebResult, error) {
	hits, err := a.ws.Discover(ctx, q, k)
	if err != nil {
		return nil, err
	}
	out := make([]WebResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, WebResult{Title: h.Title, URL: h.URL, Snippet: h.Snippet})
	}
	return out, nil
}

// NewPageReader builds the page text extractor used for top-hit
// enrichment. Returns nil when fetching is disabled.
func NewPageReader(cfg config.SearchConfig) (PageReader, error) {
	if !cfg.FetchTopResult {
		return nil, nil
	}
	wf, err := web_fetch.NewWebFetcher(web_fetch.StaticFetcherType, cfg.Timeout, cfg.FetchMaxChars)
	if err != nil {
		return nil, err
	}
	return readerAdapter{wf: wf}, nil
}

type readerAdapter struct {
	wf web_fetch.WebFetcher
}

func (a readerAdapter) Extract(ctx context.Context, url string) (string, error) {
	res, err := a.wf.Exec(ctx, url)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

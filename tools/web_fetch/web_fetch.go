package web_fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/scouthq/scout/tools/web_fetch/models"
	"github.com/scouthq/scout/tools/web_fetch/static"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	StaticFetcherType FetcherType = "static"
)

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case StaticFetcherType:
		return static.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", fetcherType)
	}
}

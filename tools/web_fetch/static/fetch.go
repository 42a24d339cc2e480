package static

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/scouthq/scout/tools/web_fetch/models"
)

// Fetch pulls a page over plain HTTP and extracts its readable text.
// Pages that need a JS runtime to render come back mostly empty; the
// caller treats that as "snippets only".
type Fetch struct {
	Timeout  time.Duration
	MaxChars int
}

func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", "ScoutResearch/1.0 (+contact@example.com)")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Result{URL: rawURL, Status: resp.StatusCode, FetchMS: int(time.Since(t0) / time.Millisecond)},
			errors.New("fetch returned status " + resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return models.Result{}, err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(rawURL))
	if err != nil {
		return models.Result{URL: rawURL, Status: resp.StatusCode, FetchMS: int(time.Since(t0) / time.Millisecond)}, nil
	}
	text := strings.TrimSpace(article.TextContent)
	if f.MaxChars > 0 && len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}

	return models.Result{
		URL:     rawURL,
		Title:   strings.TrimSpace(article.Title),
		Text:    text,
		Status:  resp.StatusCode,
		FetchMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

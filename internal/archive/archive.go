package archive

import (
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/scouthq/scout/internal/agent/core"
)

// Archive is a BM25 index over finished reports, backing the run
// history search endpoint. Memory-only; it is rebuilt from the run
// store on startup.
type Archive struct {
	mu    sync.RWMutex
	bleve bleve.Index
	meta  map[string]Entry
}

// Entry is the indexed view of one run's report.
type Entry struct {
	RunID        string    `json:"run_id"`
	Query        string    `json:"query"`
	ShortSummary string    `json:"short_summary"`
	Report       string    `json:"report"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Hit is one search result with its BM25 score.
type Hit struct {
	RunID        string  `json:"run_id"`
	Query        string  `json:"query"`
	ShortSummary string  `json:"short_summary"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
}

func New() (*Archive, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Archive{bleve: index, meta: make(map[string]Entry)}, nil
}

// Index adds a finished run's report to the archive.
func (a *Archive) Index(rec core.RunRecord) error {
	if rec.Report == nil {
		return nil
	}
	entry := Entry{
		RunID:        rec.ID,
		Query:        rec.Query,
		ShortSummary: rec.Report.ShortSummary,
		Report:       rec.Report.Markdown,
	}
	if rec.FinishedAt != nil {
		entry.FinishedAt = *rec.FinishedAt
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.meta[rec.ID] = entry
	return a.bleve.Index(rec.ID, entry)
}

// Search runs a query-string search over indexed reports and returns
// the top k hits.
func (a *Archive) Search(q string, k int) ([]Hit, error) {
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)

	a.mu.RLock()
	defer a.mu.RUnlock()
	res, err := a.bleve.Search(searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for _, hit := range res.Hits {
		entry := a.meta[hit.ID]
		out = append(out, Hit{
			RunID:        entry.RunID,
			Query:        entry.Query,
			ShortSummary: entry.ShortSummary,
			Snippet:      snippet(entry.Report),
			Score:        hit.Score,
		})
	}
	return out, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 240 {
		return text[:240] + "..."
	}
	return text
}

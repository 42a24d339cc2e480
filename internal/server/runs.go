package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/scouthq/scout/config"
	"github.com/scouthq/scout/internal/agent/core"
	"github.com/scouthq/scout/internal/archive"
	"github.com/scouthq/scout/internal/store"
)

// ResearchHandler exposes the research pipeline and its run history.
type ResearchHandler struct {
	cfg       *config.Config
	orch      *core.Orchestrator
	clarifier *core.Clarifier
	store     core.RunStore
	archive   *archive.Archive
	logger    *log.Logger
}

func NewResearchHandler(cfg *config.Config, orch *core.Orchestrator, clarifier *core.Clarifier, runStore core.RunStore, arc *archive.Archive) *ResearchHandler {
	return &ResearchHandler{
		cfg:       cfg,
		orch:      orch,
		clarifier: clarifier,
		store:     runStore,
		archive:   arc,
		logger:    log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/clarify", h.clarify)
	if h.cfg.Server.RunStreamEnabled {
		g.POST("/research", h.research)
	}
	g.GET("/runs", h.listRuns)
	g.GET("/runs/search", h.searchRuns)
	g.GET("/runs/:run_id", h.getRun)
}

// clarify returns clarifying questions for a query without starting a
// run. The UI shows them and posts the answers back with /research.
func (h *ResearchHandler) clarify(c echo.Context) error {
	var req ClarifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	qs, err := h.clarifier.Clarify(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	resp := ClarifyResponse{}
	for _, q := range qs {
		resp.Questions = append(resp.Questions, q.Question)
	}
	return c.JSON(http.StatusOK, resp)
}

// research starts a run and streams its status events via Server-Sent
// Events until the terminal event.
func (h *ResearchHandler) research(c echo.Context) error {
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if len(req.Answers) > 0 && len(req.Answers) != len(req.Questions) {
		return echo.NewHTTPError(http.StatusBadRequest, "answers must match questions")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	coreReq := core.ResearchRequest{
		Query:          req.Query,
		Timestamp:      time.Now(),
		SkipClarify:    req.SkipClarify,
		RecipientEmail: req.RecipientEmail,
	}
	for i, q := range req.Questions {
		clar := core.Clarification{Question: q}
		if i < len(req.Answers) {
			clar.Answer = req.Answers[i]
		}
		coreReq.Clarifications = append(coreReq.Clarifications, clar)
	}

	ctx := c.Request().Context()
	for ev := range h.orch.Run(ctx, coreReq) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Printf("marshal status event: %v", err)
			continue
		}
		if _, err := resp.Write([]byte("event: status\n")); err != nil {
			return nil // client gone; orchestrator sees ctx cancel
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return nil
		}
		flusher.Flush()
	}
	return nil
}

func (h *ResearchHandler) listRuns(c echo.Context) error {
	runs, err := h.store.ListRuns(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// history listing stays light: drop per-task details
	for i := range runs {
		runs[i].Tasks = nil
		runs[i].Results = nil
		if runs[i].Report != nil {
			runs[i].Report = &core.Report{ShortSummary: runs[i].Report.ShortSummary}
		}
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *ResearchHandler) getRun(c echo.Context) error {
	rec, err := h.store.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// searchRuns runs a full-text query over archived reports.
func (h *ResearchHandler) searchRuns(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k := 10
	if v := strings.TrimSpace(c.QueryParam("k")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			k = n
		}
	}
	hits, err := h.archive.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

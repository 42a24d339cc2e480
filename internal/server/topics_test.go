package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/scouthq/scout/internal/store"
)

func postTopic(t *testing.T, h *TopicsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/topics", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.create(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestTopicCreateAndGet(t *testing.T) {
	h := &TopicsHandler{Store: store.NewTopicStore(nil)}
	rec := postTopic(t, h, `{"query":"ai news","cron":"0 8 * * *","recipient_email":"a@b.c"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp IDResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ID == "" {
		t.Fatal("create should return an id")
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	out := httptest.NewRecorder()
	c := e.NewContext(req, out)
	c.SetParamNames("topic_id")
	c.SetParamValues(resp.ID)
	if err := h.get(c); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var topic store.Topic
	_ = json.Unmarshal(out.Body.Bytes(), &topic)
	if topic.Query != "ai news" || topic.Cron != "0 8 * * *" {
		t.Fatalf("unexpected topic: %+v", topic)
	}
}

func TestTopicCreateRejectsBadInput(t *testing.T) {
	h := &TopicsHandler{Store: store.NewTopicStore(nil)}
	if rec := postTopic(t, h, `{"query":"","cron":"@daily"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query: expected 400, got %d", rec.Code)
	}
	if rec := postTopic(t, h, `{"query":"q","cron":"not a cron"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad cron: expected 400, got %d", rec.Code)
	}
	if rec := postTopic(t, h, `{"query":"q","cron":"@daily"}`); rec.Code != http.StatusCreated {
		t.Fatalf("@daily should be accepted, got %d", rec.Code)
	}
}

func TestTopicDeleteMissing(t *testing.T) {
	h := &TopicsHandler{Store: store.NewTopicStore(nil)}
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("topic_id")
	c.SetParamValues("nope")
	err := h.delete(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

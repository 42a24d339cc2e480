package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/scouthq/scout/internal/store"
)

// TopicsHandler manages saved topics that the scheduler re-researches
// on a cron cadence.
type TopicsHandler struct {
	Store store.TopicStore
}

func (h *TopicsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:topic_id", h.get)
	g.DELETE("/:topic_id", h.delete)
}

func (h *TopicsHandler) create(c echo.Context) error {
	var req TopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if req.Cron != "@daily" && req.Cron != "@hourly" {
		if _, err := cronexpr.Parse(req.Cron); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid cron expression")
		}
	}
	topic := store.Topic{
		ID:             uuid.New().String(),
		Query:          strings.TrimSpace(req.Query),
		Cron:           req.Cron,
		RecipientEmail: req.RecipientEmail,
		CreatedAt:      time.Now(),
	}
	if err := h.Store.SaveTopic(c.Request().Context(), topic); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: topic.ID})
}

func (h *TopicsHandler) list(c echo.Context) error {
	topics, err := h.Store.ListTopics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, topics)
}

func (h *TopicsHandler) get(c echo.Context) error {
	topic, err := h.Store.GetTopic(c.Request().Context(), c.Param("topic_id"))
	if err != nil {
		if errors.Is(err, store.ErrTopicNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, topic)
}

func (h *TopicsHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteTopic(c.Request().Context(), c.Param("topic_id")); err != nil {
		if errors.Is(err, store.ErrTopicNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

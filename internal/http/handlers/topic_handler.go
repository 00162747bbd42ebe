package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/news-archive/internal/repo"
)

// CreateTopicsRequest is the JSON payload for POST /topics. Groups is stored
// verbatim.
type CreateTopicsRequest struct {
	Groups json.RawMessage `json:"groups" swaggertype:"object"`
}

// LatestTopics godoc
// @ID          latestTopics
// @Summary     Latest topic snapshot
// @Tags        Topics
// @Produce     json
// @Success     200  {object} domain.TopicSnapshot
// @Failure     404  {object} handlers.ErrorResponse "No snapshot stored yet"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /topics/latest [get]
func (h *Handlers) LatestTopics(c *gin.Context) {
	snap, err := h.topics.Latest(c.Request.Context())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no topic snapshot")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not load topics", err)
	default:
		ok(c, http.StatusOK, snap)
	}
}

// CreateTopics godoc
// @ID          createTopics
// @Summary     Append a topic snapshot
// @Tags        Topics
// @Accept      json
// @Produce     json
// @Param       body body     handlers.CreateTopicsRequest true "Topic groups"
// @Success     201  {object} domain.TopicSnapshot
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /topics [post]
func (h *Handlers) CreateTopics(c *gin.Context) {
	var req CreateTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Groups) == 0 || string(req.Groups) == "null" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groups is required")
		return
	}
	snap, err := h.topics.SaveSnapshot(c.Request.Context(), req.Groups)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not store topics", err)
		return
	}
	ok(c, http.StatusCreated, snap)
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/services"
	"github.com/tbourn/news-archive/internal/utils"
)

const (
	defaultNewsLimit = 100
	maxNewsLimit     = 500

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// ListNewsResponse wraps the most recently collected raw records.
type ListNewsResponse struct {
	Records []domain.RawNewsRecord `json:"records"`
}

// SaveNewsRequest is the JSON payload for POST /news.
type SaveNewsRequest struct {
	Records []domain.RawNewsRecord `json:"records" binding:"required"`
}

// SaveNewsResponse reports how many records were new.
type SaveNewsResponse struct {
	Created int `json:"created" example:"3"`
}

// ListNews godoc
// @ID          listNews
// @Summary     Recently collected news
// @Description Returns raw records newest collected first.
// @Tags        News
// @Produce     json
// @Param       limit query    int false "Maximum records" minimum(1) maximum(500) default(100)
// @Success     200   {object} handlers.ListNewsResponse
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /news [get]
func (h *Handlers) ListNews(c *gin.Context) {
	limit := limitParam(c, defaultNewsLimit, maxNewsLimit)

	recs, err := h.news.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not list news", err)
		return
	}
	if recs == nil {
		recs = []domain.RawNewsRecord{}
	}
	ok(c, http.StatusOK, ListNewsResponse{Records: recs})
}

// SearchNews godoc
// @ID          searchNews
// @Summary     Keyword search over retained news
// @Description Ranks retained records by word overlap with q over title and description. Ties favour newer records.
// @Tags        News
// @Produce     json
// @Param       q     query    string true  "Keywords"
// @Param       limit query    int    false "Maximum records" minimum(1) maximum(100) default(20)
// @Success     200   {object} handlers.ListNewsResponse
// @Failure     400   {object} handlers.ErrorResponse "Missing query"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /news/search [get]
func (h *Handlers) SearchNews(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	recs, err := h.news.Search(c.Request.Context(), q, limitParam(c, defaultSearchLimit, maxSearchLimit))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not search news", err)
		return
	}
	if recs == nil {
		recs = []domain.RawNewsRecord{}
	}
	ok(c, http.StatusOK, ListNewsResponse{Records: recs})
}

// SaveNews godoc
// @ID          saveNews
// @Summary     Ingest raw news records
// @Description Upserts records keyed by original_link. A record without original_link rejects the whole batch.
// @Tags        News
// @Accept      json
// @Produce     json
// @Param       body body     handlers.SaveNewsRequest true "Records"
// @Success     200  {object} handlers.SaveNewsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /news [post]
func (h *Handlers) SaveNews(c *gin.Context) {
	var req SaveNewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "records is required")
		return
	}
	n, err := h.news.Save(c.Request.Context(), req.Records)
	switch {
	case errors.Is(err, services.ErrMissingOriginalLink):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not save news", err)
	default:
		ok(c, http.StatusOK, SaveNewsResponse{Created: n})
	}
}

// limitParam reads ?limit= and clamps it into [1, max].
func limitParam(c *gin.Context, def, max int) int {
	n := utils.AtoiDefault(c.Query("limit"), def)
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

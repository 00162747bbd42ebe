// Learning material HTTP handlers.
//
// Endpoints:
//   - GET    /materials             (list, paginated, ETag support)
//   - GET    /materials/{id}        (fetch one)
//   - POST   /materials             (create)
//   - PATCH  /materials/{id}/audio  (record one audio URL)
//   - DELETE /materials/{id}        (delete)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
	"github.com/tbourn/news-archive/internal/services"
)

// ListMaterialsResponse wraps a page of materials and pagination metadata.
type ListMaterialsResponse struct {
	Materials  []domain.LearningMaterial `json:"materials"`
	Pagination Pagination                `json:"pagination"`
}

// CreateMaterialResponse returns the ID of a stored material.
type CreateMaterialResponse struct {
	ID string `json:"id" example:"9b1c4c1e-3f0a-4d55-9c35-7f1a1f0f2b61"`
}

// UpdateAudioRequest is the JSON payload for PATCH /materials/{id}/audio.
type UpdateAudioRequest struct {
	// One of audio_vocab_lecture, audio_summary, audio_summary_bi, audio_podcast.
	Field string `json:"field" binding:"required" example:"audio_summary"`
	URL   string `json:"url" binding:"required" example:"https://cdn.example.com/a/summary.mp3"`
}

// DeleteMaterialResponse reports how many materials were removed.
type DeleteMaterialResponse struct {
	Deleted int64 `json:"deleted" example:"1"`
}

// ListMaterials godoc
// @ID          listMaterials
// @Summary     List learning materials (paginated)
// @Description Returns materials newest first. A page past the end is clamped to the last page. Supports weak ETag via If-None-Match.
// @Tags        Materials
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object} handlers.ListMaterialsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /materials [get]
func (h *Handlers) ListMaterials(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := h.pageParams(c)

	// Best effort: a stats failure only disables the validator.
	if st, err := h.materials.Stats(ctx); err == nil {
		etag := materialsETag(st, page, pageSize)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p, err := h.materials.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not list materials", err)
		return
	}
	items := p.Items
	if items == nil {
		items = []domain.LearningMaterial{}
	}
	ok(c, http.StatusOK, ListMaterialsResponse{
		Materials: items,
		Pagination: Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      p.Total,
			TotalPages: p.TotalPages,
			HasNext:    p.Page < p.TotalPages,
		},
	})
}

// GetMaterial godoc
// @ID          getMaterial
// @Summary     Fetch a learning material
// @Tags        Materials
// @Produce     json
// @Param       id   path     string  true  "Material ID"
// @Success     200  {object} domain.LearningMaterial
// @Failure     404  {object} handlers.ErrorResponse "Material not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /materials/{id} [get]
func (h *Handlers) GetMaterial(c *gin.Context) {
	m, err := h.materials.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "material not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not load material", err)
	default:
		ok(c, http.StatusOK, m)
	}
}

// CreateMaterial godoc
// @ID          createMaterial
// @Summary     Store a learning material
// @Description Stores a generated material. A blank id is replaced by a UUID; audio fields may be omitted.
// @Tags        Materials
// @Accept      json
// @Produce     json
// @Param       body body     domain.LearningMaterial true "Material document"
// @Success     201  {object} handlers.CreateMaterialResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Material ID already exists"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /materials [post]
func (h *Handlers) CreateMaterial(c *gin.Context) {
	var m domain.LearningMaterial
	if err := c.ShouldBindJSON(&m); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	id, err := h.materials.Create(c.Request.Context(), &m)
	switch {
	case repo.IsDuplicate(err):
		fail(c, http.StatusConflict, ErrCodeConflict, "material id already exists")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not store material", err)
	default:
		ok(c, http.StatusCreated, CreateMaterialResponse{ID: id})
	}
}

// UpdateMaterialAudio godoc
// @ID          updateMaterialAudio
// @Summary     Record an audio URL
// @Description Sets one audio field of a material. Other fields are untouched.
// @Tags        Materials
// @Accept      json
// @Produce     json
// @Param       id   path     string                      true "Material ID"
// @Param       body body     handlers.UpdateAudioRequest true "Audio field and URL"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Unknown field or blank URL"
// @Failure     404  {object} handlers.ErrorResponse "Material not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /materials/{id}/audio [patch]
func (h *Handlers) UpdateMaterialAudio(c *gin.Context) {
	var req UpdateAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "field and url are required")
		return
	}
	field, err := domain.ParseAudioField(req.Field)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidAudioField, fmt.Sprintf("unknown audio field %q", req.Field))
		return
	}

	n, err := h.materials.UpdateAudio(c.Request.Context(), c.Param("id"), field, req.URL)
	switch {
	case errors.Is(err, services.ErrInvalidAudioField):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAudioField, err.Error())
	case errors.Is(err, services.ErrEmptyAudioURL):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not update audio", err)
	case n == 0:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "material not found")
	default:
		noContent(c)
	}
}

// DeleteMaterial godoc
// @ID          deleteMaterial
// @Summary     Delete a learning material
// @Tags        Materials
// @Produce     json
// @Param       id   path     string true "Material ID"
// @Success     200  {object} handlers.DeleteMaterialResponse
// @Failure     404  {object} handlers.ErrorResponse "Material not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /materials/{id} [delete]
func (h *Handlers) DeleteMaterial(c *gin.Context) {
	n, err := h.materials.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStorage, "could not delete material", err)
	case n == 0:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "material not found")
	default:
		ok(c, http.StatusOK, DeleteMaterialResponse{Deleted: n})
	}
}

// materialsETag derives the list validator from the collection fingerprint
// and the requested window.
func materialsETag(st repo.MaterialStats, page, pageSize int) string {
	var ts int64
	if st.LastUpdated != nil {
		ts = st.LastUpdated.UnixNano()
	}
	return fmt.Sprintf(`W/"materials:%d:%d:%d:%d:%d"`, st.Count, st.MaxRowID, ts, page, pageSize)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotevault/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotevault/internal/app"
)

// TagHandler handles tag administration endpoints.
type TagHandler struct {
	service *app.TagService
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(service *app.TagService) *TagHandler {
	return &TagHandler{service: service}
}

// ListTags handles GET /api/v1/tags.
func (h *TagHandler) ListTags(c *gin.Context) {
	tags, err := h.service.ListTags(c.Request.Context())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Map(tags, dto.NewTagResponse))
}

// AddTag handles POST /api/v1/tags.
//
// @Summary Create an empty tag
// @Tags tags
// @Accept json
// @Produce json
// @Param request body dto.AddTagRequest true "Tag"
// @Success 201 {object} dto.TagResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/tags [post]
func (h *TagHandler) AddTag(c *gin.Context) {
	var req dto.AddTagRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	tag, err := h.service.AddTag(c.Request.Context(), req.Name)
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTagResponse(tag))
}

// RenameTag handles PUT /api/v1/tags/:name. A 500 PARTIAL_CASCADE response
// reports progress; repeating the request finishes the rename.
//
// @Summary Rename a tag on every quote
// @Tags tags
// @Accept json
// @Produce json
// @Param name path string true "Current tag name"
// @Param request body dto.RenameTagRequest true "New name"
// @Success 200 {object} dto.TagCascadeResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse "Partial cascade"
// @Router /api/v1/tags/{name} [put]
func (h *TagHandler) RenameTag(c *gin.Context) {
	var req dto.RenameTagRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	affected, err := h.service.RenameTag(c.Request.Context(), c.Param("name"), req.Name)
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TagCascadeResponse{Tag: req.Name, Affected: affected})
}

// DeleteTag handles DELETE /api/v1/tags/:name.
func (h *TagHandler) DeleteTag(c *gin.Context) {
	name := c.Param("name")

	affected, err := h.service.DeleteTag(c.Request.Context(), name)
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TagCascadeResponse{Tag: name, Affected: affected})
}

// CleanupUnusedTags handles POST /api/v1/tags/cleanup.
func (h *TagHandler) CleanupUnusedTags(c *gin.Context) {
	deleted, err := h.service.CleanupUnusedTags(c.Request.Context())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	if deleted == nil {
		deleted = []string{}
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}

// RegisterRoutes registers tag routes on the given router group.
func (h *TagHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tags := rg.Group("/tags")
	tags.GET("", h.ListTags)
	tags.POST("", h.AddTag)
	tags.POST("/cleanup", h.CleanupUnusedTags)
	tags.PUT("/:name", h.RenameTag)
	tags.DELETE("/:name", h.DeleteTag)
}

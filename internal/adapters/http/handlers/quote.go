package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotevault/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotevault/internal/app"
)

// QuoteHandler handles quote, author and export endpoints.
type QuoteHandler struct {
	service *app.QuoteService
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(service *app.QuoteService) *QuoteHandler {
	return &QuoteHandler{
		service: service,
	}
}

// CreateQuote handles POST /api/v1/quotes.
//
// @Summary Create a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param request body dto.CreateQuoteRequest true "Quote"
// @Success 201 {object} dto.QuoteResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Likely duplicate; candidates are listed"
// @Router /api/v1/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req dto.CreateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	quote, err := h.service.CreateQuote(c.Request.Context(), app.CreateQuoteInput{
		Text:           req.Text,
		Author:         req.Author,
		Tags:           req.Tags,
		AllowDuplicate: req.AllowDuplicate,
	})
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.Header("Location", "/api/v1/quotes/"+quote.ID)
	c.JSON(http.StatusCreated, dto.NewQuoteResponse(quote))
}

// UpdateQuote handles PUT /api/v1/quotes/:id.
//
// @Summary Update a quote
// @Tags quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param request body dto.UpdateQuoteRequest true "Changed fields"
// @Success 200 {object} dto.QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Concurrent update"
// @Router /api/v1/quotes/{id} [put]
func (h *QuoteHandler) UpdateQuote(c *gin.Context) {
	var req dto.UpdateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	quote, err := h.service.UpdateQuote(c.Request.Context(), c.Param("id"), app.UpdateQuoteInput{
		Text:   req.Text,
		Author: req.Author,
		Tags:   req.Tags,
	})
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(quote))
}

// DeleteQuote handles DELETE /api/v1/quotes/:id.
//
// @Summary Delete a quote
// @Tags quotes
// @Param id path string true "Quote ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/quotes/{id} [delete]
func (h *QuoteHandler) DeleteQuote(c *gin.Context) {
	if err := h.service.DeleteQuote(c.Request.Context(), c.Param("id")); err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetQuote handles GET /api/v1/quotes/:id.
//
// @Summary Get a quote by ID
// @Tags quotes
// @Produce json
// @Param id path string true "Quote ID"
// @Success 200 {object} dto.QuoteResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/quotes/{id} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	quote, err := h.service.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewQuoteResponse(quote))
}

// ListRecent handles GET /api/v1/quotes, newest first.
func (h *QuoteHandler) ListRecent(c *gin.Context) {
	var req dto.PaginationRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	page, err := h.service.ListRecent(c.Request.Context(), req.PageRequest())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page, dto.NewQuoteResponse))
}

// Search handles GET /api/v1/quotes/search?q=.
// A page may hold fewer items than requested while HasMore is still true.
func (h *QuoteHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	page, err := h.service.Search(c.Request.Context(), req.Query, req.PageRequest())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page, dto.NewQuoteResponse))
}

// ListByAuthor handles GET /api/v1/authors/:author/quotes.
func (h *QuoteHandler) ListByAuthor(c *gin.Context) {
	var req dto.PaginationRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	page, err := h.service.ListByAuthor(c.Request.Context(), c.Param("author"), req.PageRequest())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page, dto.NewQuoteResponse))
}

// ListByTag handles GET /api/v1/tags/:name/quotes.
func (h *QuoteHandler) ListByTag(c *gin.Context) {
	var req dto.PaginationRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		dto.RespondWithRequestError(c, err)
		return
	}

	page, err := h.service.ListByTag(c.Request.Context(), c.Param("name"), req.PageRequest())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page, dto.NewQuoteResponse))
}

// ListAuthors handles GET /api/v1/authors. Aggregates may lag recent writes.
func (h *QuoteHandler) ListAuthors(c *gin.Context) {
	authors, err := h.service.ListAuthors(c.Request.Context())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.Map(authors, dto.NewAuthorResponse))
}

// ExportAll handles GET /api/v1/export.
//
// @Summary Export the catalogue
// @Tags admin
// @Produce json
// @Success 200 {object} dto.ExportResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /api/v1/export [get]
func (h *QuoteHandler) ExportAll(c *gin.Context) {
	export, err := h.service.ExportAll(c.Request.Context())
	if err != nil {
		dto.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewExportResponse(export))
}

// RegisterRoutes registers quote, author and export routes on the given router group.
func (h *QuoteHandler) RegisterRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	quotes.GET("", h.ListRecent)
	quotes.POST("", h.CreateQuote)
	quotes.GET("/search", h.Search)
	quotes.GET("/:id", h.GetQuote)
	quotes.PUT("/:id", h.UpdateQuote)
	quotes.DELETE("/:id", h.DeleteQuote)

	rg.GET("/authors", h.ListAuthors)
	rg.GET("/authors/:author/quotes", h.ListByAuthor)
	rg.GET("/tags/:name/quotes", h.ListByTag)
	rg.GET("/export", h.ExportAll)
}

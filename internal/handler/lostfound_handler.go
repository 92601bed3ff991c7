package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/internal/service"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
	"github.com/pranavraok/hostelvoice-api/pkg/response"
)

// LostFoundHandler exposes the lost-and-found board endpoints.
type LostFoundHandler struct {
	service *service.LostFoundService
}

// NewLostFoundHandler creates a new lost-and-found handler.
func NewLostFoundHandler(svc *service.LostFoundService) *LostFoundHandler {
	return &LostFoundHandler{service: svc}
}

// List godoc
// @Summary List lost-and-found items
// @Tags LostFound
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param kind query string false "LOST or FOUND"
// @Param status query string false "Status filter"
// @Param hostel_id query string false "Hostel filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /lost-found [get]
func (h *LostFoundHandler) List(c *gin.Context) {
	var req service.LostFoundListRequest

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		req.PageSize = size
	}
	if kind := c.Query("kind"); kind != "" {
		k := models.LostFoundKind(strings.ToUpper(kind))
		req.Kind = &k
	}
	if status := c.Query("status"); status != "" {
		s := models.LostFoundStatus(strings.ToUpper(status))
		req.Status = &s
	}
	req.HostelID = c.Query("hostel_id")
	req.Search = c.Query("search")

	items, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get lost-and-found item
// @Tags LostFound
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lost-found/{id} [get]
func (h *LostFoundHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Report lost or found item
// @Tags LostFound
// @Accept json
// @Produce json
// @Param payload body service.CreateLostFoundRequest true "Item payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lost-found [post]
func (h *LostFoundHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateLostFoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ReportedBy = claims.UserID

	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, item)
}

// Claim godoc
// @Summary Claim an open item
// @Tags LostFound
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lost-found/{id}/claim [post]
func (h *LostFoundHandler) Claim(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	item, err := h.service.Claim(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Resolve godoc
// @Summary Resolve an item
// @Description Mark a claimed item as returned, or close an item
// @Tags LostFound
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lost-found/{id}/resolve [post]
func (h *LostFoundHandler) Resolve(c *gin.Context) {
	var body struct {
		Returned bool `json:"returned"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	item, err := h.service.Resolve(c.Request.Context(), c.Param("id"), body.Returned)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete an item
// @Tags LostFound
// @Produce json
// @Param id path string true "Item ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lost-found/{id} [delete]
func (h *LostFoundHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

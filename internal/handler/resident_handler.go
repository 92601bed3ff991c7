package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/internal/service"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
	"github.com/pranavraok/hostelvoice-api/pkg/response"
)

// ResidentHandler exposes the resident directory endpoints.
type ResidentHandler struct {
	service *service.ResidentService
}

// NewResidentHandler creates a new resident handler.
func NewResidentHandler(svc *service.ResidentService) *ResidentHandler {
	return &ResidentHandler{service: svc}
}

// List godoc
// @Summary List residents
// @Tags Residents
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param hostel_id query string false "Hostel filter"
// @Param room_number query string false "Room filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /residents [get]
func (h *ResidentHandler) List(c *gin.Context) {
	var filter models.ResidentFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.HostelID = c.Query("hostel_id")
	filter.RoomNumber = c.Query("room_number")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	residents, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, residents, pagination)
}

// Get godoc
// @Summary Get resident
// @Tags Residents
// @Produce json
// @Param id path string true "Resident ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /residents/{id} [get]
func (h *ResidentHandler) Get(c *gin.Context) {
	resident, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resident, nil)
}

// Create godoc
// @Summary Check in resident
// @Tags Residents
// @Accept json
// @Produce json
// @Param payload body service.CreateResidentRequest true "Resident payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /residents [post]
func (h *ResidentHandler) Create(c *gin.Context) {
	var req service.CreateResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	resident, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, resident)
}

// Update godoc
// @Summary Update resident
// @Tags Residents
// @Accept json
// @Produce json
// @Param id path string true "Resident ID"
// @Param payload body service.UpdateResidentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /residents/{id} [put]
func (h *ResidentHandler) Update(c *gin.Context) {
	var req service.UpdateResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	resident, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resident, nil)
}

// CheckOut godoc
// @Summary Check out resident
// @Tags Residents
// @Produce json
// @Param id path string true "Resident ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /residents/{id}/check-out [post]
func (h *ResidentHandler) CheckOut(c *gin.Context) {
	resident, err := h.service.CheckOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resident, nil)
}

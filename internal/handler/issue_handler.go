package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pranavraok/hostelvoice-api/internal/service"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
	"github.com/pranavraok/hostelvoice-api/pkg/response"
)

// IssueHandler exposes the issue tracker endpoints, including the duplicate
// merge operation and the duplicate candidate finder.
type IssueHandler struct {
	issues *service.IssueService
	merges *service.IssueMergeService
}

// NewIssueHandler creates a new issue handler.
func NewIssueHandler(issues *service.IssueService, merges *service.IssueMergeService) *IssueHandler {
	return &IssueHandler{issues: issues, merges: merges}
}

// List godoc
// @Summary List issues
// @Description List issues with pagination and filtering
// @Tags Issues
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param category query string false "Category filter"
// @Param priority query string false "Priority filter"
// @Param status query string false "Status filter"
// @Param hostel_id query string false "Hostel filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var req service.IssueListRequest

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		req.PageSize = size
	}
	req.Category = c.Query("category")
	req.Priority = c.Query("priority")
	req.Status = c.Query("status")
	req.HostelID = c.Query("hostel_id")
	req.ReportedBy = c.Query("reported_by")
	req.AssignedTo = c.Query("assigned_to")
	req.Search = c.Query("search")
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	issues, pagination, err := h.issues.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issues, pagination)
}

// Get godoc
// @Summary Get issue
// @Description Get issue detail
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issue, nil)
}

// Create godoc
// @Summary Report issue
// @Description Report a new hostel issue
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body service.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.ReportedBy = claims.UserID

	issue, err := h.issues.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, issue)
}

// Update godoc
// @Summary Update issue
// @Description Update issue status, priority, assignment or notes
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body service.UpdateIssueRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /issues/{id} [put]
func (h *IssueHandler) Update(c *gin.Context) {
	var req service.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	issue, err := h.issues.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issue, nil)
}

// Merge godoc
// @Summary Merge duplicate issues
// @Description Merge duplicate issues into a master issue, closing the duplicates
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Master issue ID"
// @Param payload body service.MergeIssuesRequest true "Merge payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /issues/{id}/merge [post]
func (h *IssueHandler) Merge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.MergeIssuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid merge payload"))
		return
	}
	req.ActorID = claims.UserID
	req.ActorRole = claims.Role
	req.MasterIssueID = c.Param("id")

	result, err := h.merges.Merge(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Duplicates godoc
// @Summary Suggest duplicate candidates
// @Description List open issues in the same hostel and category that may duplicate this one
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Param limit query int false "Maximum candidates"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/duplicates [get]
func (h *IssueHandler) Duplicates(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	candidates, err := h.issues.FindPotentialDuplicates(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, candidates, nil)
}

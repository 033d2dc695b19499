package handler

import (
	"net/http"

	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RequestHandler struct {
	workflowService service.WorkflowService
	claimService    service.ClaimService
}

func NewRequestHandler(workflowService service.WorkflowService, claimService service.ClaimService) *RequestHandler {
	return &RequestHandler{workflowService: workflowService, claimService: claimService}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id/approve", h.ApproveRequest)
		requests.PUT("/:id/reject", h.RejectRequest)
		requests.PUT("/:id/dispatch", h.DispatchRequest)
		requests.POST("/:id/claim", h.ClaimRequest)
	}
	router.GET("/api/approval-history", h.ListApprovalHistory)
}

// CreateRequest raises a pending stock request for the calling actor
// @Summary      Create stock request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body  body      service.CreateRequestInput  true  "Request; items may be a list or a keyed object"
// @Success      201   {object}  response.Response{data=model.Request}
// @Failure      400   {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var in service.CreateRequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	req, err := h.workflowService.CreateRequest(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, req))
}

// ListRequests returns requests filtered by chain, status or requester
// @Summary      List stock requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        chain         query     string  false  "Chain key"
// @Param        status        query     string  false  "pending, approved, rejected, dispatched or claimed"
// @Param        requested_by  query     string  false  "Requester ID"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=pagination.Page}
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	p := pagination.Parse(c)
	reqs, total, err := h.workflowService.ListRequests(c.Request.Context(), service.RequestListFilter{
		RequestFilter: repository.RequestFilter{
			Chain:       c.Query("chain"),
			Status:      c.Query("status"),
			RequestedBy: c.Query("requested_by"),
		},
		Page:  p.Page,
		Limit: p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(reqs, p, total)))
}

// GetRequest returns one request with its items
// @Summary      Get stock request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=model.Request}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	req, err := h.workflowService.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ApproveRequest moves a pending request to approved
// @Summary      Approve stock request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                true   "Request ID"
// @Param        body  body      service.ApproveInput  false  "Notes"
// @Success      200   {object}  response.Response{data=model.Request}
// @Failure      409   {object}  response.Response
// @Router       /api/requests/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	var in service.ApproveInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	req, err := h.workflowService.Approve(c.Request.Context(), id, actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// RejectRequest moves a pending request to rejected; a reason is required
// @Summary      Reject stock request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string               true  "Request ID"
// @Param        body  body      service.RejectInput  true  "Reason"
// @Success      200   {object}  response.Response{data=model.Request}
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/requests/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	var in service.RejectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	req, err := h.workflowService.Reject(c.Request.Context(), id, actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// DispatchRequest releases an approved request with per-item quantities and pricing
// @Summary      Dispatch stock request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string                 true   "Request ID"
// @Param        body  body      service.DispatchInput  false  "Quantities and pricing by item key"
// @Success      200   {object}  response.Response{data=model.Request}
// @Failure      409   {object}  response.Response
// @Router       /api/requests/{id}/dispatch [put]
func (h *RequestHandler) DispatchRequest(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	var in service.DispatchInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	req, err := h.workflowService.DispatchWithPricing(c.Request.Context(), id, actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ClaimRequest credits the caller's ledger with a dispatched request, once
// @Summary      Claim dispatched request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.ClaimResult}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/claim [post]
func (h *RequestHandler) ClaimRequest(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	result, err := h.claimService.Claim(c.Request.Context(), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListApprovalHistory lists sent and claimed approval records
// @Summary      List approval history
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        requester_id  query     string  false  "Requester ID"
// @Param        status        query     string  false  "sent or claimed"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=pagination.Page}
// @Router       /api/approval-history [get]
func (h *RequestHandler) ListApprovalHistory(c *gin.Context) {
	p := pagination.Parse(c)
	records, total, err := h.workflowService.ListApprovalHistory(c.Request.Context(), service.HistoryListFilter{
		HistoryFilter: repository.HistoryFilter{
			RequesterID: c.Query("requester_id"),
			Status:      c.Query("status"),
		},
		Page:  p.Page,
		Limit: p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(records, p, total)))
}

func requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid request id")
		return uuid.Nil, false
	}
	return id, true
}

package handler

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequireRole(model.RoleAdmin, model.RoleHeadOffice))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists ledger and workflow changes, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        actor_id   query     string  false  "Actor ID"
// @Param        action     query     string  false  "Action, e.g. CONSUME_STOCK"
// @Param        entity_id  query     string  false  "Entity ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=pagination.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditListFilter{
		AuditFilter: repository.AuditFilter{
			ActorID:  c.Query("actor_id"),
			Action:   c.Query("action"),
			EntityID: c.Query("entity_id"),
		},
		Page:  p.Page,
		Limit: p.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve audit logs: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(logs, p, total)))
}

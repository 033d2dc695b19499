package handler

import (
	"net/http"
	"time"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
}

func NewStatisticsHandler(statisticsService service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	{
		statsGroup.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleHeadOffice), h.GetStatistics)
	}
}

// @Summary      Get stock statistics
// @Description  Stock received and consumed in a time range, current holdings and top consumed products
// @Tags         statistics
// @Produce      json
// @Param        chain      query     string  false  "Chain key; all chains when empty"
// @Param        start_date query     string  false  "Start Date (RFC3339)"
// @Param        end_date   query     string  false  "End Date (RFC3339)"
// @Success      200        {object}  response.Response{data=model.StockStatistics}
// @Failure      400        {object}  response.Response "Invalid date format"
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	startDateStr := c.Query("start_date")
	endDateStr := c.Query("end_date")

	var startDate, endDate time.Time
	var err error

	// Default to current month if no dates are provided
	now := time.Now()
	if startDateStr == "" {
		startDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	} else {
		startDate, err = time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			badRequest(c, "invalid start_date format, expected RFC3339")
			return
		}
	}

	if endDateStr == "" {
		endDate = now
	} else {
		endDate, err = time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			badRequest(c, "invalid end_date format, expected RFC3339")
			return
		}
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), c.Query("chain"), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

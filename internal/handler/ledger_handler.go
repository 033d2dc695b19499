package handler

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LedgerHandler struct {
	ledgerService service.LedgerService
}

func NewLedgerHandler(ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	ledgers := router.Group("/api/ledgers/:chain/:owner")
	{
		ledgers.GET("/summary", h.GetSummary)
		ledgers.GET("/entries", h.GetEntries)
		ledgers.POST("/entries", h.AddEntry)
		ledgers.POST("/consume", h.Consume)
		ledgers.POST("/transfer", h.Transfer)
		ledgers.GET("/drift", h.CheckDrift)
		ledgers.DELETE("/entries/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteEntry)
		ledgers.POST("/recalculate", middleware.RequireRole(model.RoleAdmin), h.Recalculate)
	}
}

// GetSummary lists the cached per-product summaries of one ledger
// @Summary      Get ledger summary
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        chain  path      string  true  "Chain key"
// @Param        owner  path      string  true  "Owner ID"
// @Success      200    {object}  response.Response{data=[]model.StockSummary}
// @Failure      400    {object}  response.Response
// @Router       /api/ledgers/{chain}/{owner}/summary [get]
func (h *LedgerHandler) GetSummary(c *gin.Context) {
	summaries, err := h.ledgerService.GetSummary(c.Request.Context(), c.Param("chain"), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summaries))
}

// GetEntries lists stock entries newest first
// @Summary      Get ledger entries
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        chain       path      string  true   "Chain key"
// @Param        owner       path      string  true   "Owner ID"
// @Param        product_id  query     string  false  "Only this product"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=pagination.Page}
// @Router       /api/ledgers/{chain}/{owner}/entries [get]
func (h *LedgerHandler) GetEntries(c *gin.Context) {
	p := pagination.Parse(c)
	entries, total, err := h.ledgerService.GetEntries(c.Request.Context(), service.EntryFilter{
		Chain:     c.Param("chain"),
		OwnerID:   c.Param("owner"),
		ProductID: c.Query("product_id"),
		Page:      p.Page,
		Limit:     p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(entries, p, total)))
}

// AddEntry records a direct stock receipt
// @Summary      Add stock entry
// @Tags         ledger
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chain  path      string                 true  "Chain key"
// @Param        owner  path      string                 true  "Owner ID"
// @Param        body   body      service.AddEntryInput  true  "Entry"
// @Success      201    {object}  response.Response{data=model.StockEntry}
// @Failure      400    {object}  response.Response
// @Router       /api/ledgers/{chain}/{owner}/entries [post]
func (h *LedgerHandler) AddEntry(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var in service.AddEntryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	in.Chain = c.Param("chain")
	in.OwnerID = c.Param("owner")

	entry, err := h.ledgerService.AddEntry(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}

// Consume takes stock out FIFO; it fails without writing when stock is short
// @Summary      Consume stock
// @Tags         ledger
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chain  path      string                true  "Chain key"
// @Param        owner  path      string                true  "Owner ID"
// @Param        body   body      service.ConsumeInput  true  "Consumption"
// @Success      200    {object}  response.Response{data=service.ConsumeResult}
// @Failure      409    {object}  response.Response
// @Router       /api/ledgers/{chain}/{owner}/consume [post]
func (h *LedgerHandler) Consume(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var in service.ConsumeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	in.Chain = c.Param("chain")
	in.OwnerID = c.Param("owner")

	result, err := h.ledgerService.Consume(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Transfer moves stock to another ledger atomically
// @Summary      Transfer stock
// @Tags         ledger
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chain  path      string                 true  "Chain key"
// @Param        owner  path      string                 true  "Owner ID"
// @Param        body   body      service.TransferInput  true  "Transfer"
// @Success      200    {object}  response.Response{data=service.TransferResult}
// @Failure      409    {object}  response.Response
// @Router       /api/ledgers/{chain}/{owner}/transfer [post]
func (h *LedgerHandler) Transfer(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var in service.TransferInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	in.Chain = c.Param("chain")
	in.FromOwnerID = c.Param("owner")

	result, err := h.ledgerService.Transfer(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DeleteEntry removes an entry and rolls its quantities out of the summary
// @Summary      Delete stock entry
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        chain  path      string  true  "Chain key"
// @Param        owner  path      string  true  "Owner ID"
// @Param        id     path      string  true  "Entry ID"
// @Success      200    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /api/ledgers/{chain}/{owner}/entries/{id} [delete]
func (h *LedgerHandler) DeleteEntry(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid entry id")
		return
	}

	if err := h.ledgerService.DeleteEntry(c.Request.Context(), actor, c.Param("chain"), c.Param("owner"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": id.String()}))
}

// Recalculate rebuilds every summary of the ledger from its entries
// @Summary      Recalculate summaries
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        chain  path      string  true  "Chain key"
// @Param        owner  path      string  true  "Owner ID"
// @Success      200    {object}  response.Response{data=[]model.StockSummary}
// @Router       /api/ledgers/{chain}/{owner}/recalculate [post]
func (h *LedgerHandler) Recalculate(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	summaries, err := h.ledgerService.Recalculate(c.Request.Context(), actor, c.Param("chain"), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summaries))
}

// CheckDrift reports summaries that disagree with their entries
// @Summary      Check summary drift
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        chain  path      string  true  "Chain key"
// @Param        owner  path      string  true  "Owner ID"
// @Success      200    {object}  response.Response{data=[]service.SummaryDrift}
// @Router       /api/ledgers/{chain}/{owner}/drift [get]
func (h *LedgerHandler) CheckDrift(c *gin.Context) {
	drifts, err := h.ledgerService.CheckDrift(c.Request.Context(), c.Param("chain"), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	if drifts == nil {
		drifts = []service.SummaryDrift{}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, drifts))
}

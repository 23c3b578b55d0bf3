package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/models"
	"stockwave/service"
	"stockwave/symbols"
)

// Boards returns the trending and top-loser quote lists.
type Boards interface {
	Trending(ctx context.Context) []models.Quote
	TopLosers(ctx context.Context) []models.Quote
}

type MarketHandler struct {
	boards  Boards
	symbols *symbols.Table
	company CompanySource
	logger  *zap.Logger
}

func NewMarketHandler(boards Boards, table *symbols.Table, company CompanySource, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{
		boards:  boards,
		symbols: table,
		company: company,
		logger:  logger,
	}
}

func (h *MarketHandler) HandleTrending(c *gin.Context) {
	c.JSON(http.StatusOK, h.boards.Trending(c.Request.Context()))
}

func (h *MarketHandler) HandleTopLosers(c *gin.Context) {
	c.JSON(http.StatusOK, h.boards.TopLosers(c.Request.Context()))
}

// HandleSearch matches ?ticker= against the symbol table.
func (h *MarketHandler) HandleSearch(c *gin.Context) {
	c.JSON(http.StatusOK, h.symbols.Search(c.Query("ticker")))
}

// HandleCompany returns the provider's metadata, falling back to the symbol
// table name when the provider knows nothing.
func (h *MarketHandler) HandleCompany(c *gin.Context) {
	ticker := service.NormalizeTicker(c.Query("ticker"))
	if !service.ValidTicker(ticker) {
		respondError(c, h.logger, apperrors.New(apperrors.CodeInvalidRequest, "a valid ticker is required"))
		return
	}

	info, err := h.company.CompanyInfo(c.Request.Context(), ticker)
	if err != nil {
		row, ok := h.symbols.Lookup(ticker)
		if !ok {
			respondError(c, h.logger, err)
			return
		}
		h.logger.Warn("Company info unavailable, using symbol table", zap.String("ticker", ticker), zap.Error(err))
		info = &models.CompanyInfo{
			Symbol: row.Symbol,
			Name:   models.StringPtr(row.Name),
			Sector: models.StringPtr(row.Sector),
		}
	}
	if info.Sector == nil {
		if row, ok := h.symbols.Lookup(ticker); ok {
			info.Sector = models.StringPtr(row.Sector)
		}
	}

	c.JSON(http.StatusOK, info)
}

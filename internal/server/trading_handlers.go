package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/assetdesk/tradefront/internal/assets"
	"github.com/assetdesk/tradefront/internal/domain"
)

type submitRequest struct {
	AssetID       string       `json:"assetId" binding:"required"`
	ShareAmount   float64      `json:"shareAmount"`
	PricePerShare domain.Milli `json:"pricePerShare"`
}

type cancelRequest struct {
	OrderID   int64            `json:"orderId"`
	AssetID   string           `json:"assetId"`
	OrderType domain.OrderType `json:"orderType"`
}

func (s *Server) handleBuy(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.trader.SelectAsset(req.AssetID)
	s.trader.SetAmount(req.ShareAmount)
	if err := s.trader.Buy(c.Request.Context(), req.PricePerShare); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.trader.State()})
}

func (s *Server) handleSell(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.trader.SelectAsset(req.AssetID)
	s.trader.SetAmount(req.ShareAmount)
	if err := s.trader.Sell(c.Request.Context(), req.PricePerShare); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.trader.State()})
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.trader.Cancel(c.Request.Context(), req.OrderID, req.AssetID, req.OrderType); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTradingState(c *gin.Context) {
	resp := gin.H{
		"state":  s.trader.State(),
		"amount": s.trader.Amount(),
	}
	if err := s.trader.LastErr(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTradingAck(c *gin.Context) {
	s.trader.Ack()
	c.Status(http.StatusNoContent)
}

// handleTokenize accepts a multipart form: name, value, description, type,
// totalShares plus file fields "images" (repeatable) and "document".
func (s *Server) handleTokenize(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, _ := strconv.ParseFloat(c.PostForm("value"), 64)
	totalShares, _ := strconv.ParseFloat(c.PostForm("totalShares"), 64)
	req := assets.TokenizeRequest{
		Name:        c.PostForm("name"),
		Value:       value,
		Description: c.PostForm("description"),
		Type:        domain.AssetType(c.PostForm("type")),
		TotalShares: totalShares,
	}

	for _, fh := range form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		req.Images = append(req.Images, assets.Upload{Filename: fh.Filename, Content: f})
	}
	if docs := form.File["document"]; len(docs) > 0 {
		f, err := docs[0].Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		req.OwnershipDocument = &assets.Upload{Filename: docs[0].Filename, Content: f}
	}

	created, err := s.tokenizer.Tokenize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleAssetsMine(c *gin.Context) {
	mine, err := s.tokenizer.Mine()
	if err != nil {
		s.fail(c, err)
		return
	}
	if mine == nil {
		mine = []domain.Asset{}
	}
	c.JSON(http.StatusOK, mine)
}

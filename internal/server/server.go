// Package server exposes the local view state over HTTP: JSON snapshots of
// the order partitions plus a websocket stream that pushes on ledger changes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/archive"
	"github.com/assetdesk/tradefront/internal/assets"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/internal/pricefeed"
	"github.com/assetdesk/tradefront/internal/trading"
	"github.com/assetdesk/tradefront/internal/users"
	"github.com/assetdesk/tradefront/pkg/logger"
)

type Config struct {
	Listen string
}

// Server serves one user's view. Reads are snapshots of the ledger mirror;
// writes go through the trading controller and the tokenizer, never straight
// to the store.
type Server struct {
	cfg       Config
	uid       string
	mirror    *ledger.Mirror
	store     ledger.Store
	archive   *archive.Archive
	poller    *pricefeed.Poller
	users     *users.Service
	trader    *trading.Controller
	tokenizer *assets.Tokenizer
	log       *logrus.Entry
}

func New(cfg Config, uid string, mirror *ledger.Mirror, store ledger.Store, arch *archive.Archive, poller *pricefeed.Poller, profile *users.Service, trader *trading.Controller, tokenizer *assets.Tokenizer) *Server {
	return &Server{
		cfg:       cfg,
		uid:       uid,
		mirror:    mirror,
		store:     store,
		archive:   arch,
		poller:    poller,
		users:     profile,
		trader:    trader,
		tokenizer: tokenizer,
		log:       logger.WithField("component", "server"),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.GET("/pending", s.handleOrdersPending)
	orders.GET("/matched", s.handleOrdersMatched)
	orders.GET("/completed", s.handleOrdersCompleted)
	orders.POST("/buy", s.handleBuy)
	orders.POST("/sell", s.handleSell)
	orders.POST("/cancel", s.handleCancel)

	api.GET("/trading/state", s.handleTradingState)
	api.POST("/trading/ack", s.handleTradingAck)

	api.POST("/assets/tokenize", s.handleTokenize)
	api.GET("/assets/mine", s.handleAssetsMine)

	api.GET("/position/:assetID", s.handlePosition)
	api.GET("/positions", s.handlePositions)
	api.GET("/history", s.handleHistory)
	api.GET("/price", s.handlePrice)

	api.GET("/profile", s.handleProfileGet)
	api.PUT("/profile", s.handleProfilePut)

	api.GET("/ws", s.handleWS)

	return r
}

// HTTPServer wraps the router into an http.Server bound to the configured
// address, ready for graceful shutdown by the caller.
func (s *Server) HTTPServer() *http.Server {
	addr := s.cfg.Listen
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{Addr: addr, Handler: s.Router()}
}

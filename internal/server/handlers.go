package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/position"
)

func (s *Server) handleOrdersPending(c *gin.Context) {
	orders, err := s.mirror.Pending()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleOrdersMatched(c *gin.Context) {
	trades, err := s.mirror.Matched()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleOrdersCompleted(c *gin.Context) {
	orders, err := s.mirror.Completed()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handlePosition(c *gin.Context) {
	assetID := c.Param("assetID")
	matched, err := s.mirror.Matched()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assetId": assetID,
		"shares":  position.Derive(assetID, matched),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	matched, err := s.mirror.Matched()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, position.DeriveAll(matched))
}

func (s *Server) handleHistory(c *gin.Context) {
	orders, err := s.archive.History(s.uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handlePrice(c *gin.Context) {
	snap := s.poller.Current()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleProfileGet(c *gin.Context) {
	profile, err := s.users.Load()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleProfilePut(c *gin.Context) {
	var profile domain.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.users.Save(profile); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps the error taxonomy onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientPosition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNetwork):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/internal/position"
	"github.com/assetdesk/tradefront/pkg/sigchan"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The server binds to localhost for a single user; cross-origin pages
	// cannot hold credentials we care about.
	CheckOrigin: func(*http.Request) bool { return true },
}

const wsDebounce = 100 * time.Millisecond

// viewUpdate is one websocket frame: a full snapshot of the user's view.
// Sending the whole view keeps clients stateless at the cost of frame size,
// which for one user's orders is small.
type viewUpdate struct {
	Pending   []domain.Order        `json:"pending"`
	Matched   []domain.MatchedOrder `json:"matched"`
	Completed []domain.Order        `json:"completed"`
	Positions map[string]float64    `json:"positions"`
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	changed := sigchan.New(1)
	cancel := s.store.Subscribe("orders/"+s.uid+"/", func(ledger.Event) {
		changed.Emit()
	})
	defer cancel()

	// Reader goroutine: we send only, but the close handshake needs reads.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.pushView(conn); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-changed.C():
		}
		// Debounce: a settled order touches several paths at once.
		time.Sleep(wsDebounce)
		changed.Drain()
		if err := s.pushView(conn); err != nil {
			return
		}
	}
}

func (s *Server) pushView(conn *websocket.Conn) error {
	pending, err := s.mirror.Pending()
	if err != nil {
		return err
	}
	matched, err := s.mirror.Matched()
	if err != nil {
		return err
	}
	completed, err := s.mirror.Completed()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(viewUpdate{
		Pending:   pending,
		Matched:   matched,
		Completed: completed,
		Positions: position.DeriveAll(matched),
	})
}

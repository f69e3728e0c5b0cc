package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/models"
	"github.com/codesprinters/twillmanager/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const statusStreamInterval = 2 * time.Second

// StatusStream handles GET /api/watches/status/stream: upgrades to a
// websocket and pushes the full status report list on a fixed interval,
// sparing pollers from hammering ListWatches.
func (h *Handlers) StatusStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to upgrade status stream connection")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(statusStreamInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reports, err := h.statusReports(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to build status reports for stream")
				continue
			}
			if err := conn.WriteJSON(reports); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) statusReports(ctx context.Context) ([]models.StatusReport, error) {
	watches, err := store.LoadAll(ctx, h.db)
	if err != nil {
		return nil, err
	}

	reports := make([]models.StatusReport, 0, len(watches))
	for _, w := range watches {
		reports = append(reports, h.buildReport(w))
	}
	return reports, nil
}

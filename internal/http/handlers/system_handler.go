package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mobileauth-chat/internal/http/middleware"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthTimeout bounds the store ping of a health probe.
const healthTimeout = 2 * time.Second

// Root godoc
// @ID          root
// @Summary     Service banner
// @Tags        System
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      / [get]
func Root(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"message": "Mobile Auth API is running"})
}

// Health returns a liveness handler. With a nil Pinger it always reports
// healthy; otherwise a failed ping answers 503.
//
// @ID          health
// @Summary     Liveness probe
// @Tags        System
// @Produce     json
// @Success     200  {object}  handlers.StatusResponse
// @Failure     503  {object}  handlers.StatusResponse
// @Router      /health [get]
func Health(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		ok(c, http.StatusOK, gin.H{"status": "healthy"})
	}
}

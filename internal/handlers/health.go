package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

func Health(hub *signaling.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"peers":  stats.Peers,
			"rooms":  stats.Rooms,
		})
	}
}

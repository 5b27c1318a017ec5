package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

// ICEServers returns the STUN/TURN servers browsers should use for their
// peer connections.
func ICEServers(urls []string) gin.HandlerFunc {
	servers := []webrtc.ICEServer{}
	if len(urls) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": servers})
	}
}

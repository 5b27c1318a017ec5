package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/p2pchat-signaling/config"
	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

func newRouterForTest(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	hub := signaling.NewHub(signaling.WithLogger(discardLogger()), signaling.WithMetrics(m))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	rooms := repository.NewInMemoryRoomRepository()
	require.NoError(t, repository.SeedDefaultRooms(context.Background(), rooms))

	return SetupRouter(Dependencies{
		Config: &config.Config{
			Environment:    config.EnvProduction,
			AllowedOrigins: origins,
			JWTSecret:      testSecret,
			JWTTTL:         time.Hour,
			NonceTTL:       time.Minute,
			ICEServers:     []string{"stun:stun.example.org:3478"},
			Signaling:      testSignalingConfig,
		},
		Hub:      hub,
		Rooms:    rooms,
		Messages: repository.NewInMemoryMessageRepository(),
		Nonces:   repository.NewInMemoryNonceStore(),
		Metrics:  m.Handler(),
		Log:      discardLogger(),
	})
}

func TestRouterServesOperationalEndpoints(t *testing.T) {
	r := newRouterForTest(t, []string{"https://chat.example.org"})

	for _, path := range []string{"/health", "/metrics", "/api/rooms", "/api/ice-servers"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "signaling_connections")
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newRouterForTest(t, []string{"https://chat.example.org"})

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", "https://chat.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chat.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterSignalAlias(t *testing.T) {
	srv := httptest.NewServer(newRouterForTest(t, []string{"*"}))
	defer srv.Close()

	for _, path := range []string{"/signal", "/ws/signal"} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err, path)

		send(t, conn, `{"type":"join-room","roomId":"general"}`)
		msg := receive(t, conn)
		assert.Equal(t, "room-peers", msg["type"], path)
		_ = conn.Close()
	}
}

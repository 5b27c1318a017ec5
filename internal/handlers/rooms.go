package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/middleware"
	"github.com/mossy-p/p2pchat-signaling/internal/models"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

// OnlineCounter reports how many peers are currently in a room.
type OnlineCounter interface {
	OnlineCount(ctx context.Context, roomID string) (int, error)
}

type hubCounter struct {
	hub *signaling.Hub
}

// HubOnlineCounter counts the live members the hub holds for a room.
func HubOnlineCounter(hub *signaling.Hub) OnlineCounter {
	return hubCounter{hub: hub}
}

func (h hubCounter) OnlineCount(_ context.Context, roomID string) (int, error) {
	return len(h.hub.MembersOf(roomID)), nil
}

type RoomHandler struct {
	rooms  repository.RoomRepository
	online OnlineCounter
	log    *slog.Logger
}

func NewRoomHandler(rooms repository.RoomRepository, online OnlineCounter, log *slog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:  rooms,
		online: online,
		log:    log.With(slog.String("component", "handlers.rooms")),
	}
}

// List returns every room in creation order.
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.List(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list rooms", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}

	for i := range rooms {
		h.fillOnlineCount(c.Request.Context(), &rooms[i])
	}
	c.JSON(http.StatusOK, rooms)
}

// Create adds a room owned by the authenticated wallet.
func (h *RoomHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}

	room := &models.Room{
		Name:      name,
		CreatorID: userID,
	}
	if err := h.rooms.Create(c.Request.Context(), room); err != nil {
		h.log.Error("failed to create room", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	h.log.Info("room created", slog.String("room_id", room.ID), slog.String("creator", userID))
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		h.log.Error("failed to get room", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get room"})
		return
	}

	h.fillOnlineCount(c.Request.Context(), room)
	c.JSON(http.StatusOK, room)
}

// Delete removes a room. Only its creator may do so.
func (h *RoomHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID := c.Param("roomId")
	room, err := h.rooms.Get(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		h.log.Error("failed to get room", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	if room.CreatorID == "" || !strings.EqualFold(room.CreatorID, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), roomID); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
		h.log.Error("failed to delete room", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	h.log.Info("room deleted", slog.String("room_id", roomID), slog.String("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// fillOnlineCount leaves the count at zero when presence is unavailable.
func (h *RoomHandler) fillOnlineCount(ctx context.Context, room *models.Room) {
	if h.online == nil {
		return
	}
	n, err := h.online.OnlineCount(ctx, room.ID)
	if err != nil {
		h.log.Warn("failed to count online peers", slog.String("room_id", room.ID), sl.Err(err))
		return
	}
	room.OnlineCount = n
}

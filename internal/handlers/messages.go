package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/models"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/wallet"
)

// MessageHandler serves encrypted room history. Message content is opaque to
// the server; only its hash and signature are checked.
type MessageHandler struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	log      *slog.Logger
}

func NewMessageHandler(rooms repository.RoomRepository, messages repository.MessageRepository, log *slog.Logger) *MessageHandler {
	return &MessageHandler{
		rooms:    rooms,
		messages: messages,
		log:      log.With(slog.String("component", "handlers.messages")),
	}
}

func (h *MessageHandler) List(c *gin.Context) {
	messages, err := h.messages.ListByRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		h.log.Error("failed to list messages", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Create stores a message after checking its hash and sender signature.
func (h *MessageHandler) Create(c *gin.Context) {
	roomID := c.Param("roomId")
	if _, err := h.rooms.Get(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		h.log.Error("failed to get room", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message data", "details": err.Error()})
		return
	}

	err := wallet.VerifySignedMessage(wallet.SignedMessage{
		Ciphertext: req.EncryptedContent,
		Hash:       req.Hash,
		Signature:  req.Signature,
		Sender:     req.Sender,
	})
	if err != nil {
		h.log.Debug("message rejected", slog.String("room_id", roomID), sl.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message signature or hash"})
		return
	}

	msg := &models.ChatMessage{
		RoomID:           roomID,
		Sender:           req.Sender,
		SenderPublicKey:  req.SenderPublicKey,
		Recipient:        req.Recipient,
		EncryptedContent: req.EncryptedContent,
		Hash:             req.Hash,
		Signature:        req.Signature,
		BlockchainTxHash: req.BlockchainTxHash,
		Verified:         req.Verified,
	}
	if err := h.messages.Create(c.Request.Context(), msg); err != nil {
		h.log.Error("failed to store message", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// Verify records the on-chain confirmation of a stored message.
func (h *MessageHandler) Verify(c *gin.Context) {
	var req models.VerifyMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.messages.UpdateVerification(c.Request.Context(), c.Param("id"), *req.Verified, req.TxHash)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		h.log.Error("failed to update message verification", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/middleware"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/wallet"
)

// NonceRequest asks for a login challenge for a wallet address.
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse carries the text the wallet must sign.
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// AuthHandler signs users in by wallet signature over a one-time nonce.
type AuthHandler struct {
	nonces    repository.NonceStore
	jwtSecret string
	tokenTTL  time.Duration
	nonceTTL  time.Duration
	log       *slog.Logger
}

func NewAuthHandler(nonces repository.NonceStore, jwtSecret string, tokenTTL, nonceTTL time.Duration, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		nonces:    nonces,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		nonceTTL:  nonceTTL,
		log:       log.With(slog.String("component", "handlers.auth")),
	}
}

// Nonce issues a challenge for the address, replacing any earlier one.
func (h *AuthHandler) Nonce(c *gin.Context) {
	var req NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	address, err := wallet.NormalizeAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	nonce, err := wallet.NewNonce()
	if err != nil {
		h.log.Error("failed to generate nonce", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate nonce"})
		return
	}

	if err := h.nonces.Put(c.Request.Context(), address, nonce, h.nonceTTL); err != nil {
		h.log.Error("failed to store nonce", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate nonce"})
		return
	}

	c.JSON(http.StatusOK, NonceResponse{
		Nonce:   nonce,
		Message: wallet.LoginMessage(address, nonce),
	})
}

// Login consumes the pending nonce and returns a JWT when the signature
// recovers to the claimed address.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	address, err := wallet.NormalizeAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	nonce, err := h.nonces.Take(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, repository.ErrNonceNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No pending login for this address"})
			return
		}
		h.log.Error("failed to read nonce", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		return
	}

	if err := wallet.VerifySignature(wallet.LoginMessage(address, nonce), req.Signature, address); err != nil {
		h.log.Info("wallet login rejected", slog.String("address", address), sl.Err(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, address, h.tokenTTL)
	if err != nil {
		h.log.Error("failed to issue token", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.log.Info("wallet signed in", slog.String("address", address))
	c.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		UserID: address,
	})
}

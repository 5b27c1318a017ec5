package models

import "time"

// ChatMessage is an encrypted message kept in room history. The relay never
// reads the content; integrity is checked against Hash and Signature.
type ChatMessage struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"roomId"`
	Sender           string    `json:"sender"`
	SenderPublicKey  string    `json:"senderPublicKey,omitempty"`
	Recipient        string    `json:"recipient,omitempty"`
	EncryptedContent string    `json:"encryptedContent"`
	Hash             string    `json:"hash"`
	Signature        string    `json:"signature,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	BlockchainTxHash string    `json:"blockchainTxHash,omitempty"`
	Verified         bool      `json:"verified"`
}

// CreateMessageRequest is the request body for storing a message
type CreateMessageRequest struct {
	Sender           string `json:"sender" binding:"required"`
	SenderPublicKey  string `json:"senderPublicKey"`
	Recipient        string `json:"recipient"`
	EncryptedContent string `json:"encryptedContent" binding:"required"`
	Hash             string `json:"hash" binding:"required"`
	Signature        string `json:"signature"`
	BlockchainTxHash string `json:"blockchainTxHash"`
	Verified         bool   `json:"verified"`
}

// VerifyMessageRequest records the on-chain confirmation of a message hash
type VerifyMessageRequest struct {
	Verified *bool  `json:"verified" binding:"required"`
	TxHash   string `json:"txHash"`
}

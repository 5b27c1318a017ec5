package models

import "time"

// Room is a named entry in the room directory. The relay itself accepts any
// room identifier; the directory only exists for listing and naming.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatorID   string    `json:"creatorId,omitempty"` // Wallet address from the JWT of the creator
	CreatedAt   time.Time `json:"createdAt"`
	OnlineCount int       `json:"onlineCount"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

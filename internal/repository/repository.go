package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mossy-p/p2pchat-signaling/internal/models"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNonceNotFound   = errors.New("nonce not found")
)

// RoomRepository is the room directory.
type RoomRepository interface {
	List(ctx context.Context) ([]models.Room, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository stores encrypted message history per room.
type MessageRepository interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	Create(ctx context.Context, msg *models.ChatMessage) error
	UpdateVerification(ctx context.Context, id string, verified bool, txHash string) error
}

// NonceStore holds single-use wallet login nonces.
type NonceStore interface {
	Put(ctx context.Context, address, nonce string, ttl time.Duration) error
	// Take returns and deletes the nonce for address.
	Take(ctx context.Context, address string) (string, error)
}

var defaultRooms = []string{"general", "announcements", "random"}

// SeedDefaultRooms fills an empty directory with the default public rooms.
// Their ids equal their names so clients can join them by name.
func SeedDefaultRooms(ctx context.Context, rooms RoomRepository) error {
	existing, err := rooms.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	base := time.Now().UTC()
	for i, name := range defaultRooms {
		room := &models.Room{
			ID:        name,
			Name:      name,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := rooms.Create(ctx, room); err != nil {
			return err
		}
	}
	return nil
}

func prepareRoom(room *models.Room) {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.OnlineCount = 0
}

func prepareMessage(msg *models.ChatMessage) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
}

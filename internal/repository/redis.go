package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/p2pchat-signaling/internal/models"
)

const roomIndexKey = "rooms"

func roomKey(id string) string { return "room:" + id }
func roomMessagesKey(roomID string) string { return "room:" + roomID + ":messages" }
func messageKey(id string) string { return "message:" + id }
func nonceKey(address string) string { return "nonce:" + address }

// RoomPeersKey is the presence set of a room, maintained by the presence
// recorder.
func RoomPeersKey(roomID string) string { return "room:" + roomID + ":peers" }

type RedisRoomRepository struct {
	client *redis.Client
}

func NewRedisRoomRepository(client *redis.Client) *RedisRoomRepository {
	return &RedisRoomRepository{client: client}
}

func (r *RedisRoomRepository) List(ctx context.Context) ([]models.Room, error) {
	ids, err := r.client.ZRange(ctx, roomIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(ids) == 0 {
		return []models.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rooms: %w", err)
	}

	rooms := make([]models.Room, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			// Index entry without metadata; skip it.
			continue
		}
		var room models.Room
		if err := json.Unmarshal([]byte(data), &room); err != nil {
			return nil, fmt.Errorf("failed to parse room data: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (r *RedisRoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	data, err := r.client.Get(ctx, roomKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to parse room data: %w", err)
	}
	return &room, nil
}

func (r *RedisRoomRepository) Create(ctx context.Context, room *models.Room) error {
	prepareRoom(room)

	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.ID), data, 0)
		pipe.ZAdd(ctx, roomIndexKey, redis.Z{
			Score:  float64(room.CreatedAt.UnixMicro()),
			Member: room.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store room: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.client.Del(ctx, roomKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if removed == 0 {
		return ErrRoomNotFound
	}

	r.client.ZRem(ctx, roomIndexKey, id)
	r.client.Del(ctx, RoomPeersKey(id))
	return nil
}

type RedisMessageRepository struct {
	client *redis.Client
}

func NewRedisMessageRepository(client *redis.Client) *RedisMessageRepository {
	return &RedisMessageRepository{client: client}
}

func (r *RedisMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	ids, err := r.client.ZRange(ctx, roomMessagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	messages := make([]models.ChatMessage, 0, len(ids))
	if len(ids) == 0 {
		return messages, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return nil, fmt.Errorf("failed to parse message data: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (r *RedisMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	prepareMessage(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(msg.ID), data, 0)
		pipe.ZAdd(ctx, roomMessagesKey(msg.RoomID), redis.Z{
			Score:  float64(msg.Timestamp.UnixMicro()),
			Member: msg.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

func (r *RedisMessageRepository) UpdateVerification(ctx context.Context, id string, verified bool, txHash string) error {
	data, err := r.client.Get(ctx, messageKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to get message: %w", err)
	}

	var msg models.ChatMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return fmt.Errorf("failed to parse message data: %w", err)
	}
	msg.Verified = verified
	if txHash != "" {
		msg.BlockchainTxHash = txHash
	}

	updated, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, messageKey(id), updated, 0).Err(); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, nonceKey(address), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Take(ctx context.Context, address string) (string, error) {
	nonce, err := s.client.GetDel(ctx, nonceKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNonceNotFound
		}
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	return nonce, nil
}

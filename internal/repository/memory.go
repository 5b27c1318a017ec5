package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/p2pchat-signaling/internal/models"
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]models.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{rooms: make(map[string]models.Room)}
}

func (r *InMemoryRoomRepository) List(ctx context.Context) ([]models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		result = append(result, room)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *models.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareRoom(room)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = *room
	return nil
}

func (r *InMemoryRoomRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(r.rooms, id)
	return nil
}

type InMemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string]models.ChatMessage
}

func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{messages: make(map[string]models.ChatMessage)}
}

func (r *InMemoryMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.ChatMessage, 0)
	for _, msg := range r.messages {
		if msg.RoomID == roomID {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (r *InMemoryMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareMessage(msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = *msg
	return nil
}

func (r *InMemoryMessageRepository) UpdateVerification(ctx context.Context, id string, verified bool, txHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Verified = verified
	if txHash != "" {
		msg.BlockchainTxHash = txHash
	}
	r.messages[id] = msg
	return nil
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]nonceEntry
	now    func() time.Time
}

func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{
		nonces: make(map[string]nonceEntry),
		now:    time.Now,
	}
}

func (s *InMemoryNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for addr, entry := range s.nonces {
		if now.After(entry.expiresAt) {
			delete(s.nonces, addr)
		}
	}
	s.nonces[address] = nonceEntry{nonce: nonce, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryNonceStore) Take(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.nonces[address]
	if !ok {
		return "", ErrNonceNotFound
	}
	delete(s.nonces, address)
	if s.now().After(entry.expiresAt) {
		return "", ErrNonceNotFound
	}
	return entry.nonce, nil
}

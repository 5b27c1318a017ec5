package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mossy-p/p2pchat-signaling/internal/models"
)

type roomRecord struct {
	ID        string    `gorm:"size:64;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	CreatorID string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (roomRecord) TableName() string { return "rooms" }

type messageRecord struct {
	ID               string `gorm:"size:64;primaryKey"`
	RoomID           string `gorm:"size:64;not null;index:messages_room_id_idx"`
	Sender           string `gorm:"not null"`
	SenderPublicKey  string
	Recipient        string
	EncryptedContent string `gorm:"not null"`
	Hash             string `gorm:"not null"`
	Signature        string
	Timestamp        time.Time `gorm:"not null;index:messages_timestamp_idx"`
	BlockchainTxHash string
	Verified         bool `gorm:"not null;default:false"`
}

func (messageRecord) TableName() string { return "messages" }

// MigratePostgres creates or updates the history tables.
func MigratePostgres(db *gorm.DB) error {
	return db.AutoMigrate(&roomRecord{}, &messageRecord{})
}

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) List(ctx context.Context) ([]models.Room, error) {
	var records []roomRecord
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&records).Error; err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(records))
	for i := range records {
		rooms = append(rooms, toModelRoom(&records[i]))
	}
	return rooms, nil
}

func (r *PostgresRoomRepository) Get(ctx context.Context, id string) (*models.Room, error) {
	var record roomRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	room := toModelRoom(&record)
	return &room, nil
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room == nil {
		return errors.New("room is nil")
	}
	prepareRoom(room)

	record := roomRecord{
		ID:        room.ID,
		Name:      room.Name,
		CreatorID: room.CreatorID,
		CreatedAt: room.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

func (r *PostgresRoomRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&roomRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var records []messageRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(records))
	for i := range records {
		messages = append(messages, toModelMessage(&records[i]))
	}
	return messages, nil
}

func (r *PostgresMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	prepareMessage(msg)

	record := messageRecord{
		ID:               msg.ID,
		RoomID:           msg.RoomID,
		Sender:           msg.Sender,
		SenderPublicKey:  msg.SenderPublicKey,
		Recipient:        msg.Recipient,
		EncryptedContent: msg.EncryptedContent,
		Hash:             msg.Hash,
		Signature:        msg.Signature,
		Timestamp:        msg.Timestamp.UTC(),
		BlockchainTxHash: msg.BlockchainTxHash,
		Verified:         msg.Verified,
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

func (r *PostgresMessageRepository) UpdateVerification(ctx context.Context, id string, verified bool, txHash string) error {
	updates := map[string]any{"verified": verified}
	if txHash != "" {
		updates["blockchain_tx_hash"] = txHash
	}

	res := r.db.WithContext(ctx).Model(&messageRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func toModelRoom(record *roomRecord) models.Room {
	return models.Room{
		ID:        record.ID,
		Name:      record.Name,
		CreatorID: record.CreatorID,
		CreatedAt: record.CreatedAt.UTC(),
	}
}

func toModelMessage(record *messageRecord) models.ChatMessage {
	return models.ChatMessage{
		ID:               record.ID,
		RoomID:           record.RoomID,
		Sender:           record.Sender,
		SenderPublicKey:  record.SenderPublicKey,
		Recipient:        record.Recipient,
		EncryptedContent: record.EncryptedContent,
		Hash:             record.Hash,
		Signature:        record.Signature,
		Timestamp:        record.Timestamp.UTC(),
		BlockchainTxHash: record.BlockchainTxHash,
		Verified:         record.Verified,
	}
}

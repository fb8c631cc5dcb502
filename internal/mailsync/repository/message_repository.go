package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// messageRepository implements MessageRepository on Postgres via GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Upsert inserts with ON CONFLICT (message_id) DO NOTHING; if nothing was
// inserted the row already exists and only the provenance columns are refreshed.
// Each statement touches a single row, so concurrent upserts of the same id
// end with one record and untouched workflow columns.
func (r *messageRepository) Upsert(ctx context.Context, msg *domain.IngestedMessage) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = domain.MessageStatusNew
	}
	if msg.Tags == nil {
		msg.Tags = domain.StringList{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = msg.ProcessedAt
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(msg)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert message %s: %w", msg.MessageID, result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	err := r.db.WithContext(ctx).Model(&domain.IngestedMessage{}).
		Where("message_id = ?", msg.MessageID).
		Updates(msg.RefreshColumns()).Error
	if err != nil {
		return false, fmt.Errorf("failed to refresh message %s: %w", msg.MessageID, err)
	}
	return false, nil
}

// ExistsBatch checks membership of all ids in one query
func (r *messageRepository) ExistsBatch(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var existing []string
	err := r.db.WithContext(ctx).Model(&domain.IngestedMessage{}).
		Where("message_id IN ?", ids).
		Pluck("message_id", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check existing messages: %w", err)
	}
	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

func (r *messageRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.IngestedMessage, error) {
	var msg domain.IngestedMessage
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

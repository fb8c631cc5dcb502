package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// monotonicCursor keeps history_cursor at the larger of the stored and incoming value
var monotonicCursor = clause.Assignment{
	Column: clause.Column{Name: "history_cursor"},
	Value:  gorm.Expr("GREATEST(mailbox_sync_cursors.history_cursor, EXCLUDED.history_cursor)"),
}

// cursorRepository implements CursorRepository on Postgres via GORM
type cursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new instance of cursorRepository
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) Get(ctx context.Context, mailboxID string) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := r.db.WithContext(ctx).Where("mailbox_id = ?", mailboxID).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCursorNotFound
		}
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return &cursor, nil
}

func (r *cursorRepository) List(ctx context.Context) ([]*domain.SyncCursor, error) {
	var cursors []*domain.SyncCursor
	if err := r.db.WithContext(ctx).Order("mailbox_id ASC").Find(&cursors).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync cursors: %w", err)
	}
	return cursors, nil
}

// RecordSync upserts the outcome of a sync pass.
// INSERT ... ON CONFLICT (mailbox_id) DO UPDATE with GREATEST on the cursor
func (r *cursorRepository) RecordSync(ctx context.Context, mailboxID string, rec domain.SyncRecord) error {
	syncedAt := rec.SyncedAt
	row := &domain.SyncCursor{
		MailboxID:         mailboxID,
		HistoryCursor:     rec.Cursor,
		LabelScope:        domain.StringList{},
		LabelFilterAction: domain.LabelFilterInclude,
		LastSyncedAt:      &syncedAt,
		LastError:         rec.Err,
		HeldRecordID:      rec.HeldRecordID,
		HoldAttempts:      rec.HoldAttempts,
		CreatedAt:         rec.SyncedAt,
		UpdatedAt:         rec.SyncedAt,
	}

	updates := clause.AssignmentColumns([]string{"last_synced_at", "last_error", "held_record_id", "hold_attempts", "updated_at"})
	updates = append(updates, monotonicCursor)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox_id"}},
		DoUpdates: updates,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to record sync for %s: %w", mailboxID, err)
	}
	return nil
}

// RecordWatch upserts watch metadata and clears last_error
func (r *cursorRepository) RecordWatch(ctx context.Context, mailboxID string, rec domain.WatchRecord) error {
	row := &domain.SyncCursor{
		MailboxID:         mailboxID,
		HistoryCursor:     rec.Cursor,
		WatchTopic:        rec.Topic,
		WatchExpiration:   rec.Expiration,
		LabelScope:        domain.StringList(rec.LabelScope),
		LabelFilterAction: watchFilterAction(rec.LabelFilterAction),
		LastError:         nil,
		CreatedAt:         rec.At,
		UpdatedAt:         rec.At,
	}

	updates := clause.AssignmentColumns([]string{"watch_topic", "watch_expiration", "label_scope", "label_filter_action", "last_error", "updated_at"})
	updates = append(updates, monotonicCursor)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mailbox_id"}},
		DoUpdates: updates,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to record watch for %s: %w", mailboxID, err)
	}
	return nil
}

func (r *cursorRepository) ClearWatch(ctx context.Context, mailboxID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.SyncCursor{}).
		Where("mailbox_id = ?", mailboxID).
		Updates(map[string]interface{}{
			"watch_expiration": nil,
			"updated_at":       at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clear watch for %s: %w", mailboxID, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrCursorNotFound
	}
	return nil
}

func (r *cursorRepository) Delete(ctx context.Context, mailboxID string) error {
	result := r.db.WithContext(ctx).Where("mailbox_id = ?", mailboxID).Delete(&domain.SyncCursor{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete sync cursor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrCursorNotFound
	}
	return nil
}

// watchFilterAction stores an empty action as include
func watchFilterAction(action string) string {
	if action == "" {
		return domain.LabelFilterInclude
	}
	return action
}

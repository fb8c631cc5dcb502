package repository

import (
	"context"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
)

// CursorRepository persists per-mailbox sync state.
//
// RecordSync and RecordWatch are single-document upserts that never move
// HistoryCursor backwards, whatever the caller passes.
type CursorRepository interface {
	// Get returns domain.ErrCursorNotFound for unknown mailboxes.
	Get(ctx context.Context, mailboxID string) (*domain.SyncCursor, error)
	List(ctx context.Context) ([]*domain.SyncCursor, error)
	RecordSync(ctx context.Context, mailboxID string, rec domain.SyncRecord) error
	RecordWatch(ctx context.Context, mailboxID string, rec domain.WatchRecord) error
	// ClearWatch drops the watch expiration after the provider watch was stopped.
	ClearWatch(ctx context.Context, mailboxID string, at time.Time) error
	Delete(ctx context.Context, mailboxID string) error
}

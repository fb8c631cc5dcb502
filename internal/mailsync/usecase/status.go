package usecase

import (
	"context"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"
)

// MailboxStatus is the operator view of one mailbox's sync state
type MailboxStatus struct {
	MailboxID       string     `json:"mailbox_id"`
	HistoryCursor   uint64     `json:"history_cursor,string"`
	WatchTopic      string     `json:"watch_topic,omitempty"`
	WatchExpiration *time.Time `json:"watch_expiration,omitempty"`
	WatchActive     bool       `json:"watch_active"`
	LabelScope      []string   `json:"label_scope"`
	LabelFilter     string     `json:"label_filter_action"`
	HeldRecordID    uint64     `json:"held_record_id,string,omitempty"`
	HoldAttempts    int        `json:"hold_attempts,omitempty"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	LastError       *string    `json:"last_error,omitempty"`
	Healthy         bool       `json:"healthy"`
}

// StatusReader builds MailboxStatus views from the cursor store
type StatusReader struct {
	cursors repository.CursorRepository
	now     Clock
}

func NewStatusReader(cursors repository.CursorRepository) *StatusReader {
	return &StatusReader{cursors: cursors, now: systemClock}
}

func (r *StatusReader) Status(ctx context.Context, mailboxID string) (*MailboxStatus, error) {
	c, err := r.cursors.Get(ctx, domain.NormalizeMailboxID(mailboxID))
	if err != nil {
		return nil, err
	}
	return r.toStatus(c), nil
}

func (r *StatusReader) List(ctx context.Context) ([]*MailboxStatus, error) {
	cursors, err := r.cursors.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*MailboxStatus, 0, len(cursors))
	for _, c := range cursors {
		out = append(out, r.toStatus(c))
	}
	return out, nil
}

func (r *StatusReader) toStatus(c *domain.SyncCursor) *MailboxStatus {
	active := c.WatchExpiration != nil && c.WatchExpiration.After(r.now())
	scope := []string(c.LabelScope)
	if scope == nil {
		scope = []string{}
	}
	return &MailboxStatus{
		MailboxID:       c.MailboxID,
		HistoryCursor:   c.HistoryCursor,
		WatchTopic:      c.WatchTopic,
		WatchExpiration: c.WatchExpiration,
		WatchActive:     active,
		LabelScope:      scope,
		LabelFilter:     c.LabelFilterAction,
		HeldRecordID:    c.HeldRecordID,
		HoldAttempts:    c.HoldAttempts,
		LastSyncedAt:    c.LastSyncedAt,
		LastError:       c.LastError,
		Healthy:         c.LastError == nil && c.HistoryCursor > 0,
	}
}

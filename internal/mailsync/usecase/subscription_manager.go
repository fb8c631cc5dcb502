package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"

	"github.com/rs/zerolog"
)

// WatchResult is the state after a successful watch registration
type WatchResult struct {
	MailboxID         string     `json:"mailbox_id"`
	Topic             string     `json:"topic"`
	LabelScope        []string   `json:"label_scope"`
	LabelFilterAction string     `json:"label_filter_action"`
	HistoryID         uint64     `json:"history_id,string"`
	Cursor            uint64     `json:"cursor,string"`
	Expiration        *time.Time `json:"expiration,omitempty"`
}

type SubscriptionConfig struct {
	Topic             string
	LabelIDs          []string
	LabelFilterAction string
}

// SubscriptionManager registers and stops provider push watches
type SubscriptionManager struct {
	provider WatchProvider
	cursors  repository.CursorRepository
	locker   *MailboxLocker
	cfg      SubscriptionConfig
	now      Clock
	log      zerolog.Logger
}

func NewSubscriptionManager(provider WatchProvider, cursors repository.CursorRepository, locker *MailboxLocker, cfg SubscriptionConfig, log zerolog.Logger) *SubscriptionManager {
	if cfg.LabelFilterAction == "" {
		cfg.LabelFilterAction = domain.LabelFilterInclude
	}
	if locker == nil {
		locker = NewMailboxLocker()
	}
	return &SubscriptionManager{
		provider: provider,
		cursors:  cursors,
		locker:   locker,
		cfg:      cfg,
		now:      systemClock,
		log:      log,
	}
}

// RegisterWatch (re)registers push notifications and records the baseline
// cursor. Empty topic and labelScope fall back to the configured defaults.
// Nothing is written unless the provider call succeeds.
func (m *SubscriptionManager) RegisterWatch(ctx context.Context, mailboxID, topic string, labelScope []string) (*WatchResult, error) {
	mailboxID = domain.NormalizeMailboxID(mailboxID)
	if mailboxID == "" {
		return nil, fmt.Errorf("%w: mailbox id is required", domain.ErrConfiguration)
	}
	if topic == "" {
		topic = m.cfg.Topic
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: pub/sub topic is not configured", domain.ErrConfiguration)
	}
	if m.provider == nil || !m.provider.Configured() {
		return nil, fmt.Errorf("%w: provider credentials are not configured", domain.ErrConfiguration)
	}
	if len(labelScope) == 0 {
		labelScope = m.cfg.LabelIDs
	}

	unlock, err := m.locker.Lock(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", mailboxID, err)
	}
	defer unlock()

	resp, err := m.provider.Watch(ctx, mailboxID, domain.WatchRequest{
		Topic:             topic,
		LabelIDs:          labelScope,
		LabelFilterAction: m.cfg.LabelFilterAction,
	})
	if err != nil {
		return nil, err
	}
	if resp.HistoryID == 0 {
		return nil, fmt.Errorf("watch for %s returned no history id", mailboxID)
	}

	if err := m.cursors.RecordWatch(ctx, mailboxID, domain.WatchRecord{
		Cursor:            resp.HistoryID,
		Topic:             topic,
		Expiration:        resp.Expiration,
		LabelScope:        labelScope,
		LabelFilterAction: m.cfg.LabelFilterAction,
		At:                m.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to record watch for %s: %w", mailboxID, err)
	}

	result := &WatchResult{
		MailboxID:         mailboxID,
		Topic:             topic,
		LabelScope:        labelScope,
		LabelFilterAction: m.cfg.LabelFilterAction,
		HistoryID:         resp.HistoryID,
		Cursor:            resp.HistoryID,
		Expiration:        resp.Expiration,
	}
	if c, err := m.cursors.Get(ctx, mailboxID); err == nil {
		result.Cursor = c.HistoryCursor
	}

	m.log.Info().
		Str("mailbox", mailboxID).
		Str("topic", topic).
		Uint64("cursor", result.Cursor).
		Msg("watch registered")
	return result, nil
}

// StopWatch stops provider notifications and clears the recorded expiration.
// The cursor is kept so a later watch resumes monotonically.
func (m *SubscriptionManager) StopWatch(ctx context.Context, mailboxID string) error {
	mailboxID = domain.NormalizeMailboxID(mailboxID)
	if m.provider == nil || !m.provider.Configured() {
		return fmt.Errorf("%w: provider credentials are not configured", domain.ErrConfiguration)
	}

	unlock, err := m.locker.Lock(ctx, mailboxID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", mailboxID, err)
	}
	defer unlock()

	if err := m.provider.Stop(ctx, mailboxID); err != nil {
		return err
	}
	if err := m.cursors.ClearWatch(ctx, mailboxID, m.now()); err != nil && !errors.Is(err, domain.ErrCursorNotFound) {
		return fmt.Errorf("failed to clear watch for %s: %w", mailboxID, err)
	}

	m.log.Info().Str("mailbox", mailboxID).Msg("watch stopped")
	return nil
}

package usecase

import (
	"context"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"

	"github.com/google/uuid"
)

type mailboxUsecase struct {
	syncer        Syncer
	subscriptions *SubscriptionManager
	status        *StatusReader
	messages      repository.MessageRepository
	publisher     EventPublisher
	now           Clock
}

// NewMailboxUsecase composes the admin operations
func NewMailboxUsecase(syncer Syncer, subscriptions *SubscriptionManager, status *StatusReader, messages repository.MessageRepository, publisher EventPublisher) MailboxUsecase {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &mailboxUsecase{
		syncer:        syncer,
		subscriptions: subscriptions,
		status:        status,
		messages:      messages,
		publisher:     publisher,
		now:           systemClock,
	}
}

func (u *mailboxUsecase) ListMailboxes(ctx context.Context) ([]*MailboxStatus, error) {
	return u.status.List(ctx)
}

func (u *mailboxUsecase) GetStatus(ctx context.Context, mailboxID string) (*MailboxStatus, error) {
	return u.status.Status(ctx, mailboxID)
}

// SyncNow runs a manual catch-up pass from the persisted cursor
func (u *mailboxUsecase) SyncNow(ctx context.Context, mailboxID string) (*SyncResult, error) {
	mailboxID = domain.NormalizeMailboxID(mailboxID)
	result, err := u.syncer.Run(ctx, mailboxID, 0, SyncModeManual)
	if created := result.CreatedCount(); created > 0 {
		u.publisher.Publish(ctx, domain.IngestEvent{
			ID:           uuid.New().String(),
			Reason:       domain.EventReasonManualSync,
			MailboxID:    mailboxID,
			CreatedCount: created,
			LatestCursor: result.Cursor,
			At:           u.now(),
		})
	}
	return result, err
}

func (u *mailboxUsecase) RegisterWatch(ctx context.Context, mailboxID, topic string, labelScope []string) (*WatchResult, error) {
	return u.subscriptions.RegisterWatch(ctx, mailboxID, topic, labelScope)
}

func (u *mailboxUsecase) StopWatch(ctx context.Context, mailboxID string) error {
	return u.subscriptions.StopWatch(ctx, mailboxID)
}

func (u *mailboxUsecase) GetMessage(ctx context.Context, messageID string) (*domain.IngestedMessage, error) {
	return u.messages.GetByMessageID(ctx, messageID)
}

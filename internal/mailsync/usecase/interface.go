package usecase

import (
	"context"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
)

// MailProvider reads the mailbox change feed and message metadata.
// pkg/gmail.Service implements it.
type MailProvider interface {
	ListHistory(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error)
	GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.ProviderMessage, error)
}

// WatchProvider manages provider push registrations
type WatchProvider interface {
	Configured() bool
	Watch(ctx context.Context, mailboxID string, req domain.WatchRequest) (*domain.WatchResponse, error)
	Stop(ctx context.Context, mailboxID string) error
}

// EventPublisher receives ingest events. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.IngestEvent)
}

// Syncer runs one serialized sync pass for a mailbox
type Syncer interface {
	Run(ctx context.Context, mailboxID string, fallback uint64, mode SyncMode) (*SyncResult, error)
}

// MailboxUsecase is the administrative surface used by the admin API and the reconciler
type MailboxUsecase interface {
	ListMailboxes(ctx context.Context) ([]*MailboxStatus, error)
	GetStatus(ctx context.Context, mailboxID string) (*MailboxStatus, error)
	SyncNow(ctx context.Context, mailboxID string) (*SyncResult, error)
	RegisterWatch(ctx context.Context, mailboxID, topic string, labelScope []string) (*WatchResult, error)
	StopWatch(ctx context.Context, mailboxID string) error
	GetMessage(ctx context.Context, messageID string) (*domain.IngestedMessage, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.IngestEvent) {}

// Clock returns the current time; tests replace it
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

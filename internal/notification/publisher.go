package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/fcm"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/sse"

	"github.com/rs/zerolog"
)

const (
	ingestEventName = "ingest"
	fcmSendTimeout  = 10 * time.Second
)

// TopicSender delivers a notification to a device topic. *fcm.Client implements it.
type TopicSender interface {
	SendToTopic(ctx context.Context, topic string, notification fcm.NotificationData) error
}

// Publisher fans ingest events out to SSE subscribers and, when configured,
// to an FCM topic. Publish never blocks on delivery.
type Publisher struct {
	sse      *sse.Manager
	fcm      TopicSender
	fcmTopic string
	log      zerolog.Logger

	wg sync.WaitGroup
}

func NewPublisher(sseManager *sse.Manager, sender TopicSender, fcmTopic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		sse:      sseManager,
		fcm:      sender,
		fcmTopic: fcmTopic,
		log:      log,
	}
}

func (p *Publisher) Publish(ctx context.Context, event domain.IngestEvent) {
	if p.sse != nil && !p.sse.Publish(sse.Event{Topic: event.MailboxID, Name: ingestEventName, Data: event}) {
		p.log.Warn().Str("mailbox", event.MailboxID).Msg("sse buffer full, ingest event dropped")
	}

	if p.fcm == nil || p.fcmTopic == "" {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fcmSendTimeout)
		defer cancel()

		err := p.fcm.SendToTopic(sendCtx, p.fcmTopic, fcm.NotificationData{
			Title: fmt.Sprintf("%d new message(s)", event.CreatedCount),
			Body:  event.MailboxID,
			Data: map[string]string{
				"type":         "ingest",
				"event_id":     event.ID,
				"reason":       event.Reason,
				"mailbox":      event.MailboxID,
				"created":      fmt.Sprintf("%d", event.CreatedCount),
				"latestCursor": domain.FormatCursor(event.LatestCursor),
			},
		})
		if err != nil {
			p.log.Warn().Err(err).Str("mailbox", event.MailboxID).Msg("fcm ingest notification failed")
		}
	}()
}

// Wait blocks until in-flight FCM sends finish
func (p *Publisher) Wait() {
	p.wg.Wait()
}

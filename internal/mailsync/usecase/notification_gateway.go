package usecase

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PushEnvelope is the body Pub/Sub posts to a push endpoint
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type PushMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

// Notification is the decoded Gmail change notification
type Notification struct {
	EmailAddress string
	HistoryID    uint64
}

// Outcome reports what the gateway did with one notification. Sync failures
// are carried in Err; the transport acknowledges regardless.
type Outcome struct {
	MailboxID string      `json:"mailbox_id,omitempty"`
	HistoryID uint64      `json:"history_id,string,omitempty"`
	Ignored   bool        `json:"ignored,omitempty"`
	Stale     bool        `json:"stale,omitempty"`
	Result    *SyncResult `json:"result,omitempty"`
	Err       error       `json:"-"`
}

type GatewayConfig struct {
	SharedSecret string
	Mailboxes    []string
}

// NotificationGateway validates inbound notifications and triggers sync passes
type NotificationGateway struct {
	secret    []byte
	mailboxes map[string]struct{}
	cursors   repository.CursorRepository
	syncer    Syncer
	publisher EventPublisher
	now       Clock
	log       zerolog.Logger
}

func NewNotificationGateway(cfg GatewayConfig, cursors repository.CursorRepository, syncer Syncer, publisher EventPublisher, log zerolog.Logger) *NotificationGateway {
	mailboxes := make(map[string]struct{}, len(cfg.Mailboxes))
	for _, m := range cfg.Mailboxes {
		if m = domain.NormalizeMailboxID(m); m != "" {
			mailboxes[m] = struct{}{}
		}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &NotificationGateway{
		secret:    []byte(cfg.SharedSecret),
		mailboxes: mailboxes,
		cursors:   cursors,
		syncer:    syncer,
		publisher: publisher,
		now:       systemClock,
		log:       log,
	}
}

// HandlePush authenticates a push delivery and processes its payload
func (g *NotificationGateway) HandlePush(ctx context.Context, token string, env PushEnvelope) (*Outcome, error) {
	if len(g.secret) > 0 && subtle.ConstantTimeCompare([]byte(token), g.secret) != 1 {
		return nil, domain.ErrAuth
	}

	data, err := decodeData(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedNotification, err)
	}
	return g.HandleData(ctx, data)
}

// HandleData processes a decoded notification payload (pull delivery enters here)
func (g *NotificationGateway) HandleData(ctx context.Context, data []byte) (*Outcome, error) {
	n, err := ParseNotification(data)
	if err != nil {
		return nil, err
	}

	mailboxID := domain.NormalizeMailboxID(n.EmailAddress)
	out := &Outcome{MailboxID: mailboxID, HistoryID: n.HistoryID}
	log := g.log.With().Str("mailbox", mailboxID).Uint64("history_id", n.HistoryID).Logger()

	if len(g.mailboxes) > 0 {
		if _, ok := g.mailboxes[mailboxID]; !ok {
			log.Debug().Msg("notification for unmanaged mailbox ignored")
			out.Ignored = true
			return out, nil
		}
	}

	cursor, err := g.cursors.Get(ctx, mailboxID)
	switch {
	case err == nil:
		if cursor.HistoryCursor >= n.HistoryID {
			log.Debug().Uint64("cursor", cursor.HistoryCursor).Msg("notification already covered by cursor")
			out.Stale = true
			return out, nil
		}
	case errors.Is(err, domain.ErrCursorNotFound):
	default:
		log.Warn().Err(err).Msg("failed to read cursor before sync")
	}

	result, err := g.syncer.Run(ctx, mailboxID, n.HistoryID, SyncModePush)
	out.Result = result
	if err != nil {
		log.Error().Err(err).Msg("sync after notification failed")
		out.Err = err
	}

	if created := result.CreatedCount(); created > 0 {
		g.publisher.Publish(ctx, domain.IngestEvent{
			ID:           uuid.New().String(),
			Reason:       domain.EventReasonSync,
			MailboxID:    mailboxID,
			CreatedCount: created,
			LatestCursor: result.Cursor,
			At:           g.now(),
		})
	}
	return out, nil
}

// ParseNotification decodes {"emailAddress": "...", "historyId": "..."}.
// historyId may be a JSON string or number; anything else is rejected.
func ParseNotification(data []byte) (*Notification, error) {
	var raw struct {
		EmailAddress *string         `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedNotification, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrMalformedNotification)
	}

	if raw.EmailAddress == nil || strings.TrimSpace(*raw.EmailAddress) == "" {
		return nil, fmt.Errorf("%w: missing emailAddress", domain.ErrMalformedNotification)
	}

	value := strings.TrimSpace(string(raw.HistoryID))
	if strings.HasPrefix(value, `"`) {
		var s string
		if err := json.Unmarshal(raw.HistoryID, &s); err != nil {
			return nil, fmt.Errorf("%w: historyId: %v", domain.ErrMalformedNotification, err)
		}
		value = s
	}
	historyID, ok := domain.ParseCursor(value)
	if !ok {
		return nil, fmt.Errorf("%w: invalid historyId %q", domain.ErrMalformedNotification, value)
	}

	return &Notification{EmailAddress: strings.TrimSpace(*raw.EmailAddress), HistoryID: historyID}, nil
}

// decodeData accepts standard and URL-safe base64, padded or not
func decodeData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("empty message data")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("message data is not base64")
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// DataHandler processes one decoded notification payload.
// usecase.NotificationGateway implements it.
type DataHandler interface {
	HandleData(ctx context.Context, data []byte) (*usecase.Outcome, error)
}

// Service pulls Gmail notifications from a Pub/Sub subscription and hands them
// to the gateway. Every received message is acknowledged.
type Service struct {
	pubsubClient *pubsub.Client
	handler      DataHandler
	topicName    string
	subName      string
	log          zerolog.Logger
}

func NewService(ctx context.Context, projectID, topicName, subName, credentialsFile string, handler DataHandler, log zerolog.Logger) (*Service, error) {
	if projectID == "" || subName == "" {
		return nil, fmt.Errorf("%w: pub/sub project and subscription are required for pull mode", domain.ErrConfiguration)
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient: client,
		handler:      handler,
		topicName:    topicName,
		subName:      subName,
		log:          log,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled. A missing
// subscription is created on the configured topic.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info().Str("topic", s.topicName).Str("subscription", s.subName).Msg("starting pull receiver")

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.ID, msg.Data)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pubsub receive on %s: %w", s.subName, err)
	}
	s.log.Info().Msg("pull receiver stopped")
	return nil
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", s.subName, err)
	}
	if exists {
		return sub, nil
	}

	if s.topicName == "" {
		return nil, fmt.Errorf("%w: subscription %s does not exist and no topic is configured", domain.ErrConfiguration, s.subName)
	}
	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check topic %s: %w", s.topicName, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("%w: topic %s does not exist", domain.ErrConfiguration, s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription %s: %w", s.subName, err)
	}
	s.log.Info().Str("subscription", s.subName).Msg("created subscription")
	return sub, nil
}

// handleMessage never fails the delivery: malformed payloads and sync errors
// are logged, and redelivery is left to the next notification.
func (s *Service) handleMessage(ctx context.Context, id string, data []byte) {
	log := s.log.With().Str("pubsub_message_id", id).Logger()

	out, err := s.handler.HandleData(ctx, data)
	if err != nil {
		log.Warn().Err(err).Msg("notification dropped")
		return
	}

	evt := log.Debug()
	if out.Err != nil {
		evt = log.Warn().Err(out.Err)
	}
	evt.Str("mailbox", out.MailboxID).
		Uint64("history_id", out.HistoryID).
		Bool("ignored", out.Ignored).
		Bool("stale", out.Stale).
		Int("created", out.Result.CreatedCount()).
		Msg("notification handled")
}

func (s *Service) Close() error {
	return s.pubsubClient.Close()
}

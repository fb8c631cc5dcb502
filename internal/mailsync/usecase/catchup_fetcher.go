package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FailedFetch is a reference that could not be ingested and should be retried
type FailedFetch struct {
	Ref domain.MessageRef
	Err error
}

// CatchupResult lists the messages created by one Fetch call in input order,
// plus the references that failed transiently.
type CatchupResult struct {
	Created []*domain.IngestedMessage
	Failed  []FailedFetch
	Skipped int
}

type FetcherConfig struct {
	Concurrency int
	CallTimeout time.Duration
}

// CatchupFetcher fetches and ingests the messages referenced by change events
type CatchupFetcher struct {
	provider    MailProvider
	messages    repository.MessageRepository
	attribution *AttributionResolver
	cfg         FetcherConfig
	now         Clock
	log         zerolog.Logger
}

func NewCatchupFetcher(provider MailProvider, messages repository.MessageRepository, attribution *AttributionResolver, cfg FetcherConfig, log zerolog.Logger) *CatchupFetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if attribution == nil {
		attribution = NewAttributionResolver(nil)
	}
	return &CatchupFetcher{
		provider:    provider,
		messages:    messages,
		attribution: attribution,
		cfg:         cfg,
		now:         systemClock,
		log:         log,
	}
}

// Fetch ingests refs not already stored. Only a failed existence check is
// returned as an error; per-message failures are reported in the result.
func (f *CatchupFetcher) Fetch(ctx context.Context, mailboxID string, refs []domain.MessageRef) (CatchupResult, error) {
	var result CatchupResult

	unique := make([]domain.MessageRef, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		unique = append(unique, ref)
		ids = append(ids, ref.ID)
	}
	if len(unique) == 0 {
		return result, nil
	}

	existing, err := f.messages.ExistsBatch(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to check existing messages for %s: %w", mailboxID, err)
	}

	pending := make([]domain.MessageRef, 0, len(unique))
	for _, ref := range unique {
		if _, ok := existing[ref.ID]; !ok {
			pending = append(pending, ref)
		}
	}
	result.Skipped = len(unique) - len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	created := make([]*domain.IngestedMessage, len(pending))
	failed := make([]error, len(pending))

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, ref := range pending {
		g.Go(func() error {
			msg, err := f.ingest(ctx, mailboxID, ref)
			if err != nil {
				failed[i] = err
				return nil
			}
			created[i] = msg
			return nil
		})
	}
	_ = g.Wait()

	for i, ref := range pending {
		switch {
		case failed[i] == nil:
			if created[i] != nil {
				result.Created = append(result.Created, created[i])
			}
		case errors.Is(failed[i], domain.ErrMessageGone):
			f.log.Info().Str("mailbox", mailboxID).Str("message_id", ref.ID).Msg("message gone before fetch, skipping")
		default:
			f.log.Warn().Err(failed[i]).Str("mailbox", mailboxID).Str("message_id", ref.ID).Msg("message ingest failed")
			result.Failed = append(result.Failed, FailedFetch{Ref: ref, Err: failed[i]})
		}
	}
	return result, nil
}

// ingest returns the stored message when it was newly created, nil when
// another writer created it first.
func (f *CatchupFetcher) ingest(ctx context.Context, mailboxID string, ref domain.MessageRef) (*domain.IngestedMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	pm, err := f.provider.GetMessage(callCtx, mailboxID, ref.ID)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.TransientFetchError{Op: "messages.get " + ref.ID, MailboxID: mailboxID, Err: err}
		}
		return nil, err
	}

	msg := f.toIngested(mailboxID, ref, pm)
	created, err := f.messages.Upsert(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return msg, nil
}

func (f *CatchupFetcher) toIngested(mailboxID string, ref domain.MessageRef, pm *domain.ProviderMessage) *domain.IngestedMessage {
	now := f.now()

	msg := &domain.IngestedMessage{
		MessageID:         pm.ID,
		ThreadID:          pm.ThreadID,
		HistoryIDAtIngest: pm.HistoryID,
		ReceivedAt:        pm.InternalDate,
		Snippet:           pm.Snippet,
		Headers:           pm.Headers,
		LabelIDs:          domain.StringList(pm.LabelIDs),
		MailboxID:         mailboxID,
		ProcessedAt:       now,
	}
	if msg.MessageID == "" {
		msg.MessageID = ref.ID
	}
	if msg.ThreadID == "" {
		msg.ThreadID = ref.ThreadID
	}
	if msg.HistoryIDAtIngest == 0 {
		msg.HistoryIDAtIngest = ref.HistoryID
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
	if msg.LabelIDs == nil {
		msg.LabelIDs = domain.StringList(ref.LabelIDs)
	}
	if agent := f.attribution.Resolve(pm.Headers); agent != "" {
		msg.AttributedAgent = &agent
	}
	return msg
}

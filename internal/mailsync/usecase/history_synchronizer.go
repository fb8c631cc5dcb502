package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"

	"github.com/rs/zerolog"
)

type SyncMode int

const (
	// SyncModePush processes a single history page per notification
	SyncModePush SyncMode = iota
	// SyncModeManual processes up to MaxPages pages
	SyncModeManual
)

func (m SyncMode) String() string {
	if m == SyncModeManual {
		return "manual"
	}
	return "push"
}

const recordTimeout = 10 * time.Second

// SyncResult describes one sync pass
type SyncResult struct {
	MailboxID   string                    `json:"mailbox_id"`
	Mode        string                    `json:"mode"`
	StartCursor uint64                    `json:"start_cursor,string"`
	Cursor      uint64                    `json:"cursor,string"`
	Pages       int                       `json:"pages"`
	Drained     bool                      `json:"drained"`
	Created     []*domain.IngestedMessage `json:"-"`
	CreatedIDs  []string                  `json:"created_ids"`
	Failed      int                       `json:"failed"`
	Skipped     int                       `json:"skipped"`
}

// CreatedCount is the number of messages created by the pass
func (r *SyncResult) CreatedCount() int {
	if r == nil {
		return 0
	}
	return len(r.Created)
}

type SynchronizerConfig struct {
	MaxPages          int
	LabelScope        []string
	LabelFilterAction string
	// MaxHoldAttempts is how many consecutive passes a failing history
	// record may hold the cursor before it is skipped.
	MaxHoldAttempts int
}

// HistorySynchronizer walks the provider change feed from the stored cursor
// and hands new message references to the CatchupFetcher.
type HistorySynchronizer struct {
	provider MailProvider
	cursors  repository.CursorRepository
	fetcher  *CatchupFetcher
	locker   *MailboxLocker
	cfg      SynchronizerConfig
	now      Clock
	log      zerolog.Logger
}

func NewHistorySynchronizer(provider MailProvider, cursors repository.CursorRepository, fetcher *CatchupFetcher, locker *MailboxLocker, cfg SynchronizerConfig, log zerolog.Logger) *HistorySynchronizer {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 5
	}
	if cfg.MaxHoldAttempts < 1 {
		cfg.MaxHoldAttempts = 5
	}
	if locker == nil {
		locker = NewMailboxLocker()
	}
	return &HistorySynchronizer{
		provider: provider,
		cursors:  cursors,
		fetcher:  fetcher,
		locker:   locker,
		cfg:      cfg,
		now:      systemClock,
		log:      log,
	}
}

// Run serializes passes per mailbox. The start cursor is the persisted one,
// or fallback when the mailbox has none. Manual passes need a baseline.
func (s *HistorySynchronizer) Run(ctx context.Context, mailboxID string, fallback uint64, mode SyncMode) (*SyncResult, error) {
	unlock, err := s.locker.Lock(ctx, mailboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock for %s: %w", mailboxID, err)
	}
	defer unlock()

	cursor, err := s.loadCursor(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	start := fallback
	filter := domain.NewLabelFilter(s.cfg.LabelScope, s.cfg.LabelFilterAction)
	var held holdState
	if cursor != nil {
		if cursor.HistoryCursor > 0 {
			start = cursor.HistoryCursor
		}
		if len(cursor.LabelScope) > 0 {
			filter = cursor.LabelFilter()
		}
		held = holdState{recordID: cursor.HeldRecordID, attempts: cursor.HoldAttempts}
	}

	if start == 0 {
		return nil, domain.ErrNoCursor
	}
	return s.sync(ctx, mailboxID, start, filter, held, mode)
}

// Sync runs one pass from startCursor without taking the mailbox lock.
// Callers that may race with other passes should use Run.
func (s *HistorySynchronizer) Sync(ctx context.Context, mailboxID string, startCursor uint64, mode SyncMode) (*SyncResult, error) {
	if startCursor == 0 {
		return nil, domain.ErrNoCursor
	}
	cursor, err := s.loadCursor(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	var held holdState
	if cursor != nil {
		held = holdState{recordID: cursor.HeldRecordID, attempts: cursor.HoldAttempts}
	}
	return s.sync(ctx, mailboxID, startCursor, domain.NewLabelFilter(s.cfg.LabelScope, s.cfg.LabelFilterAction), held, mode)
}

// holdState is the history record currently holding the cursor and the
// number of consecutive passes it has done so.
type holdState struct {
	recordID uint64
	attempts int
}

// loadCursor returns nil without error when the mailbox has no cursor row.
func (s *HistorySynchronizer) loadCursor(ctx context.Context, mailboxID string) (*domain.SyncCursor, error) {
	cursor, err := s.cursors.Get(ctx, mailboxID)
	switch {
	case err == nil:
		return cursor, nil
	case errors.Is(err, domain.ErrCursorNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to load sync cursor for %s: %w", mailboxID, err)
	}
}

func (s *HistorySynchronizer) sync(ctx context.Context, mailboxID string, start uint64, filter domain.LabelFilter, held holdState, mode SyncMode) (*SyncResult, error) {
	log := s.log.With().Str("mailbox", mailboxID).Str("mode", mode.String()).Uint64("start", start).Logger()

	maxPages := s.cfg.MaxPages
	if mode == SyncModePush {
		maxPages = 1
	}

	// A single included label is filtered by the provider. Several labels,
	// and any excluded ones, are filtered here.
	labelID := ""
	var labelSet map[string]struct{}
	if len(filter.LabelIDs) == 1 && !filter.Exclude {
		labelID = filter.LabelIDs[0]
	} else if len(filter.LabelIDs) > 0 {
		labelSet = make(map[string]struct{}, len(filter.LabelIDs))
		for _, l := range filter.LabelIDs {
			labelSet[l] = struct{}{}
		}
	}

	result := &SyncResult{MailboxID: mailboxID, Mode: mode.String(), StartCursor: start}

	processed := start   // highest history record id handled
	var holdBelow uint64 // lowest record id the cursor must stay under, 0 if none
	var failed []FailedFetch
	var drainedAt uint64
	var pageToken string
	var syncErr error

	for result.Pages < maxPages {
		page, err := s.provider.ListHistory(ctx, domain.HistoryRequest{
			MailboxID:   mailboxID,
			StartCursor: start,
			PageToken:   pageToken,
			LabelID:     labelID,
		})
		if err != nil {
			syncErr = err
			break
		}
		result.Pages++

		var refs []domain.MessageRef
		var pageLow, pageHigh uint64
		for _, rec := range page.Records {
			if pageLow == 0 || rec.ID < pageLow {
				pageLow = rec.ID
			}
			if rec.ID > pageHigh {
				pageHigh = rec.ID
			}
			for _, ref := range rec.MessagesAdded {
				if ref.HistoryID == 0 {
					ref.HistoryID = rec.ID
				}
				if labelSet != nil && !inScope(ref.LabelIDs, labelSet, filter.Exclude) {
					continue
				}
				refs = append(refs, ref)
			}
		}

		fetched, err := s.fetcher.Fetch(ctx, mailboxID, refs)
		if err != nil {
			syncErr = err
			if pageLow > 0 {
				holdBelow = minNonZero(holdBelow, pageLow)
			}
			break
		}
		result.Created = append(result.Created, fetched.Created...)
		result.Skipped += fetched.Skipped
		failed = append(failed, fetched.Failed...)
		if pageHigh > processed {
			processed = pageHigh
		}

		if page.NextPageToken == "" {
			result.Drained = true
			drainedAt = page.HistoryID
			break
		}
		pageToken = page.NextPageToken

		if ctx.Err() != nil {
			syncErr = ctx.Err()
			break
		}
	}

	nextHold, skipped := s.settleHold(held, failed)
	if len(skipped) > 0 {
		log.Warn().Uint64("record", held.recordID).Int("attempts", held.attempts+1).Strs("messages", skipped).
			Msg("skipping messages that held the cursor for too many passes")
	}
	result.Failed = len(failed) - len(skipped)
	holdBelow = minNonZero(holdBelow, nextHold.recordID)

	next := processed
	if result.Drained && drainedAt > next {
		next = drainedAt
	}
	if holdBelow > 0 && holdBelow-1 < next {
		next = holdBelow - 1
	}
	if next < start {
		next = start
	}
	result.Cursor = next
	for _, m := range result.Created {
		result.CreatedIDs = append(result.CreatedIDs, m.MessageID)
	}

	var problems []string
	if syncErr != nil {
		problems = append(problems, syncErr.Error())
	} else if result.Failed > 0 {
		problems = append(problems, fmt.Sprintf("%d message fetch(es) failed; cursor held at %d", result.Failed, next))
	}
	if len(skipped) > 0 {
		problems = append(problems, fmt.Sprintf("skipped %s after %d failed passes", strings.Join(skipped, ","), held.attempts+1))
	}
	var lastErr *string
	if len(problems) > 0 {
		msg := strings.Join(problems, "; ")
		lastErr = &msg
	}

	// A pass that stopped early gives no verdict on the held record.
	if syncErr != nil && nextHold.recordID == 0 && len(skipped) == 0 {
		nextHold = held
	}

	// The outcome is recorded even when ctx was cancelled mid-pass.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.cursors.RecordSync(recordCtx, mailboxID, domain.SyncRecord{
		Cursor:       next,
		SyncedAt:     s.now(),
		Err:          lastErr,
		HeldRecordID: nextHold.recordID,
		HoldAttempts: nextHold.attempts,
	}); err != nil {
		log.Error().Err(err).Msg("failed to record sync outcome")
		if syncErr == nil {
			syncErr = err
		}
	}

	evt := log.Info()
	if syncErr != nil {
		evt = log.Warn().Err(syncErr)
	}
	evt.Uint64("cursor", next).
		Int("pages", result.Pages).
		Int("created", len(result.Created)).
		Int("failed", result.Failed).
		Bool("drained", result.Drained).
		Msg("sync pass finished")

	if syncErr != nil {
		return result, fmt.Errorf("sync %s: %w", mailboxID, syncErr)
	}
	return result, nil
}

// settleHold picks the record that holds the cursor after this pass. When it
// is the same record as last time and has reached MaxHoldAttempts, its
// failures are skipped and the next lowest failing record takes over.
func (s *HistorySynchronizer) settleHold(prev holdState, failed []FailedFetch) (holdState, []string) {
	var low uint64
	for _, f := range failed {
		low = minNonZero(low, f.Ref.HistoryID)
	}
	if low == 0 {
		return holdState{}, nil
	}
	if low != prev.recordID {
		return holdState{recordID: low, attempts: 1}, nil
	}
	if prev.attempts+1 <= s.cfg.MaxHoldAttempts {
		return holdState{recordID: low, attempts: prev.attempts + 1}, nil
	}

	var skipped []string
	var rest uint64
	for _, f := range failed {
		if f.Ref.HistoryID == low {
			skipped = append(skipped, f.Ref.ID)
			continue
		}
		rest = minNonZero(rest, f.Ref.HistoryID)
	}
	if rest == 0 {
		return holdState{}, skipped
	}
	return holdState{recordID: rest, attempts: 1}, skipped
}

// inScope reports whether a ref with labels passes the filter. Refs without
// labels always pass.
func inScope(labels []string, set map[string]struct{}, exclude bool) bool {
	if len(labels) == 0 {
		return true
	}
	for _, l := range labels {
		if _, ok := set[l]; ok {
			return !exclude
		}
	}
	return exclude
}

func minNonZero(a, b uint64) uint64 {
	if a == 0 || (b != 0 && b < a) {
		return b
	}
	return a
}

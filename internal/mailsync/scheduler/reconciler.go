package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"

	"github.com/rs/zerolog"
)

// Reconciler runs manual catch-up passes for mailboxes that have not synced
// recently, covering notifications that were lost or only partly processed.
// It never renews watches.
type Reconciler struct {
	mailboxes  usecase.MailboxUsecase
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReconciler creates a new scheduler
func NewReconciler(mailboxes usecase.MailboxUsecase, interval, staleAfter time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		mailboxes:  mailboxes,
		interval:   interval,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the reconcile loop. A zero interval disables it.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info().Msg("reconciler disabled")
		close(r.done)
		return
	}

	r.log.Info().Dur("interval", r.interval).Dur("stale_after", r.staleAfter).Msg("starting reconciler")

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.reconcile(ctx)
			case <-ctx.Done():
				r.log.Info().Msg("reconciler stopped")
				return
			case <-r.stopChan:
				r.log.Info().Msg("reconciler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for a running pass to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.done
}

// reconcile returns the number of mailboxes it attempted to sync
func (r *Reconciler) reconcile(ctx context.Context) int {
	statuses, err := r.mailboxes.ListMailboxes(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to list mailboxes")
		return 0
	}

	cutoff := r.now().Add(-r.staleAfter)
	attempted := 0
	for _, st := range statuses {
		if ctx.Err() != nil {
			break
		}
		if st.HistoryCursor == 0 {
			continue
		}
		if st.LastSyncedAt != nil && st.LastSyncedAt.After(cutoff) {
			continue
		}

		attempted++
		result, err := r.mailboxes.SyncNow(ctx, st.MailboxID)
		if err != nil {
			r.log.Warn().Err(err).Str("mailbox", st.MailboxID).Msg("reconcile sync failed")
			continue
		}
		r.log.Info().
			Str("mailbox", st.MailboxID).
			Int("created", result.CreatedCount()).
			Uint64("cursor", result.Cursor).
			Msg("reconciled stale mailbox")
	}
	return attempted
}

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
)

func newTestUsecase(t *testing.T, h *harness, watch WatchProvider, pub EventPublisher) MailboxUsecase {
	t.Helper()
	subs := newTestSubscriptions(watch, h.cursors, SubscriptionConfig{Topic: "gmail-push"})
	status := NewStatusReader(h.cursors)
	status.now = fixedClock(testNow)
	u := NewMailboxUsecase(h.syncer, subs, status, h.messages, pub)
	u.(*mailboxUsecase).now = fixedClock(testNow)
	return u
}

func TestSyncNow(t *testing.T) {
	mb := newFakeMailbox(100)
	mb.add(101, "m1")
	h := newHarness(t, mb, 5)
	h.seedCursor(t, 100)
	pub := &recordingPublisher{}
	u := newTestUsecase(t, h, &mockWatchProvider{}, pub)

	result, err := u.SyncNow(context.Background(), "Agent@x.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Mode != "manual" || result.CreatedCount() != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	events := pub.all()
	if len(events) != 1 || events[0].Reason != domain.EventReasonManualSync {
		t.Fatalf("expected one manual-sync event, got %+v", events)
	}

	// Nothing new: no event.
	if _, err := u.SyncNow(context.Background(), testMailbox); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(pub.all()) != 1 {
		t.Fatalf("expected no further events, got %d", len(pub.all()))
	}
}

func TestSyncNow_WithoutCursor(t *testing.T) {
	h := newHarness(t, newFakeMailbox(100), 5)
	u := newTestUsecase(t, h, &mockWatchProvider{}, nil)

	if _, err := u.SyncNow(context.Background(), testMailbox); !errors.Is(err, domain.ErrNoCursor) {
		t.Fatalf("expected ErrNoCursor, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	expiry := testNow.Add(time.Hour)
	watch := &mockWatchProvider{
		configured: true,
		watchFunc: func(ctx context.Context, mailboxID string, req domain.WatchRequest) (*domain.WatchResponse, error) {
			return &domain.WatchResponse{HistoryID: 100, Expiration: &expiry}, nil
		},
	}
	h := newHarness(t, newFakeMailbox(100), 5)
	u := newTestUsecase(t, h, watch, nil)

	if _, err := u.RegisterWatch(context.Background(), "b@x.com", "", []string{"INBOX"}); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if _, err := u.RegisterWatch(context.Background(), testMailbox, "", nil); err != nil {
		t.Fatalf("register agent: %v", err)
	}

	st, err := u.GetStatus(context.Background(), "B@x.com")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.WatchActive || !st.Healthy || st.HistoryCursor != 100 || st.WatchTopic != "gmail-push" {
		t.Fatalf("unexpected status %+v", st)
	}

	all, err := u.ListMailboxes(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].MailboxID != testMailbox || all[1].MailboxID != "b@x.com" {
		t.Fatalf("unexpected list %+v", all)
	}
	if all[0].LabelScope == nil {
		t.Error("expected label scope to render as an empty list")
	}

	if err := u.StopWatch(context.Background(), "b@x.com"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, _ = u.GetStatus(context.Background(), "b@x.com")
	if st.WatchActive {
		t.Fatal("expected watch inactive after stop")
	}

	if _, err := u.GetStatus(context.Background(), "nobody@x.com"); !errors.Is(err, domain.ErrCursorNotFound) {
		t.Fatalf("expected ErrCursorNotFound, got %v", err)
	}
}

func TestGetMessage(t *testing.T) {
	mb := newFakeMailbox(100)
	mb.add(101, "m1")
	h := newHarness(t, mb, 5)
	h.seedCursor(t, 100)
	u := newTestUsecase(t, h, &mockWatchProvider{}, nil)

	if _, err := u.SyncNow(context.Background(), testMailbox); err != nil {
		t.Fatalf("sync: %v", err)
	}
	msg, err := u.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg.AttributedAgent == nil || *msg.AttributedAgent != "agent@x.com" {
		t.Fatalf("unexpected attribution %v", msg.AttributedAgent)
	}
	if _, err := u.GetMessage(context.Background(), "missing"); !errors.Is(err, domain.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

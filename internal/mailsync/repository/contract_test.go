package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"github.com/google/uuid"
)

// setWorkflowFunc plays the workflow collaborator that claims messages
type setWorkflowFunc func(t *testing.T, messageID, status string, claimedBy *string)

// Times are truncated to what every backend round-trips.
var contractNow = time.Now().UTC().Truncate(time.Millisecond)

func strPtr(s string) *string { return &s }

func testCursorRepository(t *testing.T, repo CursorRepository) {
	ctx := context.Background()
	mailbox := fmt.Sprintf("agent-%s@x.com", uuid.NewString()[:8])

	t.Run("unknown mailbox", func(t *testing.T) {
		if _, err := repo.Get(ctx, mailbox); !errors.Is(err, domain.ErrCursorNotFound) {
			t.Fatalf("expected ErrCursorNotFound, got %v", err)
		}
		if err := repo.ClearWatch(ctx, mailbox, contractNow); !errors.Is(err, domain.ErrCursorNotFound) {
			t.Fatalf("expected ErrCursorNotFound from ClearWatch, got %v", err)
		}
	})

	t.Run("record sync creates the row", func(t *testing.T) {
		if err := repo.RecordSync(ctx, mailbox, domain.SyncRecord{Cursor: 100, SyncedAt: contractNow}); err != nil {
			t.Fatalf("record sync: %v", err)
		}
		c, err := repo.Get(ctx, mailbox)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if c.HistoryCursor != 100 || c.LastError != nil {
			t.Fatalf("unexpected cursor %+v", c)
		}
		if c.LastSyncedAt == nil || !c.LastSyncedAt.Equal(contractNow) {
			t.Fatalf("expected lastSyncedAt %v, got %v", contractNow, c.LastSyncedAt)
		}
	})

	t.Run("lower cursor is ignored but error is recorded", func(t *testing.T) {
		later := contractNow.Add(time.Minute)
		if err := repo.RecordSync(ctx, mailbox, domain.SyncRecord{Cursor: 90, SyncedAt: later, Err: strPtr("boom")}); err != nil {
			t.Fatalf("record sync: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		if c.HistoryCursor != 100 {
			t.Fatalf("cursor moved backwards to %d", c.HistoryCursor)
		}
		if c.LastError == nil || *c.LastError != "boom" {
			t.Fatalf("expected lastError boom, got %v", c.LastError)
		}
		if !c.LastSyncedAt.Equal(later) {
			t.Fatalf("expected lastSyncedAt %v, got %v", later, c.LastSyncedAt)
		}
	})

	t.Run("record sync stores the hold", func(t *testing.T) {
		rec := domain.SyncRecord{Cursor: 100, SyncedAt: contractNow.Add(90 * time.Second), Err: strPtr("held"), HeldRecordID: 101, HoldAttempts: 3}
		if err := repo.RecordSync(ctx, mailbox, rec); err != nil {
			t.Fatalf("record sync: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		if c.HeldRecordID != 101 || c.HoldAttempts != 3 {
			t.Fatalf("expected hold 101 x3, got %d x%d", c.HeldRecordID, c.HoldAttempts)
		}
	})

	t.Run("success advances and clears error", func(t *testing.T) {
		if err := repo.RecordSync(ctx, mailbox, domain.SyncRecord{Cursor: 150, SyncedAt: contractNow.Add(2 * time.Minute)}); err != nil {
			t.Fatalf("record sync: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		if c.HistoryCursor != 150 || c.LastError != nil {
			t.Fatalf("unexpected cursor %+v", c)
		}
		if c.HeldRecordID != 0 || c.HoldAttempts != 0 {
			t.Fatalf("expected hold to be cleared, got %d x%d", c.HeldRecordID, c.HoldAttempts)
		}
	})

	t.Run("record watch keeps the higher cursor", func(t *testing.T) {
		expiry := contractNow.Add(7 * 24 * time.Hour)
		err := repo.RecordWatch(ctx, mailbox, domain.WatchRecord{
			Cursor:     120,
			Topic:      "gmail-push",
			Expiration: &expiry,
			LabelScope: []string{"INBOX", "Label_7"},
			At:         contractNow.Add(3 * time.Minute),
		})
		if err != nil {
			t.Fatalf("record watch: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		if c.HistoryCursor != 150 {
			t.Fatalf("expected cursor 150, got %d", c.HistoryCursor)
		}
		if c.WatchTopic != "gmail-push" || len(c.LabelScope) != 2 || c.LabelScope[1] != "Label_7" {
			t.Fatalf("unexpected watch fields %+v", c)
		}
		if c.LabelFilterAction != domain.LabelFilterInclude {
			t.Fatalf("expected empty action to be stored as include, got %q", c.LabelFilterAction)
		}
		if c.WatchExpiration == nil || !c.WatchExpiration.Equal(expiry) {
			t.Fatalf("expected expiration %v, got %v", expiry, c.WatchExpiration)
		}
	})

	t.Run("record watch stores an exclude action", func(t *testing.T) {
		err := repo.RecordWatch(ctx, mailbox, domain.WatchRecord{
			Cursor:            120,
			Topic:             "gmail-push",
			LabelScope:        []string{"SPAM"},
			LabelFilterAction: domain.LabelFilterExclude,
			At:                contractNow.Add(3 * time.Minute),
		})
		if err != nil {
			t.Fatalf("record watch: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		filter := c.LabelFilter()
		if !filter.Exclude || len(filter.LabelIDs) != 1 || filter.LabelIDs[0] != "SPAM" {
			t.Fatalf("expected exclude SPAM, got %+v", filter)
		}
	})

	t.Run("clear watch keeps the cursor", func(t *testing.T) {
		if err := repo.ClearWatch(ctx, mailbox, contractNow.Add(4*time.Minute)); err != nil {
			t.Fatalf("clear watch: %v", err)
		}
		c, _ := repo.Get(ctx, mailbox)
		if c.WatchExpiration != nil || c.HistoryCursor != 150 || c.WatchTopic != "gmail-push" {
			t.Fatalf("unexpected cursor after clear %+v", c)
		}
	})

	t.Run("concurrent writers end at the maximum", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 1; i <= 10; i++ {
			wg.Add(1)
			go func(n uint64) {
				defer wg.Done()
				if err := repo.RecordSync(ctx, mailbox, domain.SyncRecord{Cursor: 150 + n*10, SyncedAt: contractNow}); err != nil {
					t.Errorf("record sync: %v", err)
				}
			}(uint64(i))
		}
		wg.Wait()
		c, _ := repo.Get(ctx, mailbox)
		if c.HistoryCursor != 250 {
			t.Fatalf("expected cursor 250, got %d", c.HistoryCursor)
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		all, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		found := false
		for _, c := range all {
			if c.MailboxID == mailbox {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s in list", mailbox)
		}

		if err := repo.Delete(ctx, mailbox); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := repo.Delete(ctx, mailbox); !errors.Is(err, domain.ErrCursorNotFound) {
			t.Fatalf("expected ErrCursorNotFound on second delete, got %v", err)
		}
	})
}

func testMessageRepository(t *testing.T, repo MessageRepository, setWorkflow setWorkflowFunc) {
	ctx := context.Background()
	prefix := uuid.NewString()[:8]
	id := prefix + "-m1"

	newMessage := func(messageID, snippet string) *domain.IngestedMessage {
		return &domain.IngestedMessage{
			MessageID:         messageID,
			ThreadID:          "t-" + messageID,
			HistoryIDAtIngest: 101,
			ReceivedAt:        contractNow.Add(-time.Hour),
			Snippet:           snippet,
			Headers:           domain.HeaderList{{Name: "To", Value: "agent@x.com"}},
			LabelIDs:          domain.StringList{"INBOX"},
			AttributedAgent:   strPtr("agent@x.com"),
			MailboxID:         "agent@x.com",
			ProcessedAt:       contractNow,
		}
	}

	t.Run("insert", func(t *testing.T) {
		created, err := repo.Upsert(ctx, newMessage(id, "first"))
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if !created {
			t.Fatal("expected a new record")
		}
		msg, err := repo.GetByMessageID(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if msg.Status != domain.MessageStatusNew || msg.ID == "" || msg.Snippet != "first" {
			t.Fatalf("unexpected stored message %+v", msg)
		}
		if len(msg.Headers) != 1 || msg.Headers[0].Value != "agent@x.com" {
			t.Fatalf("unexpected headers %+v", msg.Headers)
		}
	})

	t.Run("repeat ingestion keeps workflow fields", func(t *testing.T) {
		setWorkflow(t, id, domain.MessageStatusClaimed, strPtr("rep-1"))

		again := newMessage(id, "refreshed")
		again.Status = domain.MessageStatusNew
		again.LabelIDs = domain.StringList{"INBOX", "Label_7"}
		again.AttributedAgent = nil
		created, err := repo.Upsert(ctx, again)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if created {
			t.Fatal("expected existing record")
		}
		msg, err := repo.GetByMessageID(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if msg.Snippet != "refreshed" {
			t.Errorf("expected provenance refreshed, got snippet %q", msg.Snippet)
		}
		if len(msg.LabelIDs) != 2 || msg.LabelIDs[1] != "Label_7" || msg.AttributedAgent != nil {
			t.Errorf("expected labels and attribution refreshed, got %v / %v", msg.LabelIDs, msg.AttributedAgent)
		}
		if msg.Status != domain.MessageStatusClaimed || msg.ClaimedBy == nil || *msg.ClaimedBy != "rep-1" {
			t.Errorf("workflow fields overwritten: %+v", msg)
		}
	})

	t.Run("exists batch", func(t *testing.T) {
		found, err := repo.ExistsBatch(ctx, []string{id, prefix + "-missing"})
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if _, ok := found[id]; !ok || len(found) != 1 {
			t.Fatalf("expected only %s, got %v", id, found)
		}
		empty, err := repo.ExistsBatch(ctx, nil)
		if err != nil || len(empty) != 0 {
			t.Fatalf("expected empty result, got %v / %v", empty, err)
		}
	})

	t.Run("concurrent inserts create one record", func(t *testing.T) {
		raced := prefix + "-race"
		var created int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Upsert(ctx, newMessage(raced, "race"))
				if err != nil {
					t.Errorf("upsert: %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if created != 1 {
			t.Fatalf("expected exactly one creation, got %d", created)
		}
	})

	t.Run("missing message", func(t *testing.T) {
		if _, err := repo.GetByMessageID(ctx, prefix+"-missing"); !errors.Is(err, domain.ErrMessageNotFound) {
			t.Fatalf("expected ErrMessageNotFound, got %v", err)
		}
	})
}

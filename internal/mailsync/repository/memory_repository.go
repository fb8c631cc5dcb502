package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"github.com/google/uuid"
)

// memoryCursorRepository keeps cursors in process memory. Used by tests and
// by STORE_DRIVER=memory for local runs.
type memoryCursorRepository struct {
	mu      sync.Mutex
	cursors map[string]*domain.SyncCursor
}

// NewMemoryCursorRepository creates an empty in-memory CursorRepository
func NewMemoryCursorRepository() CursorRepository {
	return &memoryCursorRepository{cursors: make(map[string]*domain.SyncCursor)}
}

func (r *memoryCursorRepository) Get(_ context.Context, mailboxID string) (*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[mailboxID]
	if !ok {
		return nil, domain.ErrCursorNotFound
	}
	return cloneCursor(c), nil
}

func (r *memoryCursorRepository) List(_ context.Context) ([]*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.SyncCursor, 0, len(r.cursors))
	for _, c := range r.cursors {
		out = append(out, cloneCursor(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MailboxID < out[j].MailboxID })
	return out, nil
}

func (r *memoryCursorRepository) RecordSync(_ context.Context, mailboxID string, rec domain.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreate(mailboxID, rec.SyncedAt)
	if rec.Cursor > c.HistoryCursor {
		c.HistoryCursor = rec.Cursor
	}
	syncedAt := rec.SyncedAt
	c.LastSyncedAt = &syncedAt
	c.LastError = cloneString(rec.Err)
	c.HeldRecordID = rec.HeldRecordID
	c.HoldAttempts = rec.HoldAttempts
	c.UpdatedAt = rec.SyncedAt
	return nil
}

func (r *memoryCursorRepository) RecordWatch(_ context.Context, mailboxID string, rec domain.WatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreate(mailboxID, rec.At)
	if rec.Cursor > c.HistoryCursor {
		c.HistoryCursor = rec.Cursor
	}
	c.WatchTopic = rec.Topic
	c.WatchExpiration = cloneTime(rec.Expiration)
	c.LabelScope = append(domain.StringList(nil), rec.LabelScope...)
	c.LabelFilterAction = watchFilterAction(rec.LabelFilterAction)
	c.LastError = nil
	c.UpdatedAt = rec.At
	return nil
}

func (r *memoryCursorRepository) ClearWatch(_ context.Context, mailboxID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[mailboxID]
	if !ok {
		return domain.ErrCursorNotFound
	}
	c.WatchExpiration = nil
	c.UpdatedAt = at
	return nil
}

func (r *memoryCursorRepository) Delete(_ context.Context, mailboxID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cursors[mailboxID]; !ok {
		return domain.ErrCursorNotFound
	}
	delete(r.cursors, mailboxID)
	return nil
}

func (r *memoryCursorRepository) getOrCreate(mailboxID string, at time.Time) *domain.SyncCursor {
	c, ok := r.cursors[mailboxID]
	if !ok {
		c = &domain.SyncCursor{MailboxID: mailboxID, LabelFilterAction: domain.LabelFilterInclude, CreatedAt: at, UpdatedAt: at}
		r.cursors[mailboxID] = c
	}
	return c
}

// memoryMessageRepository is the in-memory MessageRepository.
type memoryMessageRepository struct {
	mu       sync.Mutex
	messages map[string]*domain.IngestedMessage
}

// NewMemoryMessageRepository creates an empty in-memory MessageRepository
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{messages: make(map[string]*domain.IngestedMessage)}
}

func (r *memoryMessageRepository) Upsert(_ context.Context, msg *domain.IngestedMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.messages[msg.MessageID]
	if !ok {
		stored := cloneMessage(msg)
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.Status == "" {
			stored.Status = domain.MessageStatusNew
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = stored.ProcessedAt
		}
		r.messages[msg.MessageID] = stored
		return true, nil
	}

	existing.Refresh(msg)
	return false, nil
}

func (r *memoryMessageRepository) ExistsBatch(_ context.Context, ids []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := r.messages[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (r *memoryMessageRepository) GetByMessageID(_ context.Context, messageID string) (*domain.IngestedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

// SetWorkflow lets tests and local tooling act as the workflow collaborator.
func (r *memoryMessageRepository) SetWorkflow(messageID, status string, claimedBy *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return domain.ErrMessageNotFound
	}
	m.Status = status
	m.ClaimedBy = cloneString(claimedBy)
	return nil
}

func cloneCursor(c *domain.SyncCursor) *domain.SyncCursor {
	cp := *c
	cp.WatchExpiration = cloneTime(c.WatchExpiration)
	cp.LastSyncedAt = cloneTime(c.LastSyncedAt)
	cp.LastError = cloneString(c.LastError)
	cp.LabelScope = append(domain.StringList(nil), c.LabelScope...)
	return &cp
}

func cloneMessage(m *domain.IngestedMessage) *domain.IngestedMessage {
	cp := *m
	cp.Headers = append(domain.HeaderList(nil), m.Headers...)
	cp.LabelIDs = append(domain.StringList(nil), m.LabelIDs...)
	cp.Tags = append(domain.StringList(nil), m.Tags...)
	cp.AttributedAgent = cloneString(m.AttributedAgent)
	cp.ClaimedBy = cloneString(m.ClaimedBy)
	cp.ClaimedAt = cloneTime(m.ClaimedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

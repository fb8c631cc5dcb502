package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
)

type mockMailProvider struct {
	listHistoryFunc func(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error)
	getMessageFunc  func(ctx context.Context, mailboxID, messageID string) (*domain.ProviderMessage, error)

	mu           sync.Mutex
	historyCalls []domain.HistoryRequest
	messageCalls []string
}

func (m *mockMailProvider) ListHistory(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error) {
	m.mu.Lock()
	m.historyCalls = append(m.historyCalls, req)
	m.mu.Unlock()
	if m.listHistoryFunc != nil {
		return m.listHistoryFunc(ctx, req)
	}
	return &domain.HistoryPage{HistoryID: req.StartCursor}, nil
}

func (m *mockMailProvider) GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.ProviderMessage, error) {
	m.mu.Lock()
	m.messageCalls = append(m.messageCalls, messageID)
	m.mu.Unlock()
	if m.getMessageFunc != nil {
		return m.getMessageFunc(ctx, mailboxID, messageID)
	}
	return &domain.ProviderMessage{ID: messageID}, nil
}

func (m *mockMailProvider) historyCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.historyCalls)
}

func (m *mockMailProvider) messageCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messageCalls)
}

type mockWatchProvider struct {
	configured bool
	watchFunc  func(ctx context.Context, mailboxID string, req domain.WatchRequest) (*domain.WatchResponse, error)
	stopFunc   func(ctx context.Context, mailboxID string) error

	watchCalls int
	stopCalls  int
}

func (m *mockWatchProvider) Configured() bool { return m.configured }

func (m *mockWatchProvider) Watch(ctx context.Context, mailboxID string, req domain.WatchRequest) (*domain.WatchResponse, error) {
	m.watchCalls++
	if m.watchFunc != nil {
		return m.watchFunc(ctx, mailboxID, req)
	}
	return &domain.WatchResponse{HistoryID: 1}, nil
}

func (m *mockWatchProvider) Stop(ctx context.Context, mailboxID string) error {
	m.stopCalls++
	if m.stopFunc != nil {
		return m.stopFunc(ctx, mailboxID)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.IngestEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.IngestEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []domain.IngestEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.IngestEvent(nil), p.events...)
}

// fakeMailbox simulates a provider mailbox: an ordered change feed of
// messageAdded records served in pages of pageSize.
type fakeMailbox struct {
	mu        sync.Mutex
	pageSize  int
	historyID uint64
	records   []domain.HistoryRecord
	messages  map[string]*domain.ProviderMessage
	failing   map[string]error
}

func newFakeMailbox(historyID uint64) *fakeMailbox {
	return &fakeMailbox{
		pageSize:  100,
		historyID: historyID,
		messages:  make(map[string]*domain.ProviderMessage),
		failing:   make(map[string]error),
	}
}

// add appends a history record adding one message per id
func (f *fakeMailbox) add(recordID uint64, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := domain.HistoryRecord{ID: recordID}
	for _, id := range ids {
		rec.MessagesAdded = append(rec.MessagesAdded, domain.MessageRef{ID: id, ThreadID: "t-" + id, LabelIDs: []string{"INBOX"}})
		f.messages[id] = &domain.ProviderMessage{
			ID:           id,
			ThreadID:     "t-" + id,
			HistoryID:    recordID,
			InternalDate: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Snippet:      "snippet " + id,
			LabelIDs:     []string{"INBOX"},
			Headers: domain.HeaderList{
				{Name: "From", Value: "Customer <customer@example.org>"},
				{Name: "To", Value: "agent@x.com"},
				{Name: "Subject", Value: "Quote request " + id},
			},
		}
	}
	f.records = append(f.records, rec)
	sort.Slice(f.records, func(i, j int) bool { return f.records[i].ID < f.records[j].ID })
	if recordID > f.historyID {
		f.historyID = recordID
	}
}

func (f *fakeMailbox) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failing, id)
		return
	}
	f.failing[id] = err
}

func (f *fakeMailbox) ListHistory(_ context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []domain.HistoryRecord
	for _, rec := range f.records {
		if rec.ID > req.StartCursor {
			pending = append(pending, rec)
		}
	}

	offset := 0
	if req.PageToken != "" {
		n, err := strconv.Atoi(req.PageToken)
		if err != nil {
			return nil, fmt.Errorf("bad page token %q", req.PageToken)
		}
		offset = n
	}
	if offset > len(pending) {
		offset = len(pending)
	}
	end := offset + f.pageSize
	page := &domain.HistoryPage{HistoryID: f.historyID}
	if end < len(pending) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(pending)
	}
	page.Records = append(page.Records, pending[offset:end]...)
	return page, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, _ string, messageID string) (*domain.ProviderMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[messageID]; ok {
		return nil, err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageGone, messageID)
	}
	cp := *msg
	return &cp, nil
}

// countingProvider wraps a MailProvider and counts calls
type countingProvider struct {
	MailProvider
	mu       sync.Mutex
	history  int
	messages int
}

func (c *countingProvider) ListHistory(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryPage, error) {
	c.mu.Lock()
	c.history++
	c.mu.Unlock()
	return c.MailProvider.ListHistory(ctx, req)
}

func (c *countingProvider) GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.ProviderMessage, error) {
	c.mu.Lock()
	c.messages++
	c.mu.Unlock()
	return c.MailProvider.GetMessage(ctx, mailboxID, messageID)
}

func (c *countingProvider) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history, c.messages
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func transientErr(id string) error {
	return &domain.TransientFetchError{Op: "messages.get " + id, MailboxID: "agent@x.com", Err: context.DeadlineExceeded}
}

package domain

import "time"

// HistoryRequest asks for one page of a mailbox change feed.
type HistoryRequest struct {
	MailboxID   string
	StartCursor uint64
	PageToken   string
	LabelID     string
}

// HistoryPage is one page of the provider change feed.
type HistoryPage struct {
	Records       []HistoryRecord
	NextPageToken string
	HistoryID     uint64
}

// HistoryRecord is a single change-feed entry. Only the message-added
// events are carried; other change kinds are dropped by the provider adapter.
type HistoryRecord struct {
	ID            uint64
	MessagesAdded []MessageRef
}

// MessageRef identifies a message referenced by a change event.
type MessageRef struct {
	ID       string
	ThreadID string
	LabelIDs []string
	// HistoryID is the id of the history record that referenced the message.
	HistoryID uint64
}

// ProviderMessage is the metadata view of a message returned by the provider.
type ProviderMessage struct {
	ID           string
	ThreadID     string
	HistoryID    uint64
	InternalDate time.Time
	Snippet      string
	LabelIDs     []string
	Headers      HeaderList
}

// WatchRequest registers provider push notifications for a mailbox.
type WatchRequest struct {
	Topic             string
	LabelIDs          []string
	LabelFilterAction string
}

// WatchResponse is the provider's answer to a watch registration.
type WatchResponse struct {
	HistoryID  uint64
	Expiration *time.Time
}

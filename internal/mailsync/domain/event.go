package domain

import "time"

const (
	EventReasonSync       = "sync"
	EventReasonManualSync = "manual-sync"
)

// IngestEvent tells downstream collaborators that new messages were ingested.
// Delivery is best effort.
type IngestEvent struct {
	ID           string    `json:"id"`
	Reason       string    `json:"reason"`
	MailboxID    string    `json:"mailboxId"`
	CreatedCount int       `json:"createdCount"`
	LatestCursor uint64    `json:"latestCursor,string"`
	At           time.Time `json:"at"`
}

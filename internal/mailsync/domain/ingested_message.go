package domain

import "time"

// Workflow status values owned by the lead/order collaborators. The sync
// engine only ever writes MessageStatusNew, and only on first insert.
const (
	MessageStatusNew       = "new"
	MessageStatusClaimed   = "claimed"
	MessageStatusConverted = "converted"
	MessageStatusDiscarded = "discarded"
)

// IngestedMessage is one provider message stored locally, keyed by MessageID.
type IngestedMessage struct {
	ID                string     `json:"id" gorm:"column:id;primaryKey" bson:"row_id"`
	MessageID         string     `json:"message_id" gorm:"column:message_id;uniqueIndex;not null" bson:"_id"`
	ThreadID          string     `json:"thread_id" gorm:"column:thread_id;index" bson:"thread_id"`
	HistoryIDAtIngest uint64     `json:"history_id_at_ingest,string" gorm:"column:history_id_at_ingest" bson:"history_id_at_ingest"`
	ReceivedAt        time.Time  `json:"received_at" gorm:"column:received_at;index" bson:"received_at"`
	Snippet           string     `json:"snippet" gorm:"column:snippet" bson:"snippet"`
	Headers           HeaderList `json:"headers" gorm:"column:headers;type:jsonb" bson:"headers"`
	LabelIDs          StringList `json:"label_ids" gorm:"column:label_ids;type:jsonb" bson:"label_ids"`
	AttributedAgent   *string    `json:"attributed_agent" gorm:"column:attributed_agent;index" bson:"attributed_agent"`
	MailboxID         string     `json:"mailbox_id" gorm:"column:mailbox_id;index;not null" bson:"mailbox_id"`
	ProcessedAt       time.Time  `json:"processed_at" gorm:"column:processed_at" bson:"processed_at"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at" bson:"created_at"`

	// Workflow fields. Set on insert, never refreshed by ingestion.
	Status    string     `json:"status" gorm:"column:status;index;not null;default:new" bson:"status"`
	ClaimedBy *string    `json:"claimed_by,omitempty" gorm:"column:claimed_by" bson:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty" gorm:"column:claimed_at" bson:"claimed_at,omitempty"`
	Tags      StringList `json:"tags" gorm:"column:tags;type:jsonb" bson:"tags"`
}

func (IngestedMessage) TableName() string {
	return "ingested_messages"
}

// RefreshColumns maps each column a repeat ingestion may overwrite to its
// new value. Workflow columns are never part of it.
func (m *IngestedMessage) RefreshColumns() map[string]interface{} {
	return map[string]interface{}{
		"thread_id":            m.ThreadID,
		"history_id_at_ingest": m.HistoryIDAtIngest,
		"received_at":          m.ReceivedAt,
		"snippet":              m.Snippet,
		"headers":              m.Headers,
		"label_ids":            m.LabelIDs,
		"attributed_agent":     m.AttributedAgent,
		"mailbox_id":           m.MailboxID,
		"processed_at":         m.ProcessedAt,
	}
}

// Refresh copies the RefreshColumns fields of from into m.
func (m *IngestedMessage) Refresh(from *IngestedMessage) {
	m.ThreadID = from.ThreadID
	m.HistoryIDAtIngest = from.HistoryIDAtIngest
	m.ReceivedAt = from.ReceivedAt
	m.Snippet = from.Snippet
	m.Headers = append(HeaderList(nil), from.Headers...)
	m.LabelIDs = append(StringList(nil), from.LabelIDs...)
	m.AttributedAgent = nil
	if from.AttributedAgent != nil {
		agent := *from.AttributedAgent
		m.AttributedAgent = &agent
	}
	m.MailboxID = from.MailboxID
	m.ProcessedAt = from.ProcessedAt
}

package domain

import (
	"strconv"
	"strings"
	"time"
)

// SyncCursor is the durable sync state of one mailbox.
//
// LabelFilterAction says whether LabelScope lists labels to include or to
// exclude. HeldRecordID is the history record the cursor is held below because
// a message in it failed; HoldAttempts counts the passes that kept that hold.
type SyncCursor struct {
	MailboxID         string     `json:"mailbox_id" gorm:"column:mailbox_id;primaryKey" bson:"_id"`
	HistoryCursor     uint64     `json:"history_cursor,string" gorm:"column:history_cursor;not null;default:0" bson:"history_cursor"`
	WatchTopic        string     `json:"watch_topic" gorm:"column:watch_topic" bson:"watch_topic"`
	WatchExpiration   *time.Time `json:"watch_expiration,omitempty" gorm:"column:watch_expiration" bson:"watch_expiration,omitempty"`
	LabelScope        StringList `json:"label_scope" gorm:"column:label_scope;type:jsonb" bson:"label_scope"`
	LabelFilterAction string     `json:"label_filter_action" gorm:"column:label_filter_action;not null;default:include" bson:"label_filter_action"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty" gorm:"column:last_synced_at" bson:"last_synced_at,omitempty"`
	LastError         *string    `json:"last_error,omitempty" gorm:"column:last_error" bson:"last_error,omitempty"`
	HeldRecordID      uint64     `json:"held_record_id,string,omitempty" gorm:"column:held_record_id;not null;default:0" bson:"held_record_id"`
	HoldAttempts      int        `json:"hold_attempts,omitempty" gorm:"column:hold_attempts;not null;default:0" bson:"hold_attempts"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at" bson:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"column:updated_at" bson:"updated_at"`
}

func (SyncCursor) TableName() string {
	return "mailbox_sync_cursors"
}

// SyncRecord is what a finished (or aborted) sync pass writes back.
// Err is nil on success, which clears LastError.
// HeldRecordID and HoldAttempts replace the stored hold state; zero clears it.
type SyncRecord struct {
	Cursor       uint64
	SyncedAt     time.Time
	Err          *string
	HeldRecordID uint64
	HoldAttempts int
}

// WatchRecord is what a successful watch registration writes back.
type WatchRecord struct {
	Cursor            uint64
	Topic             string
	Expiration        *time.Time
	LabelScope        []string
	LabelFilterAction string
	At                time.Time
}

const (
	LabelFilterInclude = "include"
	LabelFilterExclude = "exclude"
)

// LabelFilter is the label scope a sync pass applies to new messages
type LabelFilter struct {
	LabelIDs []string
	Exclude  bool
}

// NewLabelFilter builds a filter from a watch-style action. Any action other
// than "exclude" includes.
func NewLabelFilter(labelIDs []string, action string) LabelFilter {
	return LabelFilter{LabelIDs: labelIDs, Exclude: strings.EqualFold(action, LabelFilterExclude)}
}

// LabelFilter returns the scope recorded with the last watch registration
func (c *SyncCursor) LabelFilter() LabelFilter {
	return NewLabelFilter(c.LabelScope, c.LabelFilterAction)
}

// NormalizeMailboxID lower-cases and trims a mailbox address so that
// notifications and admin calls agree on the key.
func NormalizeMailboxID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// FormatCursor renders a history cursor the way the provider does.
func FormatCursor(c uint64) string {
	return strconv.FormatUint(c, 10)
}

// ParseCursor parses a decimal history cursor. Zero is not a valid cursor.
func ParseCursor(s string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

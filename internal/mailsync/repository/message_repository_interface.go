package repository

import (
	"context"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"
)

// MessageRepository stores ingested messages keyed by provider message id
type MessageRepository interface {
	// Upsert inserts the message if absent, otherwise refreshes only the
	// provenance columns (IngestedMessage.RefreshColumns). Returns true when a new
	// record was created.
	Upsert(ctx context.Context, msg *domain.IngestedMessage) (bool, error)
	// ExistsBatch returns the subset of ids that are already stored
	ExistsBatch(ctx context.Context, ids []string) (map[string]struct{}, error)
	GetByMessageID(ctx context.Context, messageID string) (*domain.IngestedMessage, error)
}

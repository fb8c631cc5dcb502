package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	cursorCollection  = "mailbox_sync_cursors"
	messageCollection = "ingested_messages"
)

// EnsureMongoIndexes creates the secondary indexes used by the sync engine.
// Both collections are keyed by _id (mailbox id / provider message id).
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		messageCollection: {
			{Keys: bson.D{{Key: "mailbox_id", Value: 1}, {Key: "received_at", Value: -1}}},
			{Keys: bson.D{{Key: "attributed_agent", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "row_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		cursorCollection: {
			{Keys: bson.D{{Key: "last_synced_at", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// mongoCursorRepository implements CursorRepository on MongoDB
type mongoCursorRepository struct {
	coll *mongo.Collection
}

// NewMongoCursorRepository creates a CursorRepository backed by db
func NewMongoCursorRepository(db *mongo.Database) CursorRepository {
	return &mongoCursorRepository{coll: db.Collection(cursorCollection)}
}

func (r *mongoCursorRepository) Get(ctx context.Context, mailboxID string) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := r.coll.FindOne(ctx, bson.M{"_id": mailboxID}).Decode(&cursor)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCursorNotFound
		}
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return &cursor, nil
}

func (r *mongoCursorRepository) List(ctx context.Context) ([]*domain.SyncCursor, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync cursors: %w", err)
	}
	defer cur.Close(ctx)

	var cursors []*domain.SyncCursor
	if err := cur.All(ctx, &cursors); err != nil {
		return nil, fmt.Errorf("failed to decode sync cursors: %w", err)
	}
	return cursors, nil
}

// RecordSync uses $max so the stored cursor never decreases
func (r *mongoCursorRepository) RecordSync(ctx context.Context, mailboxID string, rec domain.SyncRecord) error {
	set := bson.M{
		"last_synced_at": rec.SyncedAt,
		"held_record_id": int64(rec.HeldRecordID),
		"hold_attempts":  rec.HoldAttempts,
		"updated_at":     rec.SyncedAt,
	}
	update := bson.M{
		"$max": bson.M{"history_cursor": int64(rec.Cursor)},
		"$setOnInsert": bson.M{
			"created_at":          rec.SyncedAt,
			"watch_topic":         "",
			"label_scope":         bson.A{},
			"label_filter_action": domain.LabelFilterInclude,
		},
	}
	if rec.Err != nil {
		set["last_error"] = *rec.Err
	} else {
		update["$unset"] = bson.M{"last_error": ""}
	}
	update["$set"] = set

	if err := r.upsert(ctx, mailboxID, update); err != nil {
		return fmt.Errorf("failed to record sync for %s: %w", mailboxID, err)
	}
	return nil
}

func (r *mongoCursorRepository) RecordWatch(ctx context.Context, mailboxID string, rec domain.WatchRecord) error {
	scope := bson.A{}
	for _, l := range rec.LabelScope {
		scope = append(scope, l)
	}
	set := bson.M{
		"watch_topic":         rec.Topic,
		"label_scope":         scope,
		"label_filter_action": watchFilterAction(rec.LabelFilterAction),
		"updated_at":          rec.At,
	}
	unset := bson.M{"last_error": ""}
	if rec.Expiration != nil {
		set["watch_expiration"] = *rec.Expiration
	} else {
		unset["watch_expiration"] = ""
	}
	update := bson.M{
		"$max":         bson.M{"history_cursor": int64(rec.Cursor)},
		"$set":         set,
		"$unset":       unset,
		"$setOnInsert": bson.M{"created_at": rec.At},
	}

	if err := r.upsert(ctx, mailboxID, update); err != nil {
		return fmt.Errorf("failed to record watch for %s: %w", mailboxID, err)
	}
	return nil
}

func (r *mongoCursorRepository) ClearWatch(ctx context.Context, mailboxID string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": mailboxID}, bson.M{
		"$unset": bson.M{"watch_expiration": ""},
		"$set":   bson.M{"updated_at": at},
	})
	if err != nil {
		return fmt.Errorf("failed to clear watch for %s: %w", mailboxID, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrCursorNotFound
	}
	return nil
}

func (r *mongoCursorRepository) Delete(ctx context.Context, mailboxID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": mailboxID})
	if err != nil {
		return fmt.Errorf("failed to delete sync cursor: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrCursorNotFound
	}
	return nil
}

// upsert retries once on a duplicate key: two first-time upserts racing on the
// same _id make one of them fail, and the retry then matches the winner's document.
func (r *mongoCursorRepository) upsert(ctx context.Context, mailboxID string, update bson.M) error {
	opts := options.UpdateOne().SetUpsert(true)
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": mailboxID}, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = r.coll.UpdateOne(ctx, bson.M{"_id": mailboxID}, update, opts)
	}
	return err
}

// mongoMessageRepository implements MessageRepository on MongoDB
type mongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository creates a MessageRepository backed by db
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{coll: db.Collection(messageCollection)}
}

// Upsert refreshes provenance with $set and writes workflow defaults with
// $setOnInsert, so workflow fields are only ever written on creation.
func (r *mongoMessageRepository) Upsert(ctx context.Context, msg *domain.IngestedMessage) (bool, error) {
	rowID := msg.ID
	if rowID == "" {
		rowID = uuid.New().String()
	}
	status := msg.Status
	if status == "" {
		status = domain.MessageStatusNew
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = msg.ProcessedAt
	}

	set := bson.M{}
	for column, value := range msg.RefreshColumns() {
		set[column] = bsonValue(value)
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"row_id":     rowID,
			"created_at": createdAt,
			"status":     status,
			"tags":       bson.A{},
		},
	}

	opts := options.UpdateOne().SetUpsert(true)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": msg.MessageID}, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		res, err = r.coll.UpdateOne(ctx, bson.M{"_id": msg.MessageID}, update, opts)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert message %s: %w", msg.MessageID, err)
	}
	created := res.UpsertedCount == 1
	if created {
		msg.ID = rowID
		msg.Status = status
		msg.CreatedAt = createdAt
	}
	return created, nil
}

func (r *mongoMessageRepository) ExistsBatch(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing messages: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message id: %w", err)
		}
		found[doc.ID] = struct{}{}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration error: %w", err)
	}
	return found, nil
}

func (r *mongoMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.IngestedMessage, error) {
	var msg domain.IngestedMessage
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// bsonValue converts refresh column values to the shapes stored in documents
func bsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case uint64:
		return int64(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case domain.HeaderList:
		out := bson.A{}
		for _, h := range x {
			out = append(out, bson.M{"name": h.Name, "value": h.Value})
		}
		return out
	case domain.StringList:
		out := bson.A{}
		for _, l := range x {
			out = append(out, l)
		}
		return out
	default:
		return v
	}
}

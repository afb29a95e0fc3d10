package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/storesync/internal/core"
)

// MongoConfig configures the change-log sink.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		return errors.New("mongo database is required")
	}
	return nil
}

type inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// ChangeLog is one document in the change-log collection.
type ChangeLog struct {
	BatchID   string    `bson:"batch_id"`
	Entity    string    `bson:"entity"`
	Operation string    `bson:"operation,omitempty"`
	Terminal  string    `bson:"terminal,omitempty"`
	Count     int       `bson:"count"`
	Records   []bson.D  `bson:"records"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSink appends one change-log document per notification.
type MongoSink struct {
	client *mongo.Client
	coll   inserter
}

// NewMongoSink connects to MongoDB.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = "sync_log"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoSink{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func changeLog(n core.Notification) ChangeLog {
	docs := make([]bson.D, len(n.Records))
	for i, rec := range n.Records {
		doc := make(bson.D, 0, rec.Len())
		for _, f := range rec.Fields() {
			v, _ := rec.Get(f)
			doc = append(doc, bson.E{Key: f, Value: core.StoreValue(v)})
		}
		docs[i] = doc
	}
	return ChangeLog{
		BatchID:   n.BatchID,
		Entity:    n.Entity,
		Operation: string(n.Operation),
		Terminal:  n.Terminal,
		Count:     len(n.Records),
		Records:   docs,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *MongoSink) Notify(ctx context.Context, n core.Notification) error {
	if _, err := s.coll.InsertOne(ctx, changeLog(n)); err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

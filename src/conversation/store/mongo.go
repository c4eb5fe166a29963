package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/go-companion/src/conversation"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore keeps one document per conversation, keyed by conversation id.
type MongoStore struct {
	client   *mongo.Client
	convs    *mongo.Collection
	archived *mongo.Collection
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		convs:    db.Collection("conversations"),
		archived: db.Collection("archived_conversations"),
	}
}

func (ms *MongoStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	_, err := ms.convs.ReplaceOne(ctx, bson.M{"_id": conv.ID}, conv, options.Replace().SetUpsert(true))
	return err
}

func (ms *MongoStore) Load(ctx context.Context, id string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	err := ms.convs.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (ms *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := ms.convs.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (ms *MongoStore) Archive(ctx context.Context, id string) error {
	conv, err := ms.Load(ctx, id)
	if err != nil {
		return err
	}
	doc := bson.M{
		"_id":         conv.ID,
		"owner_id":    conv.OwnerID,
		"created_at":  conv.CreatedAt,
		"turns":       conv.Turns,
		"archived_at": time.Now().UTC(),
	}
	_, err = ms.archived.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)

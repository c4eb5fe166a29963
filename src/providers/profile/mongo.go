package profile

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultCollection = "personality_profiles"

// MongoStore keeps one profile document per owner id.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(client *mongo.Client, database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{coll: client.Database(database).Collection(collection), now: time.Now}
}

func (m *MongoStore) Get(ctx context.Context, ownerID string) (*Profile, error) {
	var p Profile
	err := m.coll.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Put stores p under ownerID, replacing any previous profile.
func (m *MongoStore) Put(ctx context.Context, ownerID string, p *Profile) error {
	doc := *p
	doc.OwnerID = ownerID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now().UTC()
	}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": ownerID}, doc, options.Replace().SetUpsert(true))
	return err
}

var _ Store = (*MongoStore)(nil)

// Package mongostore persists migration records as MongoDB documents, one
// document per migration with the migration ID as _id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/aatuh/migratory"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "migratory_records"

// Config holds the MongoDB connection settings.
type Config struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

type recordDoc struct {
	ID        string    `bson:"_id"`
	State     string    `bson:"state"`
	Seq       int64     `bson:"seq"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store is a migratory.RecordStore backed by a MongoDB collection.
type Store struct {
	db         *mongo.Database
	collection string
	client     *mongo.Client
}

var _ migratory.RecordStore = (*Store)(nil)

// New returns a Store keeping records in db under collection. An empty
// collection name falls back to DefaultCollection.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{db: db, collection: collection}
}

// Open connects to MongoDB as described by cfg. The returned Store owns
// the client; call Close when done.
//
// Parameters:
//   - ctx: Context used for the initial ping.
//   - cfg: Connection settings.
//
// Returns:
//   - *Store: A new Store.
//   - error: An error if the server cannot be reached.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := New(client.Database(cfg.Database), cfg.Collection)
	s.client = client
	return s, nil
}

// Close disconnects the client when the Store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) coll() *mongo.Collection {
	return s.db.Collection(s.collection)
}

// Initialize creates the records collection if it does not exist.
func (s *Store) Initialize(ctx context.Context) error {
	exists, err := s.IsInitialized(ctx)
	if err != nil || exists {
		return err
	}
	if err := s.db.CreateCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("mongo create collection %s: %w", s.collection, err)
	}
	return nil
}

// IsInitialized reports whether the records collection exists.
func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: s.collection}})
	if err != nil {
		return false, fmt.Errorf("mongo list collections: %w", err)
	}
	return len(names) > 0, nil
}

// Destroy drops the records collection.
func (s *Store) Destroy(ctx context.Context) error {
	if err := s.coll().Drop(ctx); err != nil {
		return fmt.Errorf("mongo drop %s: %w", s.collection, err)
	}
	return nil
}

// GetAllMigrationRecords returns every record in first-write order.
func (s *Store) GetAllMigrationRecords(ctx context.Context) ([]migratory.MigrationRecord, error) {
	cursor, err := s.coll().Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}

	records := make([]migratory.MigrationRecord, 0, len(docs))
	for _, doc := range docs {
		state, err := migratory.ParseMigrationState(doc.State)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", doc.ID, err)
		}
		records = append(records, migratory.MigrationRecord{MigrationID: doc.ID, State: state})
	}
	return records, nil
}

// SetMigrationState upserts the record for id. New records get the next
// sequence number; updates keep theirs.
func (s *Store) SetMigrationState(
	ctx context.Context, id string, state migratory.MigrationState,
) error {
	now := time.Now().UTC()
	filter := bson.D{{Key: "_id", Value: id}}

	err := s.coll().FindOne(ctx, filter).Err()
	switch {
	case err == nil:
		update := bson.D{{Key: "$set", Value: bson.D{
			{Key: "state", Value: string(state)},
			{Key: "updatedAt", Value: now},
		}}}
		if _, err := s.coll().UpdateOne(ctx, filter, update); err != nil {
			return fmt.Errorf("mongo update %s: %w", id, err)
		}
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
	default:
		return fmt.Errorf("mongo find %s: %w", id, err)
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	doc := recordDoc{ID: id, State: string(state), Seq: seq, UpdatedAt: now}
	if _, err := s.coll().InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo insert %s: %w", id, err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var last recordDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := s.coll().FindOne(ctx, bson.D{}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mongo last seq: %w", err)
	}
	return last.Seq + 1, nil
}

// DeleteMigrationRecord removes the record for id if present.
func (s *Store) DeleteMigrationRecord(ctx context.Context, id string) error {
	if _, err := s.coll().DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("mongo delete %s: %w", id, err)
	}
	return nil
}

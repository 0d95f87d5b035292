package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// MongoConfig holds connection settings for the Mongo backend.
type MongoConfig struct {
	ConnectionURL   string        `env:"MONGODB_URL,required"`
	Database        string        `env:"MONGODB_DATABASE" envDefault:"flagkit"`
	Collection      string        `env:"MONGODB_COLLECTION" envDefault:"flags"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryAttempts   int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}

// ConnectMongo dials Mongo with retries and returns the flags collection.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Collection, error) {
	for range cfg.RetryAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime),
		)
		if err == nil {
			if err := client.Ping(ctx, nil); err == nil {
				return client.Database(cfg.Database).Collection(cfg.Collection), nil
			}
		}
		time.Sleep(cfg.RetryInterval)
	}
	return nil, ErrConnectionFailed
}

// mongoDoc is the persisted shape. The definition travels as canonical JSON
// bytes so bson quirks cannot drift from the wire format.
type mongoDoc struct {
	ID         string    `bson:"_id"`
	Definition []byte    `bson:"definition"`
	Version    int64     `bson:"version"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (d *mongoDoc) stored() (*StoredFlag, error) {
	sf := &StoredFlag{
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if err := json.Unmarshal(d.Definition, &sf.Definition); err != nil {
		return nil, err
	}
	return sf, nil
}

// MongoStore persists flags in a single collection keyed by flag id.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore wraps an existing collection. The caller owns the client's
// lifecycle.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, now: time.Now}
}

func (s *MongoStore) Get(ctx context.Context, id flag.ID) (*StoredFlag, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", id, err)
	}
	sf, err := doc.stored()
	if err != nil {
		return nil, storageErr("get", id, err)
	}
	return sf, nil
}

func (s *MongoStore) GetMany(ctx context.Context, ids []flag.ID) (map[flag.ID]*StoredFlag, error) {
	if len(ids) == 0 {
		return map[flag.ID]*StoredFlag{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": raw}})
	if err != nil {
		return nil, storageErr("get_many", "", err)
	}
	defer cur.Close(ctx)

	found := make(map[flag.ID]*StoredFlag, len(ids))
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storageErr("get_many", "", err)
		}
		sf, err := doc.stored()
		if err != nil {
			return nil, storageErr("get_many", "", err)
		}
		found[sf.Definition.ID] = sf
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("get_many", "", err)
	}
	return found, nil
}

func (s *MongoStore) List(ctx context.Context, filter Filter) ([]*StoredFlag, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	defer cur.Close(ctx)

	var out []*StoredFlag
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storageErr("list", "", err)
		}
		sf, err := doc.stored()
		if err != nil {
			return nil, storageErr("list", "", err)
		}
		if filter.Matches(sf) {
			out = append(out, sf)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("list", "", err)
	}
	return out, nil
}

func (s *MongoStore) Create(ctx context.Context, def *flag.Definition) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, storageErr("create", def.ID, err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := mongoDoc{
		ID:         string(def.ID),
		Definition: raw,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, storageErr("create", def.ID, err)
	}
	return doc.stored()
}

func (s *MongoStore) Update(ctx context.Context, def *flag.Definition, expectedVersion int64) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, storageErr("update", def.ID, err)
	}
	now := s.now().UTC().Truncate(time.Millisecond)

	var doc mongoDoc
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": string(def.ID), "version": expectedVersion},
		bson.M{
			"$set": bson.M{"definition": raw, "updated_at": now},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.stored()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storageErr("update", def.ID, err)
	}

	// No match: tell a missing flag apart from a stale version.
	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": string(def.ID)})
	if err != nil {
		return nil, storageErr("update", def.ID, err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrVersionConflict
}

func (s *MongoStore) Delete(ctx context.Context, id flag.ID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return storageErr("delete", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetModifiedSince(ctx context.Context, since time.Time) ([]*StoredFlag, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"updated_at": bson.M{"$gt": since}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}),
	)
	if err != nil {
		return nil, storageErr("modified_since", "", err)
	}
	defer cur.Close(ctx)

	var out []*StoredFlag
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storageErr("modified_since", "", err)
		}
		sf, err := doc.stored()
		if err != nil {
			return nil, storageErr("modified_since", "", err)
		}
		out = append(out, sf)
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr("modified_since", "", err)
	}
	return out, nil
}

var _ Store = (*MongoStore)(nil)

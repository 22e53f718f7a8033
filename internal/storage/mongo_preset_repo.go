package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/lightstage/internal/scene"
)

// MongoConfig contains connection settings for the MongoDB preset library.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. lightstage
	Collection string // e.g. presets
}

// MongoPresetRepo implements PresetRepo on MongoDB backend.
type MongoPresetRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
	now        func() time.Time
}

type presetDoc struct {
	Name      string    `bson:"name"`
	Layers    int       `bson:"layers"`
	Preset    string    `bson:"preset"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoPresetRepo establishes connection and returns repository.
func NewMongoPresetRepo(cfg MongoConfig) (*MongoPresetRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "lightstage"
	}
	if cfg.Collection == "" {
		cfg.Collection = "presets"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	repo := &MongoPresetRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
		now:        time.Now,
	}

	// Ensure indexes
	if err := repo.ensureIndexes(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

func (m *MongoPresetRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("name_unique"),
	})
	return err
}

func (m *MongoPresetRepo) Save(ctx context.Context, name string, s *scene.Scene) error {
	rec, err := newRecord(name, s, m.now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	doc := presetDoc{Name: rec.Name, Layers: rec.Layers, Preset: string(rec.Preset), UpdatedAt: rec.UpdatedAt}
	_, err = m.collection.ReplaceOne(ctx, bson.M{"name": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save preset %s: %w", name, err)
	}
	return nil
}

func (m *MongoPresetRepo) Load(ctx context.Context, name string) (*scene.Scene, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc presetDoc
	err := m.collection.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record{Name: doc.Name, Preset: []byte(doc.Preset)}.scene()
}

func (m *MongoPresetRepo) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoPresetRepo) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetProjection(bson.M{"preset": 0})
	cur, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []presetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, Entry{Name: d.Name, Layers: d.Layers, UpdatedAt: d.UpdatedAt})
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoPresetRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

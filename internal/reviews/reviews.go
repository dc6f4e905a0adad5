package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Document is one review as stored: schema-less beyond the tool and
// date fields every review carries, plus the store-assigned _id.
type Document map[string]any

// ErrNotFound is returned when no review matches the given id.
var ErrNotFound = errors.New("review not found")

// Store is the review persistence surface the HTTP layer depends on.
type Store interface {
	// FindByTool returns every review whose tool field equals tool, in
	// the collection's natural return order, with each _id rendered to text.
	FindByTool(ctx context.Context, tool string) ([]Document, error)
	// Insert stores a new review document and returns the stored form,
	// with the assigned identifier rendered to text.
	Insert(ctx context.Context, doc Document) (Document, error)
	// Delete removes the review with the given hex id and returns it.
	// Returns ErrNotFound when nothing matches.
	Delete(ctx context.Context, id string) (Document, error)
	// ListTools returns the catalog of reviewed tools with review counts.
	ListTools(ctx context.Context) ([]ToolCount, error)
}

// ToolCount is one catalog row: a tool name and how many reviews it has.
type ToolCount struct {
	Tool    string
	Reviews int64
}

// collection abstracts the mongo collection for testability.
type collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
}

// MongoStore implements Store over a MongoDB collection.
type MongoStore struct {
	coll    collection
	catalog *catalogCache
	logger  *zap.Logger
}

// MongoStoreConfig configures the MongoStore.
type MongoStoreConfig struct {
	Collection      *mongo.Collection
	CatalogCacheTTL time.Duration
	Logger          *zap.Logger
}

// NewMongoStore creates a MongoStore backed by the given collection.
func NewMongoStore(cfg MongoStoreConfig) *MongoStore {
	ttl := cfg.CatalogCacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &MongoStore{
		coll:    cfg.Collection,
		catalog: newCatalogCache(ttl),
		logger:  cfg.Logger,
	}
}

// newMongoStoreWithCollection creates a store with a custom collection (for testing).
func newMongoStoreWithCollection(coll collection, cacheTTL time.Duration, logger *zap.Logger) *MongoStore {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	return &MongoStore{
		coll:    coll,
		catalog: newCatalogCache(cacheTTL),
		logger:  logger,
	}
}

// FindByTool queries with the equality filter {tool: tool}. No sort is
// applied — callers see the collection's natural return order.
func (s *MongoStore) FindByTool(ctx context.Context, tool string) ([]Document, error) {
	cur, err := s.coll.Find(ctx, bson.M{"tool": tool})
	if err != nil {
		return nil, fmt.Errorf("FindByTool: %w", err)
	}

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("FindByTool: %w", err)
	}

	for i := range docs {
		docs[i] = RenderID(docs[i])
	}
	return docs, nil
}

// Insert stores the document as-is; the driver assigns the ObjectID.
func (s *MongoStore) Insert(ctx context.Context, doc Document) (Document, error) {
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("Insert: %w", err)
	}

	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored["_id"] = res.InsertedID
	return RenderID(stored), nil
}

// Delete removes one review by its hex id and returns the deleted
// document so callers can attribute the deletion.
func (s *MongoStore) Delete(ctx context.Context, id string) (Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// ids issued by this store are ObjectID hex; anything else matches nothing
		return nil, ErrNotFound
	}

	var doc Document
	err = s.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Delete: %w", err)
	}
	return RenderID(doc), nil
}

// ListTools returns the tool catalog, serving cached results while fresh
// and refreshing stale entries in the background.
func (s *MongoStore) ListTools(ctx context.Context) ([]ToolCount, error) {
	cached := s.catalog.Get()
	if cached.Hit {
		if cached.NeedsRefresh {
			go s.refreshCatalog()
		}
		return cached.Tools, nil
	}

	tools, err := s.fetchCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	s.catalog.Set(tools)
	return tools, nil
}

func (s *MongoStore) fetchCatalog(ctx context.Context) ([]ToolCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.M{"_id": "$tool", "reviews": bson.M{"$sum": 1}}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Tool    string `bson:"_id"`
		Reviews int64  `bson:"reviews"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	tools := make([]ToolCount, len(rows))
	for i, r := range rows {
		tools[i] = ToolCount{Tool: r.Tool, Reviews: r.Reviews}
	}
	return tools, nil
}

func (s *MongoStore) refreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tools, err := s.fetchCatalog(ctx)
	if err != nil {
		s.logger.Warn("background tool catalog refresh failed", zap.Error(err))
		return
	}
	s.catalog.Set(tools)
}

// RenderID replaces the document's native _id with its textual form.
// ObjectIDs render as 24-char hex; other identifier types fall back to
// their natural string representation.
func RenderID(doc Document) Document {
	switch id := doc["_id"].(type) {
	case nil:
	case primitive.ObjectID:
		doc["_id"] = id.Hex()
	case string:
	default:
		doc["_id"] = fmt.Sprintf("%v", id)
	}
	return doc
}

package db

import (
	"context"
	"fmt"
	"time"

	"gazette-ingest/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client wraps the MongoDB client with a records collection and a processed
// URL ledger collection.
type Client struct {
	mongoClient *mongo.Client
	database    *mongo.Database
	records     *mongo.Collection
	processed   *mongo.Collection
}

// NewClient creates a new database client. The ledger collection is named
// after the records collection with a "_processed" suffix.
func NewClient(connectionString, databaseName, collectionName string) *Client {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Return client with nil - error will be caught during Connect()
		return &Client{}
	}

	database := mongoClient.Database(databaseName)

	return &Client{
		mongoClient: mongoClient,
		database:    database,
		records:     database.Collection(collectionName),
		processed:   database.Collection(collectionName + "_processed"),
	}
}

// Connect establishes connection to MongoDB
func (c *Client) Connect(ctx context.Context) error {
	if c.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return c.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

// SaveRecord upserts a validated record keyed by its source URL.
func (c *Client) SaveRecord(ctx context.Context, record *domain.ValidatedRecord) error {
	if c.records == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"source_url": record.SourceURL}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)

	if _, err := c.records.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("upsert record %s: %w", record.SourceURL, err)
	}
	return nil
}

// IsProcessed reports whether url is in the processed ledger.
func (c *Client) IsProcessed(ctx context.Context, url string) (bool, error) {
	if c.processed == nil {
		return false, fmt.Errorf("collection not initialized")
	}

	n, err := c.processed.CountDocuments(ctx, bson.M{"url": url}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed adds url to the processed ledger.
func (c *Client) MarkProcessed(ctx context.Context, url string) error {
	if c.processed == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"url": url}
	update := bson.M{"$set": bson.M{"url": url, "processed_at": time.Now().UTC()}}
	_, err := c.processed.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", url, err)
	}
	return nil
}

// GetProcessedURLs fetches every URL in the ledger and returns them as a set
func (c *Client) GetProcessedURLs(ctx context.Context) (map[string]bool, error) {
	if c.processed == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	// Query to get only the URL field from all documents
	cursor, err := c.processed.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"url": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to query URLs: %w", err)
	}
	defer cursor.Close(ctx)

	urlSet := make(map[string]bool)
	for cursor.Next(ctx) {
		var result struct {
			URL string `bson:"url"`
		}
		if err := cursor.Decode(&result); err != nil {
			continue // Skip invalid documents
		}
		if result.URL != "" {
			urlSet[result.URL] = true
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return urlSet, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	databaseName    = "downloader_bot"
	usersCollection = "users"

	connectTimeout = 10 * time.Second
)

// DB wraps the MongoDB client behind the bot's quota store.
type DB struct {
	client *mongo.Client
	users  *mongo.Collection
}

// Connect opens and pings the MongoDB deployment at uri.
func Connect(ctx context.Context, uri string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &DB{
		client: client,
		users:  client.Database(databaseName).Collection(usersCollection),
	}, nil
}

// Users returns the users collection.
func (db *DB) Users() *mongo.Collection {
	return db.users
}

// Close disconnects from MongoDB.
func (db *DB) Close(ctx context.Context) error {
	if err := db.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

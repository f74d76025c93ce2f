package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database

	Chats *mongo.Collection
}

func Connect(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Checking the connection
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)

	mongoDB := &MongoDB{
		Client:   client,
		Database: db,
		Chats:    db.Collection("chats"),
	}

	createIndexes(mongoDB)

	log.Info().Str("database", dbName).Msg("connected to MongoDB")
	return mongoDB, nil
}

func createIndexes(db *MongoDB) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chatIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	if _, err := db.Chats.Indexes().CreateMany(ctx, chatIndexes); err != nil {
		log.Error().Err(err).Msg("error creating chat indexes")
	}
}

func (db *MongoDB) Disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("error disconnecting from MongoDB")
		return
	}
	log.Info().Msg("disconnected from MongoDB")
}

// UpsertChat stores the current chat id for a user, creating the record on
// first contact. Reports whether the user was already known. Safe to call
// repeatedly with the same pair.
func (db *MongoDB) UpsertChat(ctx context.Context, userID, chatID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ref ChatRef
	err := db.Chats.FindOne(ctx, bson.M{"user_id": userID}).Decode(&ref)
	if err == nil {
		_, err = db.Chats.UpdateOne(
			ctx,
			bson.M{"user_id": userID},
			bson.M{"$set": bson.M{
				"chat_id":    chatID,
				"updated_at": time.Now(),
			}},
		)
		if err != nil {
			return true, fmt.Errorf("update chat for user %d: %w", userID, err)
		}
		return true, nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, fmt.Errorf("look up user %d: %w", userID, err)
	}

	now := time.Now()
	ref = ChatRef{
		UserID:    userID,
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := db.Chats.InsertOne(ctx, ref); err != nil {
		return false, fmt.Errorf("insert chat for user %d: %w", userID, err)
	}
	return false, nil
}

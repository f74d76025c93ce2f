package database

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRef maps a Telegram user to the chat the bot replies into.
// One record per user; chat_id is overwritten on every /start.
type ChatRef struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    int64              `bson:"user_id"`
	ChatID    int64              `bson:"chat_id"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Channel is a Telegram channel the user has to join before the link is revealed.
type Channel struct {
	ID   string // numeric chat id or @username
	Name string
	Link string
}

type Config struct {
	BotToken string
	Channels []Channel

	// Task provider (Flyer-style ad tasks).
	FlyerKey    string
	FlyerAPIURL string
	// WaitingCountsDone treats a "waiting" verification result as complete.
	// Observed production behavior; kept behind a flag for product review.
	WaitingCountsDone bool

	MongoURI    string
	MongoDBName string

	// Domain is the public base URL used to build the delivered link.
	Domain string
	Port   string

	// NotifyURL is the external click-notification collaborator. Optional;
	// when empty, click events are only logged.
	NotifyURL string

	// StaticDir holds the landing page files.
	StaticDir string

	SentryDSN string

	// GrandfatherKnownUsers grants access to previously recorded users
	// without re-running the task/subscription checks.
	GrandfatherKnownUsers bool
	Debug                 bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := &Config{
		BotToken: os.Getenv("TOKEN"),
		Channels: []Channel{
			{
				ID:   os.Getenv("CHANNEL_ID_1"),
				Name: getEnv("CHANNEL_NAME_1", "Channel 1"),
				Link: os.Getenv("CHANNEL_LINK_1"),
			},
			{
				ID:   os.Getenv("CHANNEL_ID_2"),
				Name: getEnv("CHANNEL_NAME_2", "Channel 2"),
				Link: os.Getenv("CHANNEL_LINK_2"),
			},
		},
		FlyerKey:              os.Getenv("FLYER_KEY"),
		FlyerAPIURL:           getEnv("FLYER_API_URL", "https://api.flyerservice.io"),
		WaitingCountsDone:     getBool("FLYER_WAITING_COUNTS_DONE", true),
		MongoURI:              os.Getenv("MONGO_URI"),
		MongoDBName:           getEnv("MONGO_DB_NAME", "megapack_bot"),
		Domain:                strings.TrimRight(os.Getenv("DOMAIN"), "/"),
		Port:                  getEnv("PORT", "3000"),
		NotifyURL:             os.Getenv("NOTIFY_URL"),
		StaticDir:             getEnv("STATIC_DIR", "public"),
		SentryDSN:             os.Getenv("SENTRY_DSN"),
		GrandfatherKnownUsers: getBool("GRANDFATHER_KNOWN_USERS", false),
		Debug:                 getBool("DEBUG", false),
	}

	if missing := cfg.missingVars(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) missingVars() []string {
	var missing []string

	required := []struct {
		name  string
		value string
	}{
		{"TOKEN", c.BotToken},
		{"CHANNEL_ID_1", c.Channels[0].ID},
		{"CHANNEL_LINK_1", c.Channels[0].Link},
		{"CHANNEL_ID_2", c.Channels[1].ID},
		{"CHANNEL_LINK_2", c.Channels[1].Link},
		{"FLYER_KEY", c.FlyerKey},
		{"MONGO_URI", c.MongoURI},
		{"DOMAIN", c.Domain},
	}

	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}

	return missing
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

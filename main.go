package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"megapack-bot/config"
	"megapack-bot/database"
	"megapack-bot/flyer"
	"megapack-bot/handlers"
	"megapack-bot/sentryutil"
	"megapack-bot/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	setupLogging(cfg)

	sentryutil.Init(cfg.SentryDSN, cfg.Debug)
	defer sentryutil.Flush()

	mongoDB, err := database.Connect(cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer mongoDB.Disconnect()

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	bot.Debug = cfg.Debug
	log.Info().Str("account", bot.Self.UserName).Msg("authorized")

	flyerClient := flyer.NewClient(cfg.FlyerKey, cfg.FlyerAPIURL, cfg.WaitingCountsDone)
	botHandler := handlers.NewBotHandler(bot, mongoDB, flyerClient, cfg)

	setupCommands(bot)

	webServer := web.NewServer(web.ServerConfig{
		Port:      cfg.Port,
		NotifyURL: cfg.NotifyURL,
		StaticDir: cfg.StaticDir,
		Debug:     cfg.Debug,
	})
	go func() {
		if err := webServer.Run(); err != nil {
			log.Fatal().Err(err).Msg("web server stopped")
		}
	}()

	go runPolling(bot, botHandler)

	waitForShutdown()
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupCommands(bot *tgbotapi.BotAPI) {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{
			Command:     "start",
			Description: "Get your megapack link",
		},
		tgbotapi.BotCommand{
			Command:     "status",
			Description: "Show your progress",
		},
		tgbotapi.BotCommand{
			Command:     "help",
			Description: "How the bot works",
		},
	)

	if _, err := bot.Request(commands); err != nil {
		log.Error().Err(err).Msg("failed to set commands")
	}
}

func runPolling(bot *tgbotapi.BotAPI, botHandler *handlers.BotHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	log.Info().Msg("bot started polling for updates")

	for update := range updates {
		go botHandler.HandleUpdate(update)
	}
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	<-sigChan

	log.Info().Msg("shutting down")

	// Give in-flight handlers a moment to finish.
	time.Sleep(2 * time.Second)

	log.Info().Msg("shutdown complete")
}

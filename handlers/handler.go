package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"megapack-bot/config"
	"megapack-bot/flyer"
	"megapack-bot/sentryutil"
)

// Callback actions wired to the inline "Continue" buttons.
const (
	callbackCheckFlyer    = "check_flyer"
	callbackCheckChannels = "check_channels"
)

// telegramAPI is the slice of *tgbotapi.BotAPI the handlers actually use.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ChatStore persists the user -> chat mapping. Implemented by database.MongoDB.
type ChatStore interface {
	UpsertChat(ctx context.Context, userID, chatID int64) (existed bool, err error)
}

// TaskProvider is the ad-task collaborator. Implemented by flyer.Client.
type TaskProvider interface {
	FetchTasks(ctx context.Context, userID int64, languageCode string) []flyer.Task
	AllComplete(ctx context.Context, tasks []flyer.Task) bool
	Summary(ctx context.Context, userID int64) flyer.Summary
}

type BotHandler struct {
	bot   telegramAPI
	store ChatStore
	tasks TaskProvider
	cfg   *config.Config
}

func NewBotHandler(bot telegramAPI, store ChatStore, tasks TaskProvider, cfg *config.Config) *BotHandler {
	return &BotHandler{
		bot:   bot,
		store: store,
		tasks: tasks,
		cfg:   cfg,
	}
}

// HandleUpdate dispatches one polled update. A failure for one user must
// never take the polling loop down, so panics stop here.
func (h *BotHandler) HandleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in update handler: %v", r)
			log.Error().Err(err).Msg("recovered")
			sentryutil.CaptureError(err, map[string]string{"component": "handlers"})
		}
	}()

	if update.Message != nil {
		h.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		h.handleCallback(update.CallbackQuery)
	}
}

func (h *BotHandler) handleMessage(message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}

	log.Debug().
		Int64("user_id", message.From.ID).
		Int64("chat_id", message.Chat.ID).
		Str("text", message.Text).
		Msg("message received")

	if message.IsCommand() {
		h.handleCommand(message)
		return
	}

	h.sendMessage(message.Chat.ID, "Send /start to get your link.")
}

func (h *BotHandler) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		h.handleStart(message)
	case "status":
		h.handleStatus(message)
	case "help":
		h.sendMessage(message.Chat.ID, helpText)
	default:
		h.sendMessage(message.Chat.ID, "Unknown command. Send /start.")
	}
}

func (h *BotHandler) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.From == nil || callback.Message == nil || callback.Message.Chat == nil {
		h.answerCallback(callback.ID, "")
		return
	}

	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	ctx := context.Background()

	log.Debug().Int64("user_id", userID).Str("data", callback.Data).Msg("callback received")

	switch callback.Data {
	case callbackCheckFlyer:
		h.answerCallback(callback.ID, "Checking tasks...")
		h.recheckTasks(ctx, userID, chatID, langOf(callback.From))
	case callbackCheckChannels:
		h.answerCallback(callback.ID, "Checking subscriptions...")
		h.recheckChannels(userID, chatID)
	default:
		h.answerCallback(callback.ID, "Unknown command")
	}
}

func (h *BotHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending message")
	}
}

func (h *BotHandler) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending message")
	}
}

func (h *BotHandler) answerCallback(callbackID string, text string) {
	callbackConfig := tgbotapi.CallbackConfig{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       false,
	}

	if _, err := h.bot.Request(callbackConfig); err != nil {
		log.Error().Err(err).Msg("error answering callback")
	}
}

func langOf(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	return user.LanguageCode
}

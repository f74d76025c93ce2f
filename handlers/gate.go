package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"megapack-bot/metrics"
)

const (
	msgTasksPrompt = "To get access to the link, complete these sponsor tasks, then press Continue:"
	msgTasksNudge  = "You haven't finished all the tasks yet. Complete them and press Continue again."

	msgTasksUnavailable = "Sponsor tasks are unavailable right now. Try again in a minute."

	msgChannelsPrompt = "To get access to the link, subscribe to the following channels:"
	msgChannelsNudge  = "You're not subscribed to all the channels yet:"

	msgGenericError = "😔 Something went wrong. Please try again later."

	helpText = "Send /start to get your megapack link.\n" +
		"You may be asked to join a couple of channels or complete sponsor tasks first.\n" +
		"/status shows your current progress."
)

// handleStart runs the access gate from scratch for a /start command.
func (h *BotHandler) handleStart(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	ctx := context.Background()

	// Best-effort side channel; the gate never blocks on persistence.
	existed, err := h.store.UpsertChat(ctx, userID, chatID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to save chat id")
	}

	if h.cfg.GrandfatherKnownUsers && err == nil && existed {
		h.grantAccess(userID, chatID)
		return
	}

	tasks := h.tasks.FetchTasks(ctx, userID, langOf(message.From))
	if len(tasks) > 0 {
		h.sendWithKeyboard(chatID, msgTasksPrompt, taskKeyboard(tasks))
		return
	}

	// No tasks on offer: gate on channel subscriptions instead. An empty
	// task list must never grant access on its own.
	h.evaluateChannels(userID, chatID, false)
}

// recheckTasks handles the Continue button under a task prompt.
func (h *BotHandler) recheckTasks(ctx context.Context, userID, chatID int64, languageCode string) {
	tasks := h.tasks.FetchTasks(ctx, userID, languageCode)
	if len(tasks) == 0 {
		h.sendMessage(chatID, msgTasksUnavailable)
		return
	}

	if h.tasks.AllComplete(ctx, tasks) {
		h.grantAccess(userID, chatID)
		return
	}

	h.sendWithKeyboard(chatID, msgTasksNudge, taskKeyboard(tasks))
}

// recheckChannels handles the Continue button under a subscription prompt.
func (h *BotHandler) recheckChannels(userID, chatID int64) {
	h.evaluateChannels(userID, chatID, true)
}

func (h *BotHandler) evaluateChannels(userID, chatID int64, nudge bool) {
	missing := h.missingChannels(userID)
	if len(missing) == 0 {
		h.grantAccess(userID, chatID)
		return
	}

	text := msgChannelsPrompt
	if nudge {
		text = msgChannelsNudge
	}
	h.sendWithKeyboard(chatID, text, channelKeyboard(missing))
}

// grantAccess reveals the link. This is the sole product of the whole bot.
func (h *BotHandler) grantAccess(userID, chatID int64) {
	link := h.accessLink(userID)
	text := fmt.Sprintf(
		"🔗 Here is your link:\n\nSend it to your friends to prank them.\n<a href=\"%s\">%s</a>",
		link, link,
	)

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending access link")
		return
	}

	metrics.AccessGrants.Inc()
	log.Info().Int64("user_id", userID).Msg("access granted")
}

func (h *BotHandler) accessLink(userID int64) string {
	return fmt.Sprintf("%s/megapack?userId=%d", h.cfg.Domain, userID)
}

// handleStatus reports progress through the legacy aggregate endpoint.
func (h *BotHandler) handleStatus(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	ctx := context.Background()

	summary := h.tasks.Summary(ctx, userID)
	switch summary.Status {
	case "completed":
		h.sendMessage(chatID, "✅ All sponsor tasks are complete. Send /start to get your link.")
	case "incomplete":
		h.sendMessage(chatID, fmt.Sprintf(
			"You have completed %d of %d sponsor tasks. Finish the rest and press Continue.",
			summary.Completed, summary.Total,
		))
	case "no_tasks":
		missing := h.missingChannels(userID)
		if len(missing) == 0 {
			h.sendMessage(chatID, "✅ You are all set. Send /start to get your link.")
			return
		}
		h.sendWithKeyboard(chatID, fmt.Sprintf(
			"You still need to subscribe to %d channel(s):", len(missing),
		), channelKeyboard(missing))
	default:
		h.sendMessage(chatID, msgGenericError)
	}
}

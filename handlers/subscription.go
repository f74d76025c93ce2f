package handlers

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"megapack-bot/config"
	"megapack-bot/metrics"
)

// A user counts as subscribed only with one of these membership statuses.
// "left", "kicked" and anything unknown do not pass.
var allowedMemberStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// missingChannels returns the configured channels the user has not joined,
// in configuration order. A failed membership lookup counts as not joined.
func (h *BotHandler) missingChannels(userID int64) []config.Channel {
	var missing []config.Channel
	for _, channel := range h.cfg.Channels {
		if !h.isSubscribed(userID, channel) {
			missing = append(missing, channel)
		}
	}
	return missing
}

func (h *BotHandler) isSubscribed(userID int64, channel config.Channel) bool {
	memberConfig := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			UserID: userID,
		},
	}
	if id, err := strconv.ParseInt(channel.ID, 10, 64); err == nil {
		memberConfig.ChatID = id
	} else {
		memberConfig.SuperGroupUsername = channel.ID
	}

	member, err := h.bot.GetChatMember(memberConfig)
	if err != nil {
		log.Warn().Err(err).
			Int64("user_id", userID).
			Str("channel", channel.ID).
			Msg("membership check failed")
		metrics.ChannelChecks.WithLabelValues("error").Inc()
		return false
	}

	if allowedMemberStatuses[member.Status] {
		metrics.ChannelChecks.WithLabelValues("subscribed").Inc()
		return true
	}
	metrics.ChannelChecks.WithLabelValues("not_subscribed").Inc()
	return false
}

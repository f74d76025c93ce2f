package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"megapack-bot/config"
	"megapack-bot/flyer"
)

type fakeBot struct {
	sent      []tgbotapi.Chattable
	requests  []tgbotapi.Chattable
	statuses  map[string]string
	memberErr map[string]error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	key := cfg.SuperGroupUsername
	if key == "" {
		key = strconv.FormatInt(cfg.ChatID, 10)
	}
	if err, ok := f.memberErr[key]; ok {
		return tgbotapi.ChatMember{}, err
	}
	status, ok := f.statuses[key]
	if !ok {
		return tgbotapi.ChatMember{}, errors.New("chat not found")
	}
	return tgbotapi.ChatMember{Status: status}, nil
}

func (f *fakeBot) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no messages were sent")
	}
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("last sent item is %T, want MessageConfig", f.sent[len(f.sent)-1])
	}
	return msg
}

func keyboardOf(t *testing.T, msg tgbotapi.MessageConfig) tgbotapi.InlineKeyboardMarkup {
	t.Helper()
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("reply markup is %T, want InlineKeyboardMarkup", msg.ReplyMarkup)
	}
	return keyboard
}

type fakeStore struct {
	records map[int64]int64
	calls   int
	err     error
}

func (s *fakeStore) UpsertChat(ctx context.Context, userID, chatID int64) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	if s.records == nil {
		s.records = make(map[int64]int64)
	}
	_, existed := s.records[userID]
	s.records[userID] = chatID
	return existed, nil
}

type fakeTasks struct {
	tasks      []flyer.Task
	complete   bool
	summary    flyer.Summary
	fetchCalls int
}

func (f *fakeTasks) FetchTasks(ctx context.Context, userID int64, languageCode string) []flyer.Task {
	f.fetchCalls++
	return f.tasks
}

func (f *fakeTasks) AllComplete(ctx context.Context, tasks []flyer.Task) bool {
	return f.complete
}

func (f *fakeTasks) Summary(ctx context.Context, userID int64) flyer.Summary {
	return f.summary
}

func testConfig() *config.Config {
	return &config.Config{
		Domain: "https://example.com",
		Channels: []config.Channel{
			{ID: "@chan1", Name: "First channel", Link: "https://t.me/chan1"},
			{ID: "@chan2", Name: "Second channel", Link: "https://t.me/chan2"},
		},
	}
}

func startUpdate(userID, chatID int64) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:     &tgbotapi.User{ID: userID, LanguageCode: "en"},
			Chat:     &tgbotapi.Chat{ID: chatID},
			Text:     "/start",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		},
	}
}

func callbackUpdate(userID, chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: userID, LanguageCode: "en"},
			Data:    data,
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		},
	}
}

func TestAccessLinkFormat(t *testing.T) {
	h := NewBotHandler(&fakeBot{}, &fakeStore{}, &fakeTasks{}, testConfig())

	got := h.accessLink(12345)
	want := "https://example.com/megapack?userId=12345"
	if got != want {
		t.Errorf("accessLink = %q, want %q", got, want)
	}
}

func TestStartWithPendingTasks(t *testing.T) {
	bot := &fakeBot{}
	tasks := &fakeTasks{
		tasks: []flyer.Task{
			{Signature: "s1", Link: "https://t.me/ad1", Title: "Ad 1"},
			{Signature: "s2", Link: "https://t.me/ad2", Title: "Ad 2"},
		},
	}
	h := NewBotHandler(bot, &fakeStore{}, tasks, testConfig())

	h.HandleUpdate(startUpdate(1, 100))

	msg := bot.lastMessage(t)
	if msg.Text != msgTasksPrompt {
		t.Errorf("text = %q, want task prompt", msg.Text)
	}

	keyboard := keyboardOf(t, msg)
	if len(keyboard.InlineKeyboard) != 3 {
		t.Fatalf("got %d keyboard rows, want 2 task buttons + continue", len(keyboard.InlineKeyboard))
	}
	if *keyboard.InlineKeyboard[0][0].URL != "https://t.me/ad1" {
		t.Errorf("first button url = %q", *keyboard.InlineKeyboard[0][0].URL)
	}
	if *keyboard.InlineKeyboard[2][0].CallbackData != callbackCheckFlyer {
		t.Errorf("continue callback = %q, want %q", *keyboard.InlineKeyboard[2][0].CallbackData, callbackCheckFlyer)
	}

	// Pressing Continue before completing anything keeps the user pending.
	h.HandleUpdate(callbackUpdate(1, 100, callbackCheckFlyer))

	msg = bot.lastMessage(t)
	if msg.Text != msgTasksNudge {
		t.Errorf("text = %q, want nudge", msg.Text)
	}
	if rows := len(keyboardOf(t, msg).InlineKeyboard); rows != 3 {
		t.Errorf("got %d keyboard rows after nudge, want 3", rows)
	}
}

func TestContinueGrantsWhenTasksComplete(t *testing.T) {
	bot := &fakeBot{}
	tasks := &fakeTasks{
		tasks:    []flyer.Task{{Signature: "s1", Link: "https://t.me/ad1"}},
		complete: true,
	}
	h := NewBotHandler(bot, &fakeStore{}, tasks, testConfig())

	h.HandleUpdate(callbackUpdate(12345, 100, callbackCheckFlyer))

	msg := bot.lastMessage(t)
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q, want HTML", msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "https://example.com/megapack?userId=12345") {
		t.Errorf("grant message is missing the link: %q", msg.Text)
	}
}

func TestContinueWhenTasksDisappeared(t *testing.T) {
	bot := &fakeBot{}
	h := NewBotHandler(bot, &fakeStore{}, &fakeTasks{}, testConfig())

	h.HandleUpdate(callbackUpdate(1, 100, callbackCheckFlyer))

	if msg := bot.lastMessage(t); msg.Text != msgTasksUnavailable {
		t.Errorf("text = %q, want tasks-unavailable notice", msg.Text)
	}
}

func TestStartNoTasksSubscribedGrants(t *testing.T) {
	bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "member"}}
	h := NewBotHandler(bot, &fakeStore{}, &fakeTasks{}, testConfig())

	h.HandleUpdate(startUpdate(12345, 100))

	msg := bot.lastMessage(t)
	if !strings.Contains(msg.Text, "https://example.com/megapack?userId=12345") {
		t.Errorf("expected immediate grant, got %q", msg.Text)
	}
}

func TestStartNoTasksMissingChannel(t *testing.T) {
	bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "left"}}
	h := NewBotHandler(bot, &fakeStore{}, &fakeTasks{}, testConfig())

	h.HandleUpdate(startUpdate(1, 100))

	msg := bot.lastMessage(t)
	if msg.Text != msgChannelsPrompt {
		t.Errorf("text = %q, want channel prompt", msg.Text)
	}

	keyboard := keyboardOf(t, msg)
	if len(keyboard.InlineKeyboard) != 2 {
		t.Fatalf("got %d keyboard rows, want 1 missing channel + continue", len(keyboard.InlineKeyboard))
	}
	if *keyboard.InlineKeyboard[0][0].URL != "https://t.me/chan2" {
		t.Errorf("subscribe button url = %q, want the missing channel's link", *keyboard.InlineKeyboard[0][0].URL)
	}
	if *keyboard.InlineKeyboard[1][0].CallbackData != callbackCheckChannels {
		t.Errorf("continue callback = %q, want %q", *keyboard.InlineKeyboard[1][0].CallbackData, callbackCheckChannels)
	}

	// After subscribing, Continue grants.
	bot.statuses["@chan2"] = "member"
	h.HandleUpdate(callbackUpdate(1, 100, callbackCheckChannels))

	if msg := bot.lastMessage(t); !strings.Contains(msg.Text, "https://example.com/megapack?userId=1") {
		t.Errorf("expected grant after subscribing, got %q", msg.Text)
	}
}

func TestProviderOutageFallsThroughToChannels(t *testing.T) {
	// A provider failure surfaces as zero tasks; the gate must route to the
	// channel path, not to a hard error.
	bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "member"}}
	h := NewBotHandler(bot, &fakeStore{}, &fakeTasks{tasks: nil}, testConfig())

	h.HandleUpdate(startUpdate(7, 100))

	if msg := bot.lastMessage(t); !strings.Contains(msg.Text, "megapack?userId=7") {
		t.Errorf("expected channel-path grant, got %q", msg.Text)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "member"}}
	store := &fakeStore{}
	h := NewBotHandler(bot, store, &fakeTasks{}, testConfig())

	h.HandleUpdate(startUpdate(1, 100))
	h.HandleUpdate(startUpdate(1, 100))

	if store.calls != 2 {
		t.Errorf("upsert calls = %d, want 2", store.calls)
	}
	if len(store.records) != 1 {
		t.Errorf("got %d records, want exactly 1", len(store.records))
	}
	if store.records[1] != 100 {
		t.Errorf("chat id = %d, want 100", store.records[1])
	}
}

func TestStoreFailureDoesNotBlockGate(t *testing.T) {
	bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "member"}}
	store := &fakeStore{err: errors.New("mongo down")}
	h := NewBotHandler(bot, store, &fakeTasks{}, testConfig())

	h.HandleUpdate(startUpdate(5, 100))

	if msg := bot.lastMessage(t); !strings.Contains(msg.Text, "megapack?userId=5") {
		t.Errorf("persistence failure must not block the grant, got %q", msg.Text)
	}
}

func TestGrandfatheredUserSkipsChecks(t *testing.T) {
	bot := &fakeBot{}
	store := &fakeStore{records: map[int64]int64{9: 100}}
	tasks := &fakeTasks{
		tasks: []flyer.Task{{Signature: "s1", Link: "https://t.me/ad1"}},
	}
	cfg := testConfig()
	cfg.GrandfatherKnownUsers = true
	h := NewBotHandler(bot, store, tasks, cfg)

	h.HandleUpdate(startUpdate(9, 100))

	if msg := bot.lastMessage(t); !strings.Contains(msg.Text, "megapack?userId=9") {
		t.Errorf("known user should be grandfathered in, got %q", msg.Text)
	}
	if tasks.fetchCalls != 0 {
		t.Errorf("tasks were fetched %d times for a grandfathered user, want 0", tasks.fetchCalls)
	}
}

func TestNewUserNotGrandfathered(t *testing.T) {
	bot := &fakeBot{}
	tasks := &fakeTasks{
		tasks: []flyer.Task{{Signature: "s1", Link: "https://t.me/ad1"}},
	}
	cfg := testConfig()
	cfg.GrandfatherKnownUsers = true
	h := NewBotHandler(bot, &fakeStore{}, tasks, cfg)

	h.HandleUpdate(startUpdate(9, 100))

	if msg := bot.lastMessage(t); msg.Text != msgTasksPrompt {
		t.Errorf("first-time user must still pass the gate, got %q", msg.Text)
	}
}

func TestUnknownCallback(t *testing.T) {
	bot := &fakeBot{}
	h := NewBotHandler(bot, &fakeStore{}, &fakeTasks{}, testConfig())

	h.HandleUpdate(callbackUpdate(1, 100, "bogus"))

	if len(bot.requests) == 0 {
		t.Fatal("callback was not answered")
	}
	answer, ok := bot.requests[len(bot.requests)-1].(tgbotapi.CallbackConfig)
	if !ok {
		t.Fatalf("last request is %T, want CallbackConfig", bot.requests[len(bot.requests)-1])
	}
	if answer.Text != "Unknown command" {
		t.Errorf("answer = %q, want Unknown command", answer.Text)
	}
}

func TestStatusCommand(t *testing.T) {
	statusUpdate := func(userID, chatID int64) tgbotapi.Update {
		return tgbotapi.Update{
			Message: &tgbotapi.Message{
				From:     &tgbotapi.User{ID: userID},
				Chat:     &tgbotapi.Chat{ID: chatID},
				Text:     "/status",
				Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
			},
		}
	}

	t.Run("incomplete", func(t *testing.T) {
		bot := &fakeBot{}
		tasks := &fakeTasks{summary: flyer.Summary{Status: "incomplete", Completed: 1, Total: 3}}
		h := NewBotHandler(bot, &fakeStore{}, tasks, testConfig())

		h.HandleUpdate(statusUpdate(1, 100))

		if msg := bot.lastMessage(t); !strings.Contains(msg.Text, "1 of 3") {
			t.Errorf("status text = %q, want progress counts", msg.Text)
		}
	})

	t.Run("no tasks and missing channel", func(t *testing.T) {
		bot := &fakeBot{statuses: map[string]string{"@chan1": "member", "@chan2": "kicked"}}
		tasks := &fakeTasks{summary: flyer.Summary{Status: "no_tasks"}}
		h := NewBotHandler(bot, &fakeStore{}, tasks, testConfig())

		h.HandleUpdate(statusUpdate(1, 100))

		msg := bot.lastMessage(t)
		if !strings.Contains(msg.Text, "1 channel") {
			t.Errorf("status text = %q, want missing channel count", msg.Text)
		}
		if rows := len(keyboardOf(t, msg).InlineKeyboard); rows != 2 {
			t.Errorf("got %d keyboard rows, want 2", rows)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		bot := &fakeBot{}
		tasks := &fakeTasks{summary: flyer.Summary{Status: "error"}}
		h := NewBotHandler(bot, &fakeStore{}, tasks, testConfig())

		h.HandleUpdate(statusUpdate(1, 100))

		if msg := bot.lastMessage(t); msg.Text != msgGenericError {
			t.Errorf("status text = %q, want generic error", msg.Text)
		}
	})
}

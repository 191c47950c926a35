package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sink implements ports.ChatSink on the Telegram Bot API. An empty allow
// list means every user may receive direct notifications.
type Sink struct {
	bot         *tgbotapi.BotAPI
	groupChatID int64
	allowed     map[int64]bool
}

func NewSink(token string, groupChatID int64, allowedUserIDs []int64) (*Sink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)

	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &Sink{bot: bot, groupChatID: groupChatID, allowed: allowed}, nil
}

// Bot exposes the underlying client for the command surface.
func (s *Sink) Bot() *tgbotapi.BotAPI { return s.bot }

// PostToChannel posts to the shared group chat and returns the message id
// used for later edits.
func (s *Sink) PostToChannel(_ context.Context, text string) (*int, error) {
	msg := tgbotapi.NewMessage(s.groupChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	sent, err := s.bot.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("post to channel: %w", err)
	}
	return &sent.MessageID, nil
}

func (s *Sink) EditChannelMessage(_ context.Context, notificationID int, text string) error {
	edit := tgbotapi.NewEditMessageText(s.groupChatID, notificationID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := s.bot.Send(edit); err != nil {
		return fmt.Errorf("edit message %d: %w", notificationID, err)
	}
	return nil
}

func (s *Sink) SendToUser(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send to user %d: %w", userID, err)
	}
	return nil
}

func (s *Sink) IsUserAllowed(userID int64) bool {
	if len(s.allowed) == 0 {
		return true
	}
	return s.allowed[userID]
}

package bot

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/config"
)

// Sender is the part of *tgbotapi.BotAPI used to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot answers Telegram commands and delivers notifications to the chat that
// owns the alert. The chat id is the alert owner.
type Bot struct {
	api     *tgbotapi.BotAPI
	sender  Sender
	handler *Handler
	timeout int
	logger  zerolog.Logger
}

var _ alerting.Notifier = (*Bot)(nil)

// New connects to the Bot API.
func New(cfg config.BotConfig, handler *Handler, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	api.Debug = cfg.Debug

	b := newBot(api, handler, logger)
	b.api = api
	b.timeout = int(cfg.UpdatesTimeout / time.Second)
	b.logger.Info().Str("username", api.Self.UserName).Msg("telegram bot authorised")
	return b, nil
}

func newBot(sender Sender, handler *Handler, logger zerolog.Logger) *Bot {
	return &Bot{
		sender:  sender,
		handler: handler,
		timeout: 60,
		logger:  logger.With().Str("component", "bot").Logger(),
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot api not configured")
	}
	u := tgbotapi.NewUpdate(0)
	if b.timeout > 0 {
		u.Timeout = b.timeout
	}
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers one update. Non-command messages are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("command", msg.Command()).Msg("command handler panicked")
		}
	}()

	owner := strconv.FormatInt(msg.Chat.ID, 10)
	b.logger.Debug().Str("owner", owner).Str("command", msg.Command()).Msg("command received")

	text := b.handler.Handle(ctx, owner, msg.Command(), msg.CommandArguments())
	if text == "" {
		return
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	reply.DisableWebPagePreview = true
	if _, err := b.sender.Send(reply); err != nil {
		b.logger.Error().Err(err).Str("owner", owner).Msg("could not send reply")
	}
}

// Notify sends the notification to the owner's chat. Owners that are not
// chat ids are skipped.
func (b *Bot) Notify(_ context.Context, note alerting.Notification) error {
	chatID, err := strconv.ParseInt(note.OwnerID, 10, 64)
	if err != nil {
		b.logger.Debug().Str("owner", note.OwnerID).Msg("owner is not a chat id, skipping")
		return nil
	}
	if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, alerting.RenderText(note))); err != nil {
		return errors.Wrapf(err, "send notification to chat %d", chatID)
	}
	return nil
}

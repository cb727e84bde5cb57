package repo

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

// TelegramService is a secondary transport that runs the same survey flows
// over a Telegram bot, mainly for operators and local testing. Recipients are
// chat ids rendered as strings; choice prompts become inline keyboards and
// button replies come back as callback queries.
type TelegramService struct {
	b      *bot.Bot
	handle func(ctx context.Context, m *model.Message)
}

func NewTelegramService(token string) (*TelegramService, error) {
	t := &TelegramService{}

	b, err := bot.New(token, bot.WithDefaultHandler(t.onUpdate))
	if err != nil {
		return nil, err
	}
	t.b = b
	return t, nil
}

// OnMessage sets the inbound handler. Must be called before Start.
func (t *TelegramService) OnMessage(handle func(ctx context.Context, m *model.Message)) {
	t.handle = handle
}

// Start begins long polling and blocks until ctx is cancelled.
func (t *TelegramService) Start(ctx context.Context) {
	t.b.Start(ctx)
}

func (t *TelegramService) onUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if t.handle == nil {
		return
	}

	if update.Message != nil && update.Message.Text != "" {
		t.handle(ctx, &model.Message{
			ID:   strconv.Itoa(update.Message.ID),
			From: strconv.FormatInt(update.Message.Chat.ID, 10),
			Type: model.TypeText,
			Text: &model.Text{Body: update.Message.Text},
		})
		return
	}

	if cb := update.CallbackQuery; cb != nil {
		msg := cb.Message.Message
		if msg == nil {
			return
		}
		// Clear the client-side spinner before handling.
		_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID})
		if err != nil {
			log.Warn().Err(err).Msg("error answering callback query")
		}

		t.handle(ctx, &model.Message{
			ID:   strconv.Itoa(msg.ID),
			From: strconv.FormatInt(msg.Chat.ID, 10),
			Type: model.TypeInteractive,
			Interactive: &model.Interactive{
				ButtonReply: &model.ButtonReply{ID: cb.Data},
			},
		})
	}
}

// SendText implements the Messenger contract.
func (t *TelegramService) SendText(ctx context.Context, to, body string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: body})
	return err
}

// SendChoicePrompt renders the options as an inline keyboard, one per row.
// The option id travels in the callback data.
func (t *TelegramService) SendChoicePrompt(ctx context.Context, to, title string, buttons []model.Button) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return err
	}

	rows := make([][]models.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: btn.Title, CallbackData: btn.ID},
		})
	}

	_, err = t.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        title,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	return err
}

// MarkRead is a no-op: Telegram has no per-message read receipt.
func (t *TelegramService) MarkRead(ctx context.Context, messageID string) error {
	return nil
}

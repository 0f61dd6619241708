package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client is the platform surface the synchronization engine reconciles
// against. Every call returns errors already classified into ErrorKind.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error)
	EditMessageText(ctx context.Context, ref MessageRef, text string, keyboard [][]Button) error
	EditMessageCaption(ctx context.Context, ref MessageRef, caption string) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendPhoto(ctx context.Context, chatID int64, media Payload, caption string, opts SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, chatID int64, media Payload, caption string, opts SendOptions) (MessageRef, error)
	SendMediaGroup(ctx context.Context, chatID int64, items []AlbumItem, opts SendOptions) ([]MessageRef, error)
}

// Bot implements Client over the Bot API HTTP transport.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewBot creates a Bot client from a bot token.
func NewBot(token string, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Bot{
		api:    api,
		logger: log.With(slog.String("adapter", "telegram")),
	}, nil
}

// Username returns the bot account's username, used for deep links.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

func requestFile(p Payload) tgbotapi.RequestFileData {
	if p.IsLocal() {
		return tgbotapi.FilePath(p.Path)
	}
	return tgbotapi.FileURL(p.URL)
}

// effectiveReplyTo routes a send into a forum topic. The Bot API places a
// reply to a topic's root message inside that topic, so an explicit reply
// target wins and the topic root is the fallback thread anchor.
func effectiveReplyTo(opts SendOptions) int {
	if opts.ReplyTo > 0 {
		return opts.ReplyTo
	}
	return opts.TopicID
}

func inlineKeyboard(rows [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.InlineKeyboardMarkup{}
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return &markup
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, Classify(err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = !opts.WebPreview
	msg.DisableNotification = opts.DisableNotification
	if replyTo := effectiveReplyTo(opts); replyTo > 0 {
		msg.ReplyToMessageID = replyTo
	}
	if markup := inlineKeyboard(opts.Keyboard); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return MessageRef{}, Classify(err)
	}
	return refOf(sent, chatID), nil
}

func (b *Bot) EditMessageText(ctx context.Context, ref MessageRef, text string, keyboard [][]Button) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = inlineKeyboard(keyboard)
	_, err := b.api.Send(edit)
	return Classify(err)
}

func (b *Bot) EditMessageCaption(ctx context.Context, ref MessageRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	edit := tgbotapi.NewEditMessageCaption(ref.ChatID, ref.MessageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(edit)
	return Classify(err)
}

func (b *Bot) DeleteMessage(ctx context.Context, ref MessageRef) error {
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return Classify(err)
}

func (b *Bot) SendPhoto(ctx context.Context, chatID int64, media Payload, caption string, opts SendOptions) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, Classify(err)
	}
	photo := tgbotapi.NewPhoto(chatID, requestFile(media))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.DisableNotification = opts.DisableNotification
	if replyTo := effectiveReplyTo(opts); replyTo > 0 {
		photo.ReplyToMessageID = replyTo
	}
	sent, err := b.api.Send(photo)
	if err != nil {
		return MessageRef{}, Classify(err)
	}
	return refOf(sent, chatID), nil
}

func (b *Bot) SendDocument(ctx context.Context, chatID int64, media Payload, caption string, opts SendOptions) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, Classify(err)
	}
	doc := tgbotapi.NewDocument(chatID, requestFile(media))
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	doc.DisableNotification = opts.DisableNotification
	if replyTo := effectiveReplyTo(opts); replyTo > 0 {
		doc.ReplyToMessageID = replyTo
	}
	sent, err := b.api.Send(doc)
	if err != nil {
		return MessageRef{}, Classify(err)
	}
	return refOf(sent, chatID), nil
}

func (b *Bot) SendMediaGroup(ctx context.Context, chatID int64, items []AlbumItem, opts SendOptions) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > MaxAlbumSize {
		items = items[:MaxAlbumSize]
	}
	media := make([]any, 0, len(items))
	for _, item := range items {
		photo := tgbotapi.NewInputMediaPhoto(requestFile(item.Media))
		photo.Caption = item.Caption
		photo.ParseMode = tgbotapi.ModeHTML
		media = append(media, photo)
	}
	group := tgbotapi.NewMediaGroup(chatID, media)
	group.DisableNotification = opts.DisableNotification
	if replyTo := effectiveReplyTo(opts); replyTo > 0 {
		group.ReplyToMessageID = replyTo
	}
	sent, err := b.api.SendMediaGroup(group)
	if err != nil {
		return nil, Classify(err)
	}
	refs := make([]MessageRef, 0, len(sent))
	for _, msg := range sent {
		refs = append(refs, refOf(msg, chatID))
	}
	return refs, nil
}

func refOf(msg tgbotapi.Message, fallbackChatID int64) MessageRef {
	chatID := fallbackChatID
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}
	return MessageRef{ChatID: chatID, MessageID: msg.MessageID}
}

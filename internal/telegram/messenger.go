// Package telegram wraps the Bot API for outbound delivery and media
// retrieval.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path"
	"strconv"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const maxMessageLength = 4096

// ErrTooLarge is returned by Download when the file reported by Telegram
// exceeds the configured size ceiling.
var ErrTooLarge = errors.New("file exceeds size limit")

// Messenger sends replies and reactions and downloads media blobs.
type Messenger struct {
	bot         *tgbotapi.BotAPI
	files       *resty.Client
	maxFileSize int64
}

// New creates a Messenger. The token is verified against the Bot API
// (getMe) at construction time.
func New(token string, maxFileSize int64) (*Messenger, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Messenger{
		bot:         bot,
		files:       resty.New(),
		maxFileSize: maxFileSize,
	}, nil
}

// Blob is a downloaded media attachment.
type Blob struct {
	Data     []byte
	MIME     string
	FileName string
}

// Reply sends text as a reply to the given message, splitting at the 4096
// character limit. Markdown formatting is attempted first and retried as
// plain text when Telegram rejects it.
func (m *Messenger) Reply(ctx context.Context, chatID int64, replyTo int, text, parseMode string) error {
	if parseMode == "" {
		parseMode = tgbotapi.ModeMarkdown
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		if err := m.send(chatID, replyTo, part, parseMode); err != nil {
			return err
		}
	}
	return nil
}

// ReplyItalic sends text italicized. Escaping and the italic markers are
// applied per part, after splitting, so every part of a long message is
// well-formed MarkdownV2 on its own.
func (m *Messenger) ReplyItalic(ctx context.Context, chatID int64, replyTo int, text string) error {
	escaped := tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
	for _, part := range splitMessage(escaped, maxMessageLength-2) {
		if err := m.send(chatID, replyTo, "_"+part+"_", tgbotapi.ModeMarkdownV2); err != nil {
			return err
		}
	}
	return nil
}

func (m *Messenger) send(chatID int64, replyTo int, text, parseMode string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = parseMode
	if _, err := m.bot.Send(msg); err != nil {
		msg.ParseMode = ""
		if _, err := m.bot.Send(msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// React attaches an emoji reaction to the given message. The Bot API
// library predates reactions, so this goes through a raw API call.
func (m *Messenger) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	reaction, err := json.Marshal([]map[string]string{{"type": "emoji", "emoji": emoji}})
	if err != nil {
		return fmt.Errorf("marshal reaction: %w", err)
	}
	params := tgbotapi.Params{
		"chat_id":    strconv.FormatInt(chatID, 10),
		"message_id": strconv.Itoa(messageID),
		"reaction":   string(reaction),
	}
	if _, err := m.bot.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in the chat. Best effort.
func (m *Messenger) Typing(ctx context.Context, chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := m.bot.Request(action); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("chat action failed")
	}
}

// Download fetches the media behind a file ID into memory, enforcing the
// size ceiling on the size Telegram reports before transfer.
func (m *Messenger) Download(ctx context.Context, fileID, declaredMIME string) (*Blob, error) {
	file, err := m.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if int64(file.FileSize) > m.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, file.FileSize)
	}

	resp, err := m.files.R().SetContext(ctx).Get(file.Link(m.bot.Token))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode())
	}

	mimeType := declaredMIME
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(file.FilePath))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	name := path.Base(file.FilePath)
	if name == "." || name == "/" {
		name = "audio.bin"
	}

	return &Blob{Data: resp.Body(), MIME: mimeType, FileName: name}, nil
}

// SetCommands publishes the bot command list shown in the Telegram UI.
func (m *Messenger) SetCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "help", Description: "display this text"},
		tgbotapi.BotCommand{Command: "start", Description: "welcome message"},
		tgbotapi.BotCommand{Command: "transcribe", Description: "transcribe the replied audio"},
		tgbotapi.BotCommand{Command: "translate", Description: "transcribe & translate the replied audio in English"},
		tgbotapi.BotCommand{Command: "summarize", Description: "summarize the replied audio message"},
		tgbotapi.BotCommand{Command: "caveman", Description: "summarize the replied audio message like a caveman"},
		tgbotapi.BotCommand{Command: "privacy", Description: "show privacy policy"},
	)
	if _, err := m.bot.Request(cmds); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// SetWebhook registers url as the webhook endpoint with the shared secret
// token Telegram will echo back on every delivery.
func (m *Messenger) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{
		"url":          url,
		"secret_token": secret,
	}
	if _, err := m.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook unregisters the webhook.
func (m *Messenger) DeleteWebhook() error {
	if _, err := m.bot.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// splitMessage cuts text into parts of at most limit bytes. The cut never
// lands inside a UTF-8 rune, and never right after a backslash: in escaped
// MarkdownV2 text a trailing backslash would escape the character the next
// part opens with.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		end := limit
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		for end > 0 && text[end-1] == '\\' {
			end--
		}
		if end == 0 {
			end = limit
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return append(parts, text)
}

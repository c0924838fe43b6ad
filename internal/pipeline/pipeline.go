// Package pipeline composes gatekeeping, command resolution, caching,
// failover transcription and delivery into the handling of one webhook
// event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/user/echoscribe/internal/cache"
	"github.com/user/echoscribe/internal/command"
	"github.com/user/echoscribe/internal/telegram"
	"github.com/user/echoscribe/pkg/stt"
)

// rateLimitReaction is the lightweight acknowledgment used when every
// credential is rate limited, instead of another noisy failure reply.
const rateLimitReaction = "🙏"

const startText = "Welcome! Send a voice message or video note to transcribe it. " +
	"You can also use /help to see all available commands."

const helpText = `/help - display this text
/start - welcome message
/transcribe - transcribe the replied audio
/translate - transcribe & translate the replied audio in English
/summarize - summarize the replied audio message
/caveman - summarize the replied audio message like a caveman
/privacy - show privacy policy`

const privacyText = `Privacy Policy:
- The bot caches: media content hash -> transcription/translation
- Nothing else is stored, not even in logs
- Cache entries expire after 7 days
- No guarantees about model accuracy or reliability
- Transcription/translation runs on Whisper v3 (GroqCloud)`

// Messenger delivers user-visible feedback and retrieves media.
type Messenger interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text, parseMode string) error
	ReplyItalic(ctx context.Context, chatID int64, replyTo int, text string) error
	React(ctx context.Context, chatID int64, messageID int, emoji string) error
	Typing(ctx context.Context, chatID int64)
	Download(ctx context.Context, fileID, declaredMIME string) (*telegram.Blob, error)
}

// Cache is the keyed text store with retention-on-read semantics plus the
// webhook retry dedup marker.
type Cache interface {
	Get(ctx context.Context, fingerprint, kind string) (string, bool)
	Put(ctx context.Context, fingerprint, kind, text string) error
	MarkProcessed(ctx context.Context, updateID int) bool
}

// Pipeline handles one webhook event per invocation. It keeps no mutable
// state across invocations; the credential pool's rate-limited marks are
// created fresh for each event.
type Pipeline struct {
	messenger   Messenger
	cache       Cache
	provider    stt.Provider
	keys        []string
	maxDuration time.Duration
	maxFileSize int64
}

// New wires a Pipeline. keys is the ordered credential list; order is
// failover precedence.
func New(messenger Messenger, store Cache, provider stt.Provider, keys []string, maxDuration time.Duration, maxFileSize int64) *Pipeline {
	return &Pipeline{
		messenger:   messenger,
		cache:       store,
		provider:    provider,
		keys:        keys,
		maxDuration: maxDuration,
		maxFileSize: maxFileSize,
	}
}

// Handle runs one admitted webhook update to completion. It never returns
// an error: every internal outcome is contained here so the webhook channel
// can always answer with a success status.
func (p *Pipeline) Handle(ctx context.Context, update *tgbotapi.Update) {
	log := zerolog.Ctx(ctx)

	msg := update.Message
	if msg == nil {
		log.Debug().Msg("non-message update, skipping")
		return
	}

	if !p.cache.MarkProcessed(ctx, update.UpdateID) {
		log.Info().Int("update_id", update.UpdateID).Msg("duplicate delivery, skipping")
		return
	}

	intent, media := command.Resolve(msg)

	switch intent {
	case command.IntentNone:
		return
	case command.IntentStart:
		p.reply(ctx, msg, startText, "")
		return
	case command.IntentHelp:
		p.reply(ctx, msg, helpText, "")
		return
	case command.IntentPrivacy:
		p.reply(ctx, msg, privacyText, "")
		return
	}

	p.transcribe(ctx, msg, intent, media)
}

func (p *Pipeline) transcribe(ctx context.Context, msg *tgbotapi.Message, intent command.Intent, media *command.MediaRef) {
	log := zerolog.Ctx(ctx)
	kind := intent.Kind()

	if media == nil {
		p.reply(ctx, msg, intent.Usage(), "")
		return
	}

	if p.maxDuration > 0 && media.Duration > p.maxDuration {
		log.Warn().Dur("duration", media.Duration).Msg("media exceeds duration ceiling")
		p.reply(ctx, msg, fmt.Sprintf("Duration is above %d minutes", int(p.maxDuration.Minutes())), "")
		return
	}
	if p.maxFileSize > 0 && media.Size > p.maxFileSize {
		log.Warn().Int64("size", media.Size).Msg("media exceeds size ceiling")
		p.reply(ctx, msg, p.tooLargeNotice(media.Size), "")
		return
	}

	blob, err := p.messenger.Download(ctx, media.FileID, media.MIME)
	if err != nil {
		log.Error().Err(err).Str("file_id", media.FileID).Msg("media download failed")
		if errors.Is(err, telegram.ErrTooLarge) {
			p.reply(ctx, msg, p.tooLargeNotice(0), "")
		} else {
			p.reply(ctx, msg, "Error: failed to retrieve the media file", "")
		}
		return
	}

	fingerprint := cache.Fingerprint(blob.Data)

	if text, ok := p.cache.Get(ctx, fingerprint, kind.String()); ok {
		log.Info().Str("kind", kind.String()).Msg("cache hit")
		p.deliver(ctx, msg, kind, text)
		return
	}

	p.messenger.Typing(ctx, msg.Chat.ID)

	pool := stt.NewPool(p.keys)
	started := time.Now()
	result := pool.Run(ctx, p.provider, &stt.Request{
		Audio:    blob.Data,
		MIME:     blob.MIME,
		FileName: blob.FileName,
		Kind:     kind,
	})

	switch {
	case result.OK:
		log.Info().Str("kind", kind.String()).
			Dur("elapsed", time.Since(started)).Msg("transcription complete")
		p.deliver(ctx, msg, kind, result.Text)
		if err := p.cache.Put(ctx, fingerprint, kind.String(), result.Text); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	case result.RateLimited:
		log.Warn().Msg("all credentials rate limited")
		if err := p.messenger.React(ctx, msg.Chat.ID, msg.MessageID, rateLimitReaction); err != nil {
			log.Warn().Err(err).Msg("reaction delivery failed")
		}
	default:
		log.Error().Err(result.Err).Msg("all credentials exhausted")
		p.reply(ctx, msg, "Error: transcription failed, please try again later", "")
	}
}

// deliver sends the produced text. Summaries go out italicized; transcripts
// and translations are sent as-is. Escaping and styling for summaries live
// in the messenger, which applies them after message splitting.
func (p *Pipeline) deliver(ctx context.Context, msg *tgbotapi.Message, kind stt.Kind, text string) {
	if kind == stt.KindSummarize || kind == stt.KindCaveman {
		if err := p.messenger.ReplyItalic(ctx, msg.Chat.ID, msg.MessageID, text); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("reply delivery failed")
		}
		return
	}
	p.reply(ctx, msg, text, "")
}

func (p *Pipeline) reply(ctx context.Context, msg *tgbotapi.Message, text, parseMode string) {
	if err := p.messenger.Reply(ctx, msg.Chat.ID, msg.MessageID, text, parseMode); err != nil {
		// Not retried: the interesting work already happened, and a second
		// send risks duplicate confusion.
		zerolog.Ctx(ctx).Error().Err(err).Msg("reply delivery failed")
	}
}

func (p *Pipeline) tooLargeNotice(size int64) string {
	limitMB := p.maxFileSize / 1024 / 1024
	if size > 0 {
		return fmt.Sprintf("File can't be larger than %dMB (is %dMB)", limitMB, size/1024/1024)
	}
	return fmt.Sprintf("File can't be larger than %dMB", limitMB)
}

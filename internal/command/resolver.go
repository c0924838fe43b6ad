// Package command resolves inbound Telegram messages into an intent and the
// media attachment the intent targets.
package command

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/echoscribe/pkg/stt"
)

// Intent is the operation the user is requesting.
type Intent int

const (
	IntentNone Intent = iota
	IntentStart
	IntentHelp
	IntentPrivacy
	IntentTranscribe
	IntentTranslate
	IntentSummarize
	IntentCaveman
)

// Transcription reports whether the intent needs a media attachment and an
// upstream speech call.
func (i Intent) Transcription() bool {
	switch i {
	case IntentTranscribe, IntentTranslate, IntentSummarize, IntentCaveman:
		return true
	}
	return false
}

// Kind maps a transcription-family intent onto the upstream operation.
func (i Intent) Kind() stt.Kind {
	switch i {
	case IntentTranslate:
		return stt.KindTranslate
	case IntentSummarize:
		return stt.KindSummarize
	case IntentCaveman:
		return stt.KindCaveman
	default:
		return stt.KindTranscribe
	}
}

// Usage returns the guidance text sent when a transcription command arrives
// without a resolvable attachment.
func (i Intent) Usage() string {
	switch i {
	case IntentTranslate:
		return "Reply to an audio message or video note to translate it."
	case IntentSummarize:
		return "Reply to an audio message or video note to summarize it."
	case IntentCaveman:
		return "Reply to an audio message or video note to summarize it like a caveman."
	default:
		return "Reply to an audio message or video note to transcribe it."
	}
}

// MediaRef points at one resolvable media attachment.
type MediaRef struct {
	FileID   string
	Duration time.Duration
	Size     int64
	MIME     string
	Source   string
}

var commands = map[string]Intent{
	"start":      IntentStart,
	"help":       IntentHelp,
	"privacy":    IntentPrivacy,
	"transcribe": IntentTranscribe,
	"translate":  IntentTranslate,
	"english":    IntentTranslate,
	"en":         IntentTranslate,
	"summarize":  IntentSummarize,
	"caveman":    IntentCaveman,
}

// Resolve derives the intent and target media from one message. Command
// tokens are recognized in the message text or the media caption, and only
// at byte offset zero: a command word embedded in prose is not a command.
// Bare voice messages and video notes default to transcription. Media is
// looked up on the message itself first, then on the replied-to message.
func Resolve(msg *tgbotapi.Message) (Intent, *MediaRef) {
	intent := IntentNone
	if i, ok := parseCommand(msg.Text); ok {
		intent = i
	} else if i, ok := parseCommand(msg.Caption); ok {
		intent = i
	} else if msg.Voice != nil || msg.VideoNote != nil {
		intent = IntentTranscribe
	}

	if !intent.Transcription() {
		return intent, nil
	}

	if ref := mediaFrom(msg); ref != nil {
		return intent, ref
	}
	if msg.ReplyToMessage != nil {
		if ref := mediaFrom(msg.ReplyToMessage); ref != nil {
			return intent, ref
		}
	}
	return intent, nil
}

// parseCommand extracts a leading /command token. A "@botname" suffix is
// tolerated. Leading whitespace disqualifies the token: the slash must be
// the first byte of the string.
func parseCommand(text string) (Intent, bool) {
	if len(text) < 2 || text[0] != '/' {
		return IntentNone, false
	}

	token := text[1:]
	if i := strings.IndexAny(token, " \t\n"); i >= 0 {
		token = token[:i]
	}
	if i := strings.IndexByte(token, '@'); i >= 0 {
		token = token[:i]
	}

	intent, ok := commands[strings.ToLower(token)]
	return intent, ok
}

func mediaFrom(msg *tgbotapi.Message) *MediaRef {
	switch {
	case msg.Voice != nil:
		v := msg.Voice
		return &MediaRef{
			FileID:   v.FileID,
			Duration: time.Duration(v.Duration) * time.Second,
			Size:     int64(v.FileSize),
			MIME:     v.MimeType,
			Source:   "voice",
		}
	case msg.VideoNote != nil:
		v := msg.VideoNote
		return &MediaRef{
			FileID:   v.FileID,
			Duration: time.Duration(v.Duration) * time.Second,
			Size:     int64(v.FileSize),
			MIME:     "video/mp4",
			Source:   "video_note",
		}
	case msg.Audio != nil:
		a := msg.Audio
		return &MediaRef{
			FileID:   a.FileID,
			Duration: time.Duration(a.Duration) * time.Second,
			Size:     int64(a.FileSize),
			MIME:     a.MimeType,
			Source:   "audio",
		}
	case msg.Video != nil:
		v := msg.Video
		return &MediaRef{
			FileID:   v.FileID,
			Duration: time.Duration(v.Duration) * time.Second,
			Size:     int64(v.FileSize),
			MIME:     v.MimeType,
			Source:   "video",
		}
	}
	return nil
}

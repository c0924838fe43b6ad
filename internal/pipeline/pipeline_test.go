package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/echoscribe/internal/telegram"
	"github.com/user/echoscribe/pkg/stt"
)

type sentReply struct {
	text      string
	parseMode string
}

type fakeMessenger struct {
	replies     []sentReply
	italics     []string
	reactions   []string
	typing      int
	blob        *telegram.Blob
	downloadErr error
	downloads   int
}

func (m *fakeMessenger) Reply(ctx context.Context, chatID int64, replyTo int, text, parseMode string) error {
	m.replies = append(m.replies, sentReply{text, parseMode})
	return nil
}

func (m *fakeMessenger) ReplyItalic(ctx context.Context, chatID int64, replyTo int, text string) error {
	m.italics = append(m.italics, text)
	return nil
}

func (m *fakeMessenger) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	m.reactions = append(m.reactions, emoji)
	return nil
}

func (m *fakeMessenger) Typing(ctx context.Context, chatID int64) {
	m.typing++
}

func (m *fakeMessenger) Download(ctx context.Context, fileID, declaredMIME string) (*telegram.Blob, error) {
	m.downloads++
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	return m.blob, nil
}

type fakeCache struct {
	entries   map[string]string
	puts      int
	processed map[int]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, processed: map[int]bool{}}
}

func (c *fakeCache) Get(ctx context.Context, fingerprint, kind string) (string, bool) {
	text, ok := c.entries[fingerprint+":"+kind]
	return text, ok
}

func (c *fakeCache) Put(ctx context.Context, fingerprint, kind, text string) error {
	c.puts++
	c.entries[fingerprint+":"+kind] = text
	return nil
}

func (c *fakeCache) MarkProcessed(ctx context.Context, updateID int) bool {
	if c.processed[updateID] {
		return false
	}
	c.processed[updateID] = true
	return true
}

type fakeProvider struct {
	outcome stt.Outcome
	calls   int
	kind    stt.Kind
}

func (p *fakeProvider) Transcribe(ctx context.Context, apiKey string, req *stt.Request) stt.Outcome {
	p.calls++
	p.kind = req.Kind
	return p.outcome
}

func newPipeline(m *fakeMessenger, c *fakeCache, p *fakeProvider) *Pipeline {
	return New(m, c, p, []string{"key-1", "key-2"}, 30*time.Minute, 20<<20)
}

func voiceUpdate(updateID int, text string) *tgbotapi.Update {
	return &tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: 100,
			Chat:      &tgbotapi.Chat{ID: 5},
			Text:      text,
			Voice: &tgbotapi.Voice{
				FileID:       "file-1",
				FileUniqueID: "uniq-1",
				Duration:     12,
				MimeType:     "audio/ogg",
				FileSize:     2048,
			},
		},
	}
}

func textUpdate(updateID int, text string) *tgbotapi.Update {
	return &tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: 100,
			Chat:      &tgbotapi.Chat{ID: 5},
			Text:      text,
		},
	}
}

func TestHandleSkipsNonMessageUpdate(t *testing.T) {
	m := &fakeMessenger{}
	p := newPipeline(m, newFakeCache(), &fakeProvider{})

	p.Handle(context.Background(), &tgbotapi.Update{UpdateID: 1})

	assert.Empty(t, m.replies)
}

func TestHandleSkipsPlainText(t *testing.T) {
	m := &fakeMessenger{}
	provider := &fakeProvider{}
	p := newPipeline(m, newFakeCache(), provider)

	p.Handle(context.Background(), textUpdate(1, "just chatting"))

	assert.Empty(t, m.replies)
	assert.Zero(t, provider.calls)
}

func TestHandleDropsDuplicateDelivery(t *testing.T) {
	m := &fakeMessenger{}
	p := newPipeline(m, newFakeCache(), &fakeProvider{})

	p.Handle(context.Background(), textUpdate(1, "/help"))
	p.Handle(context.Background(), textUpdate(1, "/help"))

	assert.Len(t, m.replies, 1, "retried delivery produces no second reply")
}

func TestHandleStaticCommands(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"/start", "Welcome!"},
		{"/help", "/transcribe"},
		{"/privacy", "Privacy Policy"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			m := &fakeMessenger{}
			p := newPipeline(m, newFakeCache(), &fakeProvider{})

			p.Handle(context.Background(), textUpdate(1, tt.command))

			require.Len(t, m.replies, 1)
			assert.Contains(t, m.replies[0].text, tt.want)
		})
	}
}

func TestHandleCommandWithoutMediaSendsUsage(t *testing.T) {
	m := &fakeMessenger{}
	c := newFakeCache()
	provider := &fakeProvider{}
	p := newPipeline(m, c, provider)

	p.Handle(context.Background(), textUpdate(1, "/transcribe"))

	require.Len(t, m.replies, 1)
	assert.Contains(t, m.replies[0].text, "Reply to an audio message")
	assert.Zero(t, m.downloads)
	assert.Zero(t, provider.calls)
}

func TestHandleDurationCeiling(t *testing.T) {
	m := &fakeMessenger{}
	provider := &fakeProvider{}
	p := newPipeline(m, newFakeCache(), provider)

	u := voiceUpdate(1, "")
	u.Message.Voice.Duration = 31 * 60

	p.Handle(context.Background(), u)

	require.Len(t, m.replies, 1)
	assert.Equal(t, "Duration is above 30 minutes", m.replies[0].text)
	assert.Zero(t, m.downloads, "oversized media is never fetched")
	assert.Zero(t, provider.calls)
}

func TestHandleDeclaredSizeCeiling(t *testing.T) {
	m := &fakeMessenger{}
	provider := &fakeProvider{}
	p := newPipeline(m, newFakeCache(), provider)

	u := voiceUpdate(1, "")
	u.Message.Voice.FileSize = 21 << 20

	p.Handle(context.Background(), u)

	require.Len(t, m.replies, 1)
	assert.Contains(t, m.replies[0].text, "can't be larger than 20MB")
	assert.Zero(t, m.downloads)
}

func TestHandleDownloadTooLarge(t *testing.T) {
	m := &fakeMessenger{downloadErr: telegram.ErrTooLarge}
	p := newPipeline(m, newFakeCache(), &fakeProvider{})

	p.Handle(context.Background(), voiceUpdate(1, ""))

	require.Len(t, m.replies, 1)
	assert.Contains(t, m.replies[0].text, "can't be larger than 20MB")
}

func TestHandleDownloadFailure(t *testing.T) {
	m := &fakeMessenger{downloadErr: errors.New("telegram is down")}
	provider := &fakeProvider{}
	p := newPipeline(m, newFakeCache(), provider)

	p.Handle(context.Background(), voiceUpdate(1, ""))

	require.Len(t, m.replies, 1)
	assert.Equal(t, "Error: failed to retrieve the media file", m.replies[0].text)
	assert.Zero(t, provider.calls)
}

func TestHandleCacheHitSkipsUpstream(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	c := newFakeCache()
	provider := &fakeProvider{outcome: stt.Success("should not be used")}
	p := newPipeline(m, c, provider)

	// Prime the cache through a first pass, then replay the same content.
	provider.outcome = stt.Success("from upstream")
	p.Handle(context.Background(), voiceUpdate(1, ""))
	p.Handle(context.Background(), voiceUpdate(2, ""))

	require.Len(t, m.replies, 2)
	assert.Equal(t, "from upstream", m.replies[0].text)
	assert.Equal(t, "from upstream", m.replies[1].text)
	assert.Equal(t, 1, provider.calls, "second pass is served from the cache")
	assert.Equal(t, 1, c.puts)
}

func TestHandleSuccessDeliversAndCaches(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	c := newFakeCache()
	provider := &fakeProvider{outcome: stt.Success("hello world")}
	p := newPipeline(m, c, provider)

	p.Handle(context.Background(), voiceUpdate(1, ""))

	require.Len(t, m.replies, 1)
	assert.Equal(t, "hello world", m.replies[0].text)
	assert.Empty(t, m.replies[0].parseMode)
	assert.Equal(t, 1, c.puts)
	assert.Equal(t, 1, m.typing)
	assert.Equal(t, stt.KindTranscribe, provider.kind)
}

func TestHandleSummaryDeliveredItalicized(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	provider := &fakeProvider{outcome: stt.Success("short summary")}
	p := newPipeline(m, newFakeCache(), provider)

	u := voiceUpdate(1, "")
	u.Message.Caption = "/summarize"

	p.Handle(context.Background(), u)

	assert.Empty(t, m.replies)
	require.Len(t, m.italics, 1)
	assert.Equal(t, "short summary", m.italics[0], "styling is left to the messenger, after splitting")
	assert.Equal(t, stt.KindSummarize, provider.kind)
}

func TestHandleAllRateLimitedReactsInsteadOfReplying(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	provider := &fakeProvider{outcome: stt.RateLimited(errors.New("quota"))}
	p := newPipeline(m, newFakeCache(), provider)

	p.Handle(context.Background(), voiceUpdate(1, ""))

	assert.Empty(t, m.replies, "rate-limit exhaustion stays quiet")
	require.Len(t, m.reactions, 1)
	assert.Equal(t, rateLimitReaction, m.reactions[0])
	assert.Equal(t, 2, provider.calls, "both credentials were tried")
}

func TestHandleErroredExhaustionSendsNotice(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	provider := &fakeProvider{outcome: stt.Transient(errors.New("upstream down"))}
	p := newPipeline(m, newFakeCache(), provider)

	p.Handle(context.Background(), voiceUpdate(1, ""))

	require.Len(t, m.replies, 1)
	assert.Equal(t, "Error: transcription failed, please try again later", m.replies[0].text)
	assert.Empty(t, m.reactions)
}

func TestHandleFailedRunLeavesCacheEmpty(t *testing.T) {
	blob := &telegram.Blob{Data: []byte("ogg-bytes"), MIME: "audio/ogg", FileName: "audio.ogg"}
	m := &fakeMessenger{blob: blob}
	c := newFakeCache()
	provider := &fakeProvider{outcome: stt.Fatal(errors.New("bad account"))}
	p := newPipeline(m, c, provider)

	p.Handle(context.Background(), voiceUpdate(1, ""))

	assert.Zero(t, c.puts, "failures are never cached")
}

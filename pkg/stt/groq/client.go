// Package groq implements the stt.Provider interface against Groq's
// OpenAI-compatible audio API.
package groq

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/user/echoscribe/pkg/stt"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is the Whisper deployment used for all operations.
const DefaultModel = "whisper-large-v3"

// NoText is returned when every segment of the audio is classified silent.
const NoText = "<no text>"

// Instruction prompts passed alongside the audio for the derived-text kinds.
const (
	summarizePrompt = "Summarize what the speaker is saying in concise English. Describe the speaker, do not speak as them. If the content is unclear or nonsensical, output only ???."
	cavemanPrompt   = "Summarize what the speaker is saying like a caveman. All caps, no verbs, describe the speaker. If the content is unclear or nonsensical, output only ???."
)

// Client performs single-credential calls against the Groq audio API.
// It is stateless with respect to credentials: the key is supplied per call
// so that one Client serves the whole failover pool.
type Client struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithModel overrides the Whisper model identifier.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithTimeout bounds a single upstream call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Groq client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ stt.Provider = (*Client)(nil)

// Transcribe performs exactly one upstream call and classifies the result.
// Translate uses the translations endpoint; Summarize and Caveman ride the
// transcriptions endpoint with an instruction prompt attached to the audio.
func (c *Client) Transcribe(ctx context.Context, apiKey string, req *stt.Request) stt.Outcome {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	audioReq := openai.AudioRequest{
		Model:    c.model,
		Reader:   bytes.NewReader(req.Audio),
		FilePath: uploadName(req.FileName, req.MIME),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	switch req.Kind {
	case stt.KindSummarize:
		audioReq.Prompt = summarizePrompt
	case stt.KindCaveman:
		audioReq.Prompt = cavemanPrompt
	}

	var resp openai.AudioResponse
	var err error
	if req.Kind == stt.KindTranslate {
		resp, err = client.CreateTranslation(ctx, audioReq)
	} else {
		resp, err = client.CreateTranscription(ctx, audioReq)
	}
	if err != nil {
		return classify(err)
	}

	return stt.Success(extractText(resp))
}

// Container extensions for the MIME types Telegram attaches to voice
// messages, video notes and audio/video uploads.
var mimeExt = map[string]string{
	"audio/ogg":  ".ogg",
	"audio/opus": ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
	"audio/flac": ".flac",
	"audio/webm": ".webm",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// uploadName gives the blob a filename whose extension the upstream can
// detect the container format from. Telegram file paths usually carry one
// already; the declared MIME type fills the gap when they do not.
func uploadName(name, mimeType string) string {
	if path.Ext(name) != "" {
		return name
	}
	base, _, _ := strings.Cut(mimeType, ";")
	if ext, ok := mimeExt[strings.TrimSpace(base)]; ok {
		return name + ext
	}
	return name
}

// extractText joins the non-silent segments of a verbose response. Segments
// where no_speech_prob > 0.6 and avg_logprob < -0.4 are treated as silence.
func extractText(resp openai.AudioResponse) string {
	if len(resp.Segments) == 0 {
		if text := strings.TrimSpace(resp.Text); text != "" {
			return text
		}
		return NoText
	}

	var b strings.Builder
	for _, seg := range resp.Segments {
		if seg.NoSpeechProb > 0.6 && seg.AvgLogprob < -0.4 {
			continue
		}
		b.WriteString(seg.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return NoText
	}
	return text
}

// classify maps a go-openai error onto the outcome taxonomy that drives
// credential failover.
func classify(err error) stt.Outcome {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return stt.RateLimited(err)
		}
		// Bad request, auth failure, server error: tied to this
		// credential's account, not worth retrying on it.
		return stt.Fatal(err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return stt.RateLimited(err)
		}
		// Non-2xx with a body the SDK could not parse.
		return stt.Transient(err)
	}

	// Connection resets, timeouts, malformed success bodies.
	return stt.Transient(err)
}

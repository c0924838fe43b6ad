package stt

import "context"

// Kind identifies the operation requested against the speech API.
type Kind int

const (
	// KindTranscribe produces a verbatim transcript in the spoken language.
	KindTranscribe Kind = iota
	// KindTranslate produces an English transcript.
	KindTranslate
	// KindSummarize produces a condensed English description of the speech.
	KindSummarize
	// KindCaveman produces a summary in all-caps caveman speak.
	KindCaveman
)

// String returns the stable identifier used in cache keys and logs.
func (k Kind) String() string {
	switch k {
	case KindTranscribe:
		return "transcribe"
	case KindTranslate:
		return "translate"
	case KindSummarize:
		return "summarize"
	case KindCaveman:
		return "caveman"
	default:
		return "unknown"
	}
}

// Label returns the user-facing name for the produced text.
func (k Kind) Label() string {
	switch k {
	case KindTranslate:
		return "translation"
	case KindSummarize, KindCaveman:
		return "summarization"
	default:
		return "transcript"
	}
}

// Request carries one media blob and the operation to perform on it.
type Request struct {
	Audio    []byte
	MIME     string
	FileName string
	Kind     Kind
}

// Status classifies the outcome of a single upstream attempt.
type Status int

const (
	// StatusSuccess means the upstream returned usable text.
	StatusSuccess Status = iota
	// StatusRateLimited means the credential exceeded its rate quota.
	StatusRateLimited
	// StatusTransient covers network failures, timeouts and unparseable
	// response bodies.
	StatusTransient
	// StatusFatal covers upstream errors not attributable to rate limiting
	// (bad request, auth failure, server error).
	StatusFatal
)

// Outcome is the classified result of exactly one upstream call with one
// credential. Rate limits and transient failures are expected, routed-around
// conditions here, not errors in the Go sense.
type Outcome struct {
	Status Status
	Text   string
	Err    error
}

// Success wraps upstream text in a successful Outcome.
func Success(text string) Outcome {
	return Outcome{Status: StatusSuccess, Text: text}
}

// RateLimited marks an attempt rejected for quota reasons.
func RateLimited(err error) Outcome {
	return Outcome{Status: StatusRateLimited, Err: err}
}

// Transient marks an attempt that failed in a way unrelated to the
// credential: the next credential attempt doubles as the retry.
func Transient(err error) Outcome {
	return Outcome{Status: StatusTransient, Err: err}
}

// Fatal marks an upstream rejection tied to this request/credential pair.
func Fatal(err error) Outcome {
	return Outcome{Status: StatusFatal, Err: err}
}

// Provider performs a single upstream speech-to-text call under the given
// credential. Implementations must classify every failure mode into an
// Outcome and never panic.
type Provider interface {
	Transcribe(ctx context.Context, apiKey string, req *Request) Outcome
}

// Package cache persists transcription results in Redis, keyed by media
// content fingerprint and operation kind.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RetentionWindow is the maximum age of an entry on read. Older entries are
// reported as absent. The same window is used as the Redis TTL, which acts
// only as an out-of-band reaper; the read-side check is authoritative.
const RetentionWindow = 7 * 24 * time.Hour

// dedupTTL bounds how long a processed webhook update ID is remembered.
// Telegram's retry horizon is far shorter than a day.
const dedupTTL = 24 * time.Hour

// Entry is the stored value: the produced text and its creation time.
// Entries are never mutated; a re-transcription overwrites the whole value.
type Entry struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a Redis-backed cache adapter. Reads degrade to misses and the
// dedup check degrades to "not seen" when Redis is unavailable, so a cache
// outage costs at most redundant upstream calls, never a failed pipeline.
type Store struct {
	client    *redis.Client
	namespace string
	retention time.Duration
	now       func() time.Time
}

// New creates a Store on the given client. All keys are prefixed with
// namespace followed by a colon.
func New(client *redis.Client, namespace string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		retention: RetentionWindow,
		now:       time.Now,
	}
}

// Fingerprint returns the media content identifier: a hex SHA-256 over the
// raw bytes, so forwarded or re-sent copies of the same file share a key.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) key(fingerprint, kind string) string {
	return fmt.Sprintf("%s:%s:%s", s.namespace, fingerprint, kind)
}

// Get returns the cached text for (fingerprint, kind). A missing entry, an
// entry past the retention window, a corrupt value and an unavailable store
// are all reported identically as a miss.
func (s *Store) Get(ctx context.Context, fingerprint, kind string) (string, bool) {
	log := zerolog.Ctx(ctx)

	raw, err := s.client.Get(ctx, s.key(fingerprint, kind)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("cache read failed, treating as miss")
		}
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().Err(err).Msg("corrupt cache entry, treating as miss")
		return "", false
	}

	if s.now().Sub(entry.CreatedAt) > s.retention {
		return "", false
	}
	return entry.Text, true
}

// Put overwrites the entry for (fingerprint, kind), stamped with the current
// time. Writing the same text twice leaves state equivalent to writing once;
// concurrent writers resolve by last write wins.
func (s *Store) Put(ctx context.Context, fingerprint, kind, text string) error {
	entry := Entry{Text: text, CreatedAt: s.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(fingerprint, kind), data, s.retention).Err(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// MarkProcessed records a webhook update ID and reports whether this
// delivery is the first one. On store failure it reports first=true:
// serving the event beats deduplicating it.
func (s *Store) MarkProcessed(ctx context.Context, updateID int) bool {
	key := fmt.Sprintf("%s:update:%d", s.namespace, updateID)
	first, err := s.client.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("dedup check failed, processing anyway")
		return true
	}
	return first
}

package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"example.com/emailevents/internal/domain"
)

// ISO8601Millis matches the UTC millisecond format providers and browsers emit.
const ISO8601Millis = "2006-01-02T15:04:05.000Z07:00"

const delimiter = "|"

// GenerateKey returns a stable idempotency key for ev.
// The key is hex-encoded SHA-256 over provider|eventType|messageId|occurredAt,
// so it has a fixed length and is identical across processes and restarts.
func GenerateKey(ev domain.CanonicalEmailEvent) string {
	composite := strings.Join([]string{
		string(ev.Provider),
		string(ev.EventType),
		ev.MessageID,
		FormatTime(ev.OccurredAt),
	}, delimiter)
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// FormatTime renders t as ISO-8601 in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(ISO8601Millis)
}

// Package normalize turns untrusted provider webhook payloads into canonical events.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/emailevents/internal/domain"
)

// Field lookup chains, tried in order.
var (
	typePaths       = []string{"type", "event"}
	emailPaths      = []string{"data.email", "email", "data.recipient", "recipient"}
	messageIDPaths  = []string{"data.messageId", "data.message_id", "messageId"}
	transactionIDs  = []string{"data.transactionId", "data.transaction_id", "transactionId"}
	topLevelIDPaths = []string{"id"}
	campaignPaths   = []string{"data.groupId", "data.campaignId", "groupId", "campaignId"}
	templatePaths   = []string{"data.templateId", "templateId"}
	timestampPaths  = []string{"timestamp", "data.timestamp", "createdAt", "created_at"}
)

// Accepted timestamp layouts, after numeric epochs.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
}

// Digit-only strings of these lengths are dates, not epochs.
var compactDateLayouts = map[int]string{
	4: "2006",
	8: "20060102",
}

// epochMillisFloor separates epoch seconds from epoch milliseconds.
const epochMillisFloor = 1e12

type Normalizer struct {
	Provider domain.Provider
	Now      func() time.Time
}

func New(provider domain.Provider, now func() time.Time) *Normalizer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Normalizer{Provider: provider, Now: now}
}

// Normalize is total: every input yields a structurally valid event and
// missing or malformed fields fall back to defaults.
func (n *Normalizer) Normalize(raw any) domain.CanonicalEmailEvent {
	now := n.Now().UTC()
	root := object(raw)

	ev := domain.CanonicalEmailEvent{
		Provider:   n.Provider,
		EventType:  domain.EventFailed,
		Email:      domain.UnknownEmail,
		OccurredAt: now,
		RawPayload: rawJSON(raw),
	}

	if s, ok := firstString(root, typePaths...); ok {
		ev.EventType = domain.ParseEventType(s)
	}
	if s, ok := firstString(root, emailPaths...); ok {
		ev.Email = s
	}
	ev.MessageID = messageID(root, now)
	if s, ok := firstString(root, campaignPaths...); ok {
		ev.CampaignID = &s
	}
	if s, ok := firstString(root, templatePaths...); ok {
		ev.TemplateID = &s
	}
	if v, ok := firstValue(root, timestampPaths...); ok {
		if ts, ok := parseTime(v); ok {
			ev.OccurredAt = ts
		}
	}
	return ev
}

// messageID falls back from message id to transaction id to the top-level id.
// The final placeholder is only unique per millisecond.
func messageID(root map[string]any, now time.Time) string {
	for _, chain := range [][]string{messageIDPaths, transactionIDs, topLevelIDPaths} {
		if s, ok := firstString(root, chain...); ok {
			return s
		}
	}
	return "unknown-" + strconv.FormatInt(now.UnixMilli(), 10)
}

func parseTime(v any) (time.Time, bool) {
	if f, ok := number(v); ok {
		return fromEpoch(f)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if layout, ok := compactDateLayouts[len(s)]; ok && allDigits(s) {
		if t, err := time.Parse(layout, s); err == nil {
			return validTime(t.UTC())
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return validTime(t.UTC())
		}
	}
	return time.Time{}, false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func fromEpoch(f float64) (time.Time, bool) {
	if f >= epochMillisFloor {
		return validTime(time.UnixMilli(int64(f)).UTC())
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return validTime(time.Unix(sec, nsec).UTC())
}

func validTime(t time.Time) (time.Time, bool) {
	if y := t.Year(); y < 1970 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}

// rawJSON preserves the original payload for later reprocessing.
func rawJSON(raw any) (out json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			out = quoted(fmt.Sprintf("%v", r))
		}
	}()
	switch x := raw.(type) {
	case json.RawMessage:
		if json.Valid(x) {
			return x
		}
		return quoted(string(x))
	case []byte:
		if json.Valid(x) {
			return json.RawMessage(x)
		}
		return quoted(string(x))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return quoted(fmt.Sprintf("unencodable payload of type %T", raw))
	}
	return b
}

func quoted(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

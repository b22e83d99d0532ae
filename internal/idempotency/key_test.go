package idempotency

import (
	"testing"
	"time"

	"example.com/emailevents/internal/domain"
)

func baseEvent() domain.CanonicalEmailEvent {
	return domain.CanonicalEmailEvent{
		Provider:   domain.ProviderPlunk,
		EventType:  domain.EventBounce,
		Email:      "lead@example.com",
		MessageID:  "msg_1",
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 789_000_000, time.UTC),
	}
}

func TestGenerateKey_Deterministic(t *testing.T) {
	a := baseEvent()
	b := baseEvent()
	// Fields outside the key must not matter.
	b.Email = "other@example.com"
	b.RawPayload = []byte(`{"different":true}`)
	campaign := "c1"
	b.CampaignID = &campaign

	ka, kb := GenerateKey(a), GenerateKey(b)
	if ka != kb {
		t.Fatalf("keys differ: %s vs %s", ka, kb)
	}
	if len(ka) != 64 {
		t.Errorf("key length = %d, want 64", len(ka))
	}
}

func TestGenerateKey_SameInstantDifferentZone(t *testing.T) {
	a := baseEvent()
	b := baseEvent()
	b.OccurredAt = a.OccurredAt.In(time.FixedZone("CET", 3600))
	if GenerateKey(a) != GenerateKey(b) {
		t.Error("same instant in another zone produced a different key")
	}
}

func TestGenerateKey_EachFieldMatters(t *testing.T) {
	base := GenerateKey(baseEvent())

	mutations := map[string]func(*domain.CanonicalEmailEvent){
		"provider":   func(e *domain.CanonicalEmailEvent) { e.Provider = domain.ProviderSystem },
		"event type": func(e *domain.CanonicalEmailEvent) { e.EventType = domain.EventOpen },
		"message id": func(e *domain.CanonicalEmailEvent) { e.MessageID = "msg_2" },
		"occurred":   func(e *domain.CanonicalEmailEvent) { e.OccurredAt = e.OccurredAt.Add(time.Millisecond) },
	}
	seen := map[string]string{base: "base"}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := baseEvent()
			mutate(&ev)
			k := GenerateKey(ev)
			if prev, dup := seen[k]; dup {
				t.Errorf("key for %s collides with %s", name, prev)
			}
			seen[k] = name
		})
	}
}

func TestFormatTime(t *testing.T) {
	got := FormatTime(time.Date(2026, 2, 3, 4, 5, 6, 789_123_000, time.UTC))
	if want := "2026-02-03T04:05:06.789Z"; got != want {
		t.Errorf("FormatTime() = %q, want %q", got, want)
	}
}

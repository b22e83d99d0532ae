package transporthttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
)

const defaultWindow = 24 * time.Hour   // last 24h default
const maxWindow = 90 * 24 * time.Hour // cap at 90 days (guardrail)

type eventsResp struct {
	From   time.Time            `json:"from"`
	To     time.Time            `json:"to"`
	Count  int                  `json:"count"`
	Events []domain.StoredEvent `json:"events"`
}

type countsResp struct {
	From   time.Time                  `json:"from"`
	To     time.Time                  `json:"to"`
	Total  int64                      `json:"total"`
	Counts map[domain.EventType]int64 `json:"counts"`
}

func (d *ServerDeps) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := d.parseRange(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var typePtr *domain.EventType
	if s := strings.TrimSpace(q.Get("type")); s != "" {
		t, known := domain.LookupEventType(s)
		if !known {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "unknown event type", map[string][]string{
				"type": {"unknown event type " + strconv.Quote(s)},
			})
			return
		}
		typePtr = &t
	}
	var campaignPtr *string
	if c := strings.TrimSpace(q.Get("campaign_id")); c != "" {
		campaignPtr = &c
	}

	events, err := d.Store.QueryByTimeRange(r.Context(), from, to, typePtr, campaignPtr)
	if err != nil {
		d.Log.Error("list events failed", zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "query error", "could not query events", nil)
		return
	}
	if events == nil {
		events = []domain.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResp{From: from, To: to, Count: len(events), Events: events})
}

func (d *ServerDeps) HandleCountEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := d.parseRange(w, r)
	if !ok {
		return
	}
	counts, err := d.Store.CountByType(r.Context(), from, to)
	if err != nil {
		d.Log.Error("count events failed", zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "query error", "could not count events", nil)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, countsResp{From: from, To: to, Total: total, Counts: counts})
}

// parseRange reads from/to (RFC 3339 or epoch seconds), defaulting to the
// last 24h and capping the span at 90 days. It writes the problem response
// itself when the parameters are invalid.
func (d *ServerDeps) parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	fromStr := strings.TrimSpace(q.Get("from"))
	toStr := strings.TrimSpace(q.Get("to"))
	now := d.Now().UTC()

	var from, to time.Time
	var err error

	switch {
	case fromStr == "" && toStr == "":
		from, to = now.Add(-defaultWindow), now
	case fromStr != "" && toStr == "":
		if from, err = parseInstant(fromStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be RFC 3339 or epoch seconds", nil)
			return from, to, false
		}
		to = now
	case fromStr == "" && toStr != "":
		if to, err = parseInstant(toStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be RFC 3339 or epoch seconds", nil)
			return from, to, false
		}
		from = to.Add(-defaultWindow)
	default:
		if from, err = parseInstant(fromStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be RFC 3339 or epoch seconds", nil)
			return from, to, false
		}
		if to, err = parseInstant(toStr); err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be RFC 3339 or epoch seconds", nil)
			return from, to, false
		}
	}

	if to.Before(from) {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must not be after to", nil)
		return from, to, false
	}
	// guardrail: cap excessively large ranges
	if to.Sub(from) > maxWindow {
		from = to.Add(-maxWindow)
	}
	return from, to, true
}

func parseInstant(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/storage"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	s := NewStore(&DB{Pool: mock}, nil)
	s.now = func() time.Time { return t0 }
	return s, mock
}

func sample() domain.CanonicalEmailEvent {
	return domain.CanonicalEmailEvent{
		Provider:   domain.ProviderPlunk,
		EventType:  domain.EventDelivered,
		Email:      "lead@example.com",
		MessageID:  "msg-1",
		OccurredAt: t0,
		RawPayload: json.RawMessage(`{"type":"delivered"}`),
	}
}

func insertArgs(ev domain.CanonicalEmailEvent, key string) []any {
	return []any{
		pgxmock.AnyArg(), // id
		string(ev.Provider),
		string(ev.EventType),
		ev.Email,
		ev.MessageID,
		pgxmock.AnyArg(),
		pgxmock.AnyArg(),
		pgxmock.AnyArg(),
		string(ev.RawPayload),
		key,
		pgxmock.AnyArg(),
	}
}

func TestStore_Insert(t *testing.T) {
	tests := []struct {
		name     string
		result   pgconn.CommandTag
		err      error
		want     bool
		wantFail bool
	}{
		{name: "new row", result: pgxmock.NewResult("INSERT", 1), want: true},
		{name: "conflict", result: pgxmock.NewResult("INSERT", 0), want: false},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "connection lost", err: errors.New("conn closed"), wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			ev := sample()
			exp := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_events")).
				WithArgs(insertArgs(ev, "key-1")...)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			got, err := s.Insert(context.Background(), ev, "key-1")
			if tt.wantFail {
				if err == nil {
					t.Fatal("Insert() error = nil, want failure")
				}
			} else if err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Insert() = %v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestJSONBSafe(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no escapes", in: `{"a":"x"}`, want: `{"a":"x"}`},
		{name: "nul escape", in: `{"a":"x\u0000y"}`, want: `{"a":"x\\u0000y"}`},
		{name: "escaped backslash", in: `{"a":"\\u0000"}`, want: `{"a":"\\u0000"}`},
		{name: "other unicode escape", in: `{"a":"\u00e9\u0000"}`, want: `{"a":"\u00e9\\u0000"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jsonbSafe([]byte(tt.in))
			if string(got) != tt.want {
				t.Fatalf("jsonbSafe(%s) = %s, want %s", tt.in, got, tt.want)
			}
			var v map[string]string
			if err := json.Unmarshal(got, &v); err != nil {
				t.Fatalf("result is not valid JSON: %v", err)
			}
			if strings.ContainsRune(v["a"], 0) {
				t.Errorf("decoded value still contains NUL: %q", v["a"])
			}
		})
	}
}

func TestStore_InsertRewritesNulEscapes(t *testing.T) {
	s, mock := newMockStore(t)
	ev := sample()
	ev.RawPayload = json.RawMessage(`{"type":"delivered","subject":"a\u0000b"}`)
	args := insertArgs(ev, "key-1")
	args[8] = `{"type":"delivered","subject":"a\\u0000b"}`
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_events")).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := s.Insert(context.Background(), ev, "key-1")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !got {
		t.Error("Insert() = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_RecordOperationalFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_events")).
		WithArgs(
			pgxmock.AnyArg(),
			string(domain.ProviderSystem),
			string(domain.EventIngestionFailure),
			domain.SystemEmail,
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s.RecordOperationalFailure(context.Background(), domain.FailureIngestion, map[string]any{"stage": "insert"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_RecordOperationalFailureSwallowsErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_events")).
		WithArgs(insertArgsAny()...).
		WillReturnError(errors.New("db down"))

	// must not panic or propagate
	s.RecordOperationalFailure(context.Background(), domain.FailureAuth, nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func insertArgsAny() []any {
	args := make([]any, 11)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestStore_QueryByTimeRange(t *testing.T) {
	s, mock := newMockStore(t)
	bounce := domain.EventBounce
	camp := "spring"

	cols := []string{"id", "provider", "event_type", "email", "message_id", "campaign_id",
		"template_id", "occurred_at", "raw_payload", "idempotency_key", "created_at"}
	rows := pgxmock.NewRows(cols).
		AddRow("id-2", "plunk", "bounce", "a@example.com", "m2", &camp, (*string)(nil),
			t0.Add(time.Minute), `{"n":2}`, "k2", t0).
		AddRow("id-1", "plunk", "bounce", "b@example.com", "m1", &camp, (*string)(nil),
			t0, `{"n":1}`, "k1", t0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM email_events")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "bounce", "spring", storage.MaxQueryRows).
		WillReturnRows(rows)

	got, err := s.QueryByTimeRange(context.Background(), t0, t0.Add(time.Hour), &bounce, &camp)
	if err != nil {
		t.Fatalf("QueryByTimeRange() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].MessageID != "m2" || got[0].EventType != domain.EventBounce {
		t.Errorf("first row = %+v", got[0])
	}
	if got[1].CampaignID == nil || *got[1].CampaignID != "spring" {
		t.Errorf("campaign = %v, want spring", got[1].CampaignID)
	}
	if string(got[1].RawPayload) != `{"n":1}` {
		t.Errorf("raw = %s", got[1].RawPayload)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_QueryByTimeRangeNoFilters(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY occurred_at DESC")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), storage.MaxQueryRows).
		WillReturnError(errors.New("timeout"))

	got, err := s.QueryByTimeRange(context.Background(), t0, t0, nil, nil)
	if err == nil || got != nil {
		t.Fatalf("QueryByTimeRange() = %v, %v; want nil, error", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_CountByType(t *testing.T) {
	s, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"event_type", "count"}).
		AddRow("sent", int64(100)).
		AddRow("bounce", int64(6))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY event_type")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	counts, err := s.CountByType(context.Background(), t0.Add(-time.Hour), t0)
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if counts[domain.EventSent] != 100 || counts[domain.EventBounce] != 6 {
		t.Errorf("counts = %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_UpsertMessage(t *testing.T) {
	s, mock := newMockStore(t)
	ev := sample()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (message_id) DO UPDATE")).
		WithArgs("msg-1", ev.Email, pgxmock.AnyArg(), pgxmock.AnyArg(),
			string(domain.EventDelivered), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("deadlock"))

	// best-effort: nothing returned, nothing raised
	s.UpsertMessage(context.Background(), "msg-1", ev)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_Ready(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	s := NewStore(&DB{Pool: mock}, nil)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	if err := s.Ready(context.Background()); err == nil {
		t.Error("Ready() error = nil, want failure")
	}
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		dsn, key, want string
		wantErr        bool
	}{
		{dsn: "postgres://app:pw@db:5432/mail?sslmode=disable", want: "pgx5://app:pw@db:5432/mail?sslmode=disable"},
		{dsn: "postgresql://app@db/mail", key: "svc", want: "pgx5://app:svc@db/mail"},
		{dsn: "mysql://db/mail", wantErr: true},
	}
	for _, tt := range tests {
		got, err := migrateURL(tt.dsn, tt.key)
		if (err != nil) != tt.wantErr {
			t.Fatalf("migrateURL(%q) error = %v", tt.dsn, err)
		}
		if got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

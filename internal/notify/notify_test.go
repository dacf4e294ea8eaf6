package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleAlert() domain.AlertEvent {
	price, gap, pct := 19500.0, 4200.0, 17.7
	return domain.AlertEvent{
		ID:               "a1",
		HuntID:           "h1",
		ListingID:        42,
		Decision:         domain.DecisionBuy,
		PreviousDecision: domain.DecisionWatch,
		VehicleSummary:   "2019 TOYOTA HILUX SR5",
		Price:            &price,
		GapDollars:       &gap,
		GapPct:           &pct,
		Confidence:       domain.ConfidenceHigh,
		URL:              "https://pickles.example/lot/42",
		Reasons:          []string{"$4,200 below proven exit"},
		OccurredAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

type recordingSender struct {
	name string
	got  []domain.AlertEvent
	err  error
}

func (r *recordingSender) Send(_ context.Context, ev domain.AlertEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifierFiltersByDecision(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{" buy "}, discardLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, domain.AlertEvent{Decision: domain.DecisionWatch}); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, domain.AlertEvent{Decision: domain.DecisionBuy}); err != nil {
		t.Fatal(err)
	}
	if len(s.got) != 1 || s.got[0].Decision != domain.DecisionBuy {
		t.Fatalf("delivered = %+v", s.got)
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "bad: down") {
		t.Fatalf("err = %v", err)
	}
	if len(good.got) != 1 {
		t.Fatal("second sender skipped after first failed")
	}
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if n.Enabled() {
		t.Fatal("notifier without senders reports enabled")
	}
	if err := n.Notify(context.Background(), sampleAlert()); err != nil {
		t.Fatal(err)
	}
}

func TestTitleAndBody(t *testing.T) {
	ev := sampleAlert()
	if got := Title(ev); got != "BUY: 2019 TOYOTA HILUX SR5 (was WATCH)" {
		t.Fatalf("Title = %q", got)
	}
	body := Body(ev)
	for _, want := range []string{"Asking $19,500", "Gap $4,200 (17.7%)", "Confidence high", "- $4,200 below proven exit", ev.URL} {
		if !strings.Contains(body, want) {
			t.Errorf("Body missing %q:\n%s", want, body)
		}
	}
}

func TestTelegramSender(t *testing.T) {
	var payload map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "chat-1")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %s", path)
	}
	if payload["chat_id"] != "chat-1" || !strings.HasPrefix(payload["text"].(string), "*BUY: 2019 TOYOTA HILUX SR5") {
		t.Fatalf("payload = %v", payload)
	}
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
			URL   string `json:"url"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), sampleAlert()); err != nil {
		t.Fatal(err)
	}
	if len(payload.Embeds) != 1 || payload.Embeds[0].Color != colourBuy || payload.Embeds[0].URL == "" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestWebhookSender(t *testing.T) {
	var got domain.AlertEvent
	var secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("X-Webhook-Secret")
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "s3cret").Send(context.Background(), sampleAlert()); err != nil {
		t.Fatal(err)
	}
	if secret != "s3cret" || got.ListingID != 42 || got.Decision != domain.DecisionBuy {
		t.Fatalf("secret=%q event=%+v", secret, got)
	}
}

func TestSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "").Send(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "unexpected status 400") {
		t.Fatalf("err = %v", err)
	}
}

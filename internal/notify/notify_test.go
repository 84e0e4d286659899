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
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordSender struct {
	name   string
	err    error
	mu     sync.Mutex
	titles []string
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func TestNotifierFiltersByKind(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"sell filled", "STOP LOSS"}, testLogger)
	ctx := context.Background()

	n.NotifyEvent(ctx, domain.TradingEvent{Kind: domain.EventBuyOrder, Market: "BTC Up"})
	n.NotifyEvent(ctx, domain.TradingEvent{Kind: domain.EventSellFilled, Market: "BTC Up"})
	n.NotifyEvent(ctx, domain.TradingEvent{Kind: domain.EventStopLoss})

	if len(s.titles) != 2 || s.titles[0] != "SELL FILLED · BTC Up" || s.titles[1] != "STOP LOSS" {
		t.Fatalf("got titles %v", s.titles)
	}
}

func TestNotifierJoinsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger)

	err := n.NotifyAll(context.Background(), "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("got err=%v want boom", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("a failing sender must not block the others")
	}
}

func TestTelegramAndDiscordPayloads(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "42")
	tg.baseURL = srv.URL
	dc := NewDiscordSender(srv.URL + "/hook")
	n := NewNotifier([]Sender{tg, dc}, nil, testLogger)

	ev := domain.TradingEvent{Kind: domain.EventRedemptionSuccess, Time: time.Unix(0, 0), Market: "ETH Down", PnL: 1.5}
	if err := n.NotifyEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	tgBody := bodies["/bottok/sendMessage"]
	if tgBody["chat_id"] != "42" || !strings.Contains(tgBody["text"].(string), "PnL: $1.5000") {
		t.Fatalf("got telegram body %v", tgBody)
	}
	dcBody := bodies["/hook"]
	if !strings.HasPrefix(dcBody["content"].(string), "**REDEMPTION SUCCESS · ETH Down**") {
		t.Fatalf("got discord body %v", dcBody)
	}
}

func TestSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("got err=%v", err)
	}
}

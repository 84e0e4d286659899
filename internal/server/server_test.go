package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/ws"
	"github.com/alanyoungcy/updownbot/internal/trader"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	apiKey = "secret"
	period = int64(1_700_000_100)
)

type fakeMarkets struct{}

func (fakeMarkets) Markets() domain.MarketSet {
	return domain.MarketSet{Period: period, Markets: map[domain.Asset]domain.Market{
		domain.AssetBTC: {ConditionID: "0xbtc", Slug: "btc-updown-15m-1700000100", UpTokenID: "up", DownTokenID: "down"},
		domain.AssetSOL: domain.FallbackMarket(domain.AssetSOL),
	}}
}

type fakeTrader struct{ positions []domain.Position }

func (f fakeTrader) Positions() []domain.Position { return append([]domain.Position(nil), f.positions...) }

func (f fakeTrader) Summarize() trader.Summary {
	return trader.Summary{
		Total:        2,
		Counts:       map[domain.PositionState]int{domain.StateFilled: 1, domain.StateSold: 1},
		OpenExposure: 5,
		RealizedPnL:  0.25,
	}
}

type fakeEvents struct{ records []domain.EventRecord }

func (f fakeEvents) Insert(context.Context, domain.TradingEvent) error { return nil }

func (f fakeEvents) ListSince(_ context.Context, since time.Time, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for _, r := range f.records {
		if !r.Event.Time.Before(since) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, hub *ws.Hub) *httptest.Server {
	t.Helper()
	tr := fakeTrader{positions: []domain.Position{
		{ID: "b", PeriodTimestamp: period, TokenType: domain.BTCDown, State: domain.StateSold, Cost: 4.75},
		{ID: "a", PeriodTimestamp: period, TokenType: domain.BTCUp, State: domain.StateFilled, Cost: 5},
	}}
	events := fakeEvents{records: []domain.EventRecord{
		{ID: 1, Event: domain.TradingEvent{Kind: domain.EventBuyFilled, Time: time.Unix(period+60, 0), Market: "BTC Up"}},
	}}
	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(),
		Status:    handler.NewStatusHandler("trade", domain.Period15m, fakeMarkets{}, tr, nil),
		Positions: handler.NewPositionHandler(tr, nil, testLogger),
		Events:    handler.NewEventHandler(events, testLogger),
	}, hub, testLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, auth bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := get(t, ts.URL+"/api/health", false)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("got status=%d body=%v", resp.StatusCode, body)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)
	if resp, _ := get(t, ts.URL+"/api/status", false); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status=%d want=401", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status=%d want=401", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := get(t, ts.URL+"/api/status", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status=%d", resp.StatusCode)
	}
	if body["mode"] != "trade" || body["period"] != "15m" || body["period_timestamp"] != float64(period) {
		t.Fatalf("got body=%v", body)
	}
	markets, _ := body["markets"].([]any)
	if len(markets) != 2 {
		t.Fatalf("got %d markets want 2", len(markets))
	}
	first := markets[0].(map[string]any)
	if first["asset"] != "BTC" || first["fallback"] != false {
		t.Fatalf("got first market=%v", first)
	}
	summary := body["summary"].(map[string]any)
	if summary["total"] != float64(2) || summary["realized_pnl"] != 0.25 {
		t.Fatalf("got summary=%v", summary)
	}
	if _, ok := body["feed"]; ok {
		t.Fatalf("feed stats present without a feed")
	}
}

func TestPositions(t *testing.T) {
	ts := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/api/positions", true)
	all := body["positions"].([]any)
	if len(all) != 2 || all[0].(map[string]any)["id"] != "a" {
		t.Fatalf("got positions=%v want sorted by token type", all)
	}

	_, body = get(t, ts.URL+"/api/positions?open=true", true)
	open := body["positions"].([]any)
	if len(open) != 1 || open[0].(map[string]any)["state"] != string(domain.StateFilled) {
		t.Fatalf("got open=%v", open)
	}

	if resp, _ := get(t, ts.URL+"/api/positions/1700000100", true); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got status=%d want=503 without journal", resp.StatusCode)
	}
}

func TestEvents(t *testing.T) {
	ts := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/api/events?since=1700000000", true)
	events := body["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("got %d events want 1", len(events))
	}
	line := events[0].(map[string]any)["line"].(string)
	if !strings.Contains(line, "BUY FILLED | Market: BTC Up") {
		t.Fatalf("got line=%q", line)
	}

	if resp, _ := get(t, ts.URL+"/api/events?since=yesterday", true); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status=%d want=400", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
		t.Fatalf("got status=%d headers=%v", resp.StatusCode, resp.Header)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := ws.NewHub(testLogger, ws.Config{Mode: "trade", Period: "15m"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := newTestServer(t, hub)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + apiKey + "&kinds=buy%20filled"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil || frame["type"] != "bot_status" {
		t.Fatalf("got first frame=%v err=%v", frame, err)
	}

	// The write pump starts only after registration, so the client is
	// registered once the status frame arrives.
	hub.Broadcast(domain.EventMarketEnded, []byte(`{"kind":"MARKET ENDED"}`))
	hub.Broadcast(domain.EventBuyFilled, []byte(`{"kind":"BUY FILLED"}`))

	frame = nil
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["type"] != "trading_event" || frame["kind"] != "BUY FILLED" {
		t.Fatalf("got frame=%v want only the subscribed kind", frame)
	}
}

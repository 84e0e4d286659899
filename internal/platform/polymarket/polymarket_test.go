package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	testKey       = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testCondition = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrderAmounts(t *testing.T) {
	tests := []struct {
		name      string
		req       domain.OrderRequest
		wantMaker string
		wantTaker string
	}{
		{
			name:      "market buy by usd",
			req:       domain.OrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeFOK, Price: 0.5, Amount: 10},
			wantMaker: "10000000",
			wantTaker: "20000000",
		},
		{
			name:      "limit buy",
			req:       domain.OrderRequest{Side: domain.OrderSideBuy, Type: domain.OrderTypeGTC, Price: 0.45, Size: 5},
			wantMaker: "2250000",
			wantTaker: "5000000",
		},
		{
			name:      "sell truncates size",
			req:       domain.OrderRequest{Side: domain.OrderSideSell, Type: domain.OrderTypeGTC, Price: 0.99, Size: 5.129},
			wantMaker: "5120000",
			wantTaker: "5068800",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker, taker, err := orderAmounts(tt.req)
			if err != nil {
				t.Fatalf("orderAmounts: %v", err)
			}
			if maker.String() != tt.wantMaker || taker.String() != tt.wantTaker {
				t.Fatalf("got maker=%s taker=%s want maker=%s taker=%s", maker, taker, tt.wantMaker, tt.wantTaker)
			}
		})
	}

	t.Run("rejects price outside range", func(t *testing.T) {
		_, _, err := orderAmounts(domain.OrderRequest{Side: domain.OrderSideBuy, Price: 1.2, Size: 1})
		if !errors.Is(err, domain.ErrInvalidOrder) {
			t.Fatalf("got err=%v want ErrInvalidOrder", err)
		}
	})
	t.Run("rejects zero size", func(t *testing.T) {
		_, _, err := orderAmounts(domain.OrderRequest{Side: domain.OrderSideSell, Price: 0.5, Size: 0.001})
		if !errors.Is(err, domain.ErrInvalidOrder) {
			t.Fatalf("got err=%v want ErrInvalidOrder", err)
		}
	})
}

func TestSharesFromBaseUnits(t *testing.T) {
	got, err := sharesFromBaseUnits("5120000")
	if err != nil {
		t.Fatalf("sharesFromBaseUnits: %v", err)
	}
	if got != 5.12 {
		t.Fatalf("got=%v want=5.12", got)
	}
	if got, _ := sharesFromBaseUnits(""); got != 0 {
		t.Fatalf("empty: got=%v want=0", got)
	}
}

func TestClobQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("token_id") {
		case "1":
			io.WriteString(w, `{"asset_id":"1","bids":[{"price":"0.40","size":"10"},{"price":"0.45","size":"3"}],"asks":[{"price":"0.52","size":"1"},{"price":"0.48","size":"7"}]}`)
		case "2":
			io.WriteString(w, `{"asset_id":"2","bids":[{"price":"0.40","size":"10"}],"asks":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClobClient(ClobConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)

	t.Run("best levels", func(t *testing.T) {
		q, err := c.Quote(context.Background(), "1")
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if q.Bid != 0.45 || q.Ask != 0.48 {
			t.Fatalf("got bid=%v ask=%v want bid=0.45 ask=0.48", q.Bid, q.Ask)
		}
	})
	t.Run("empty asks are malformed", func(t *testing.T) {
		_, err := c.Quote(context.Background(), "2")
		if !errors.Is(err, domain.ErrMalformedQuote) {
			t.Fatalf("got err=%v want ErrMalformedQuote", err)
		}
	})
	t.Run("unknown token", func(t *testing.T) {
		_, err := c.Quote(context.Background(), "3")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("got err=%v want ErrNotFound", err)
		}
	})
}

func TestGammaMarketBySlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/events/slug/btc-updown-15m-1700000100":
			io.WriteString(w, `{"slug":"btc-updown-15m-1700000100","markets":[{"conditionId":"0xabc","slug":"btc-updown-15m-1700000100","active":true,"closed":"false","outcomes":"[\"Up\",\"Down\"]","clobTokenIds":"[\"11\",\"22\"]"}]}`)
		case r.URL.Path == "/markets" && r.URL.Query().Get("slug") == "eth-updown-15m-1700000100":
			io.WriteString(w, `[{"conditionId":"0xdef","slug":"eth-updown-15m-1700000100","active":"true","closed":false,"outcomes":"[\"Down\",\"Up\"]","clobTokenIds":"[\"33\",\"44\"]"}]`)
		case r.URL.Path == "/markets":
			io.WriteString(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, time.Second)
	ctx := context.Background()

	t.Run("event endpoint", func(t *testing.T) {
		m, err := g.MarketBySlug(ctx, "btc-updown-15m-1700000100")
		if err != nil {
			t.Fatalf("MarketBySlug: %v", err)
		}
		if m.ConditionID != "0xabc" || m.UpTokenID != "11" || m.DownTokenID != "22" {
			t.Fatalf("got %+v", m)
		}
		if !m.Active || m.Closed || m.PeriodStart != 1700000100 {
			t.Fatalf("got active=%v closed=%v start=%d", m.Active, m.Closed, m.PeriodStart)
		}
	})
	t.Run("falls back to market listing", func(t *testing.T) {
		m, err := g.MarketBySlug(ctx, "eth-updown-15m-1700000100")
		if err != nil {
			t.Fatalf("MarketBySlug: %v", err)
		}
		if m.UpTokenID != "44" || m.DownTokenID != "33" {
			t.Fatalf("got up=%s down=%s want up=44 down=33", m.UpTokenID, m.DownTokenID)
		}
	})
	t.Run("missing everywhere", func(t *testing.T) {
		_, err := g.MarketBySlug(ctx, "sol-updown-15m-1700000100")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("got err=%v want ErrNotFound", err)
		}
	})
}

func TestClobPostOrderAndBalance(t *testing.T) {
	var gotOrder apiOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("POLY_API_KEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/order":
			if err := json.NewDecoder(r.Body).Decode(&gotOrder); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if gotOrder.Order.TokenID == "999" {
				io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
				return
			}
			io.WriteString(w, `{"success":true,"orderID":"0xorder","status":"matched"}`)
		case r.URL.Path == "/balance-allowance":
			if r.URL.Query().Get("asset_type") != "CONDITIONAL" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"balance":"7500000","allowance":"0"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	signer, err := crypto.NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewClobClient(ClobConfig{BaseURL: srv.URL, Timeout: time.Second}, signer)
	ctx := context.Background()

	if _, err := c.Balance(ctx, "123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("without creds: got err=%v want ErrUnauthorized", err)
	}
	c.SetCredentials(crypto.APICredentials{Key: "key", Secret: "c2VjcmV0", Passphrase: "pass"})

	res, err := c.PostOrder(ctx, domain.OrderRequest{
		TokenID: "123", Side: domain.OrderSideBuy, Type: domain.OrderTypeFOK, Price: 0.5, Amount: 2,
	})
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	if res.OrderID != "0xorder" || res.Status != domain.OrderStatusMatched {
		t.Fatalf("got %+v", res)
	}
	if gotOrder.OrderType != "FOK" || gotOrder.Owner != "key" || gotOrder.Order.Side != "BUY" {
		t.Fatalf("got wire order %+v", gotOrder)
	}
	if gotOrder.Order.Maker != signer.Address().Hex() || gotOrder.Order.Signature == "" {
		t.Fatalf("got maker=%s signature=%q", gotOrder.Order.Maker, gotOrder.Order.Signature)
	}

	_, err = c.PostOrder(ctx, domain.OrderRequest{
		TokenID: "999", Side: domain.OrderSideBuy, Type: domain.OrderTypeFOK, Price: 0.5, Amount: 2,
	})
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("got err=%v want ErrOrderRejected", err)
	}

	bal, err := c.Balance(ctx, "123")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 7.5 {
		t.Fatalf("got balance=%v want=7.5", bal)
	}
}

func TestCTFEncoding(t *testing.T) {
	t.Run("redeem selector", func(t *testing.T) {
		data, err := packRedeem(testCondition)
		if err != nil {
			t.Fatalf("packRedeem: %v", err)
		}
		want := ethcrypto.Keccak256([]byte("redeemPositions(address,bytes32,bytes32,uint256[])"))[:4]
		if string(data[:4]) != string(want) {
			t.Fatalf("got selector=%x want=%x", data[:4], want)
		}
	})
	t.Run("merge selector", func(t *testing.T) {
		data, err := packMerge(testCondition, big.NewInt(5_000_000))
		if err != nil {
			t.Fatalf("packMerge: %v", err)
		}
		want := ethcrypto.Keccak256([]byte("mergePositions(address,bytes32,bytes32,uint256[],uint256)"))[:4]
		if string(data[:4]) != string(want) {
			t.Fatalf("got selector=%x want=%x", data[:4], want)
		}
	})
	t.Run("bad condition id", func(t *testing.T) {
		if _, err := packRedeem("dummy_btc_fallback"); err == nil {
			t.Fatal("expected error for non-hex condition id")
		}
	})
}

type fakeCaller struct {
	approved map[common.Address]bool
}

func (f fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	vals, err := ctfABI.Methods["isApprovedForAll"].Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	operator := vals[1].(common.Address)
	return ctfABI.Methods["isApprovedForAll"].Outputs.Pack(f.approved[operator])
}

func TestRelayerAndApprovals(t *testing.T) {
	var submits atomic.Int32
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/submit":
			if r.Header.Get("POLY_BUILDER_API_KEY") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var req relayerSubmitRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if len(req.Transactions) != 1 || !strings.EqualFold(req.Transactions[0].To, ConditionalTokensAddress.Hex()) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			submits.Add(1)
			io.WriteString(w, `{"transactionID":"tx-1","state":"STATE_NEW"}`)
		case r.URL.Path == "/transaction/tx-1":
			if polls.Add(1) < 2 {
				io.WriteString(w, `{"transactionID":"tx-1","state":"STATE_MINE"}`)
				return
			}
			io.WriteString(w, `{"transactionID":"tx-1","transactionHash":"0xhash","state":"STATE_CONFIRMED"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	relayer := NewRelayerClient(RelayerConfig{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		ConfirmTimeout: 5 * time.Second,
		Builder:        crypto.APICredentials{Key: "b", Secret: "c2VjcmV0", Passphrase: "p"},
	}, discardLogger())
	relayer.pollInterval = 10 * time.Millisecond

	clob := NewClobClient(ClobConfig{BaseURL: srv.URL, Funder: common.HexToAddress("0x01")}, nil)
	caller := fakeCaller{approved: map[common.Address]bool{CTFExchangeAddress: true}}
	ex := NewExchange(NewGammaClient(srv.URL, time.Second), clob, relayer, caller)
	ctx := context.Background()

	res, err := ex.Redeem(ctx, testCondition)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.TransactionHash != "0xhash" || res.State != relayerStateConfirmed {
		t.Fatalf("got %+v", res)
	}

	status, err := ex.ApprovalStatus(ctx)
	if err != nil {
		t.Fatalf("ApprovalStatus: %v", err)
	}
	if len(status) != 3 || !status[0].Approved || status[1].Approved {
		t.Fatalf("got %+v", status)
	}

	before := submits.Load()
	if err := ex.SetApprovals(ctx); err != nil {
		t.Fatalf("SetApprovals: %v", err)
	}
	if got := submits.Load() - before; got != 2 {
		t.Fatalf("got %d approval submits want 2", got)
	}
}

func TestRelayerFailedState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/submit" {
			io.WriteString(w, `{"transactionID":"tx-2"}`)
			return
		}
		io.WriteString(w, `{"transactionID":"tx-2","state":"STATE_FAILED","errorMsg":"reverted"}`)
	}))
	defer srv.Close()

	relayer := NewRelayerClient(RelayerConfig{
		BaseURL: srv.URL,
		Builder: crypto.APICredentials{Key: "b", Secret: "c2VjcmV0", Passphrase: "p"},
	}, discardLogger())
	_, err := relayer.Execute(context.Background(), ConditionalTokensAddress, []byte{1}, "test")
	if !errors.Is(err, domain.ErrSettlementFailed) {
		t.Fatalf("got err=%v want ErrSettlementFailed", err)
	}
}

func TestWSHandleMessage(t *testing.T) {
	w := NewWSClient("ws://unused", discardLogger())
	var got []domain.Quote
	w.OnQuote(func(q domain.Quote) { got = append(got, q) })

	w.handleMessage([]byte(`[{"event_type":"book","asset_id":"1","bids":[{"price":"0.30","size":"1"}],"asks":[{"price":"0.35","size":"1"}]}]`))
	w.handleMessage([]byte(`{"event_type":"price_change","price_changes":[{"asset_id":"2","best_bid":"0.60","best_ask":"0.62"},{"asset_id":"3","best_bid":"","best_ask":"0.5"}]}`))
	w.handleMessage([]byte(`{"event_type":"last_trade_price","asset_id":"1","price":"0.31"}`))

	if len(got) != 2 {
		t.Fatalf("got %d quotes want 2: %+v", len(got), got)
	}
	if got[0].TokenID != "1" || got[0].Bid != 0.30 || got[0].Ask != 0.35 {
		t.Fatalf("book quote: got %+v", got[0])
	}
	if got[1].TokenID != "2" || got[1].Bid != 0.60 || got[1].Ask != 0.62 {
		t.Fatalf("price_change quote: got %+v", got[1])
	}
}

package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"option-taker/internal/core"
)

func TestSignKnownVector(t *testing.T) {
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	params.Set("timestamp", "1000")
	query, sig := Sign("s", params)
	if query != "symbol=BTCUSDT&timestamp=1000" {
		t.Fatalf("query = %q, want %q", query, "symbol=BTCUSDT&timestamp=1000")
	}
	// HMAC-SHA256("s", "symbol=BTCUSDT&timestamp=1000"), computed externally.
	want := "bcd2b335335f2562844cb60ffecd121cce7e94924b5d4f9496d7bdcf084e9da2"
	if sig != want {
		t.Fatalf("signature = %q, want %q", sig, want)
	}
}

func TestSignExcludesEmptyValues(t *testing.T) {
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	params.Set("orderId", "")
	params.Set("timestamp", "1000")
	query, _ := Sign("s", params)
	if strings.Contains(query, "orderId") {
		t.Fatalf("query = %q, should exclude empty-valued keys", query)
	}
}

func TestSignDeterministicOrdering(t *testing.T) {
	a := url.Values{}
	a.Set("timestamp", "1000")
	a.Set("symbol", "BTCUSDT")
	a.Set("side", "SELL")
	b := url.Values{}
	b.Set("side", "SELL")
	b.Set("symbol", "BTCUSDT")
	b.Set("timestamp", "1000")
	queryA, sigA := Sign("secret", a)
	queryB, sigB := Sign("secret", b)
	if queryA != queryB || sigA != sigB {
		t.Fatalf("Sign not deterministic: %q/%q vs %q/%q", queryA, sigA, queryB, sigB)
	}
	if queryA != "side=SELL&symbol=BTCUSDT&timestamp=1000" {
		t.Fatalf("query = %q, keys should be sorted", queryA)
	}
}

func TestCanonicalQueryEscapes(t *testing.T) {
	params := url.Values{}
	params.Set("note", "a b&c")
	got := canonicalQuery(params)
	if got != "note=a+b%26c" {
		t.Fatalf("canonicalQuery() = %q, want %q", got, "note=a+b%26c")
	}
}

func TestPreviewBodyKeepsRunesWhole(t *testing.T) {
	short := previewBody([]byte("  plain  "))
	if short != "plain" {
		t.Fatalf("previewBody() = %q, want trimmed %q", short, "plain")
	}
	// 300 bytes of 3-byte runes: the 256-byte cut lands mid-rune.
	long := previewBody([]byte(strings.Repeat("啊", 100)))
	if len(long) > 256 {
		t.Fatalf("previewBody() len = %d, want <= 256", len(long))
	}
	if !utf8.ValidString(long) {
		t.Fatalf("previewBody() split a rune: %q", long)
	}
}

func TestNormalizeClientOrderPrefix(t *testing.T) {
	if got := normalizeClientOrderPrefix(" Taker_A1 "); got != "taker_a1" {
		t.Fatalf("normalizeClientOrderPrefix() = %q, want %q", got, "taker_a1")
	}
	if got := normalizeClientOrderPrefix("!!!"); got != "tk" {
		t.Fatalf("normalizeClientOrderPrefix() = %q, want %q", got, "tk")
	}
	long := strings.Repeat("a", 30)
	if got := normalizeClientOrderPrefix(long); len(got) != 12 {
		t.Fatalf("normalizeClientOrderPrefix(long) len = %d, want 12", len(got))
	}
}

func TestOwnsClientID(t *testing.T) {
	c := NewClientWithOptions(Options{ClientOrderPrefix: "taker-1"})
	id := c.NewClientOrderID()
	if !c.OwnsClientID(id) {
		t.Fatalf("OwnsClientID(%q) = false, want true", id)
	}
	if c.OwnsClientID("other-abc") {
		t.Fatalf("OwnsClientID(other-abc) = true, want false")
	}
	if c.OwnsClientID("") {
		t.Fatalf("OwnsClientID(empty) = true, want false")
	}
	other := c.NewClientOrderID()
	if id == other {
		t.Fatalf("NewClientOrderID() produced duplicate id %q", id)
	}
}

// The string the server receives must verify against the secret exactly as
// transmitted, with the signature as the final parameter.
func TestSignedRequestTransmitsSignedBytes(t *testing.T) {
	const secret = "test-secret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "k" {
			t.Errorf("missing api key header")
		}
		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		if idx < 0 {
			t.Errorf("raw query %q missing trailing signature", raw)
		}
		payload, sig := raw[:idx], raw[idx+len("&signature="):]
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(payload))
		if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
			t.Errorf("signature %q does not verify over transmitted bytes %q", sig, payload)
		}
		values, err := url.ParseQuery(payload)
		if err != nil {
			t.Errorf("payload unparseable: %v", err)
		}
		if values.Get("timestamp") == "" {
			t.Errorf("payload %q missing timestamp", payload)
		}
		if values.Get("recvWindow") != "5000" {
			t.Errorf("recvWindow = %q, want 5000", values.Get("recvWindow"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{
		APIKey:         "k",
		APISecret:      secret,
		OptionsBaseURL: srv.URL,
		RecvWindowMs:   5000,
	})
	if _, err := c.OpenOrders(context.Background(), "ETH-250725-3600-C"); err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
}

func TestDepthParsesBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eapi/v1/depth" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("limit = %q, want 100", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte(`{"u":42,"T":1700000000000,"bids":[["100","1"]],"asks":[["101","2"]]}`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{OptionsBaseURL: srv.URL})
	book, err := c.Depth(context.Background(), "ETH-250725-3600-C", 100)
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if book.UpdateID != 42 {
		t.Fatalf("UpdateID = %d, want 42", book.UpdateID)
	}
	bid, ok := book.BestBid()
	if !ok || !bid.Price.Equal(decimal.RequireFromString("100")) || !bid.Qty.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("BestBid() = %+v/%v, want 100x1", bid, ok)
	}
	ask, ok := book.BestAsk()
	if !ok || !ask.Price.Equal(decimal.RequireFromString("101")) || !ask.Qty.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("BestAsk() = %+v/%v, want 101x2", ask, ok)
	}
	spread, ok := book.Spread()
	if !ok || !spread.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("Spread() = %s/%v, want 1", spread, ok)
	}
}

func TestDoRequestClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"empty 200 body", http.StatusOK, "", core.ErrEmptyResponse},
		{"empty 202 body", http.StatusAccepted, "   ", core.ErrEmptyResponse},
		{"invalid json", http.StatusOK, "<html>blocked</html>", core.ErrDecode},
		{"unauthorized", http.StatusUnauthorized, `{"code":-2014,"msg":"API-key format invalid."}`, core.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, "", core.ErrForbidden},
		{"insufficient balance", http.StatusBadRequest, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`, core.ErrInsufficientBalance},
		{"order not found", http.StatusBadRequest, `{"code":-2013,"msg":"Order does not exist."}`, core.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			c := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", OptionsBaseURL: srv.URL})
			_, err := c.Depth(context.Background(), "ETH-250725-3600-C", 10)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Depth() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDoRequestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClientWithOptions(Options{OptionsBaseURL: srv.URL})
	_, err := c.Depth(context.Background(), "ETH-250725-3600-C", 10)
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("Depth() error = %v, want ErrTransport", err)
	}
	if !core.Retryable(err) {
		t.Fatalf("transport error should be retryable")
	}
}

func TestPlaceOrderRejectionInsideSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eapi/v1/order" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Duplicate order sent."}`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", OptionsBaseURL: srv.URL, ClientOrderPrefix: "t1"})
	_, err := c.PlaceOrder(context.Background(), core.OrderRequest{
		Symbol:      "ETH-250725-3600-C",
		Side:        core.Sell,
		Type:        core.Limit,
		Qty:         decimal.RequireFromString("1"),
		Price:       decimal.RequireFromString("100"),
		TimeInForce: core.GTC,
	})
	if !errors.Is(err, core.ErrDuplicateOrder) {
		t.Fatalf("PlaceOrder() error = %v, want ErrDuplicateOrder", err)
	}
	if !IsAPIErrorCode(err, -2010) {
		t.Fatalf("PlaceOrder() error = %v, want api code -2010", err)
	}
}

func TestPlaceOrderGeneratesClientID(t *testing.T) {
	var seenClientID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		seenClientID = values.Get("clientOrderId")
		_, _ = w.Write([]byte(`{"orderId":777,"symbol":"ETH-250725-3600-C","price":"101","quantity":"1","side":"SELL","type":"LIMIT","status":"ACCEPTED","clientOrderId":"` + seenClientID + `"}`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", OptionsBaseURL: srv.URL, ClientOrderPrefix: "taker-1"})
	got, err := c.PlaceOrder(context.Background(), core.OrderRequest{
		Symbol:      "ETH-250725-3600-C",
		Side:        core.Sell,
		Type:        core.Limit,
		Qty:         decimal.RequireFromString("1"),
		Price:       decimal.RequireFromString("101"),
		TimeInForce: core.GTC,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if got.OrderID != 777 {
		t.Fatalf("order id = %d, want 777", got.OrderID)
	}
	if seenClientID == "" {
		t.Fatalf("clientOrderId should be auto generated")
	}
	if !c.OwnsClientID(seenClientID) {
		t.Fatalf("generated client id %q not owned by prefix", seenClientID)
	}
	if got.Status != core.OrderAccepted {
		t.Fatalf("status = %q, want ACCEPTED", got.Status)
	}
}

func TestOrderHistoryMapsStatusAndAbsQty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eapi/v1/historyOrders" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("orderId"); got != "42" {
			t.Errorf("orderId = %q, want 42", got)
		}
		// The options API reports sell quantities as negatives.
		_, _ = w.Write([]byte(`[{"orderId":42,"symbol":"ETH-250725-3600-C","price":"101","quantity":"-1","executedQty":"-1","side":"SELL","type":"LIMIT","status":"FILLED"}]`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", OptionsBaseURL: srv.URL})
	orders, err := c.OrderHistory(context.Background(), "ETH-250725-3600-C", 42)
	if err != nil {
		t.Fatalf("OrderHistory() error = %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("len(orders) = %d, want 1", len(orders))
	}
	if orders[0].Status != core.OrderFilled {
		t.Fatalf("status = %q, want FILLED", orders[0].Status)
	}
	if !orders[0].ExecutedQty.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("ExecutedQty = %s, want 1", orders[0].ExecutedQty)
	}
}

func TestContractRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eapi/v1/exchangeInfo" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"optionSymbols":[{"symbol":"ETH-250725-3600-C","underlying":"ETHUSDT","strikePrice":"3600","side":"CALL","filters":[{"filterType":"LOT_SIZE","minQty":"0.01","stepSize":"0.01"},{"filterType":"PRICE_FILTER","tickSize":"0.1"}]}]}`))
	}))
	defer srv.Close()

	c := NewClientWithOptions(Options{OptionsBaseURL: srv.URL})
	rules, err := c.ContractRules(context.Background(), "ETH-250725-3600-C")
	if err != nil {
		t.Fatalf("ContractRules() error = %v", err)
	}
	if !rules.MinQty.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("MinQty = %s, want 0.01", rules.MinQty)
	}
	if !rules.QtyStep.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("QtyStep = %s, want 0.01", rules.QtyStep)
	}
	if !rules.PriceTick.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("PriceTick = %s, want 0.1", rules.PriceTick)
	}

	if _, err := c.ContractRules(context.Background(), "ETH-250725-9999-C"); err == nil {
		t.Fatalf("ContractRules(unlisted) error = nil, want error")
	}
}

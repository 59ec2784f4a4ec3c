package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"nft_market/internal/domain"
	"nft_market/internal/engine"
	"nft_market/internal/infra"
	"nft_market/internal/infra/storage"
	"nft_market/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	marketAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	egoAddr    = common.HexToAddress("0x2000000000000000000000000000000000000001")
	reqAddr    = common.HexToAddress("0x3000000000000000000000000000000000000001")
	creator    = common.HexToAddress("0xcc00000000000000000000000000000000000000")

	adminKey    = testKey(0x0a)
	sellerKey   = testKey(0xa0)
	buyerKey    = testKey(0xa1)
	attackerKey = testKey(0xee)

	admin    = crypto.PubkeyToAddress(adminKey.PublicKey)
	seller   = crypto.PubkeyToAddress(sellerKey.PublicKey)
	buyer    = crypto.PubkeyToAddress(buyerKey.PublicKey)
	attacker = crypto.PubkeyToAddress(attackerKey.PublicKey)

	testKeys = map[common.Address]*ecdsa.PrivateKey{
		admin:    adminKey,
		seller:   sellerKey,
		buyer:    buyerKey,
		attacker: attackerKey,
	}
)

func testKey(n byte) *ecdsa.PrivateKey {
	raw := make([]byte, 32)
	raw[31] = n
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		panic(err)
	}
	return key
}

const testAPIKey = "secret"

type testServer struct {
	handler http.Handler
	store   *storage.Storage
	nonces  map[common.Address]uint64
}

func newTestServer(t *testing.T, apiKey string, withStore bool) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env, err := engine.NewEnv(engine.Genesis{
		Market:      marketAddr,
		Admin:       admin,
		FeeBps:      500,
		Tokens:      []engine.GenesisToken{{Address: egoAddr, Symbol: "EGO"}},
		Collections: []engine.GenesisCollection{{Address: reqAddr, Name: "ERC721ReqCreator", RoyaltyReceiver: creator, RoyaltyBps: 750}},
		AcceptedTokens: []engine.GenesisListing{
			{Token: egoAddr, Mode: domain.TokenFeeApplies},
		},
		Balances: []engine.GenesisBalance{
			{Token: egoAddr, Account: buyer, Amount: units.Ether("100")},
		},
	}, logger)
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}

	ts := &testServer{nonces: make(map[common.Address]uint64)}
	opts := engine.Options{Metrics: &infra.Metrics{}, Logger: logger, VerifyInvariants: true}
	var logs LogStore
	if withStore {
		st, err := storage.NewStorage(filepath.Join(t.TempDir(), "market.db"))
		if err != nil {
			t.Fatalf("NewStorage failed: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		ts.store = st
		opts.Store = st
		logs = st
	}

	seq := engine.NewSequencer(env, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		seq.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := NewServer(Config{Addr: ":0", APIKey: apiKey}, seq, logs, nil, &infra.Metrics{}, logger)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

type receiptView struct {
	Seq    uint64 `json:"seq"`
	Hash   string `json:"hash"`
	Status uint8  `json:"status"`
	Error  string `json:"error"`
	Logs   []struct {
		Type string `json:"type"`
	} `json:"logs"`
}

// signed builds a transaction from the test account from, signed with its
// next nonce.
func (ts *testServer) signed(t *testing.T, from common.Address, method string, params map[string]any) engine.Tx {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	tx, err := engine.SignTx(engine.Tx{Nonce: ts.nonces[from], Method: method, Params: raw}, marketAddr, testKeys[from])
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	ts.nonces[from]++
	return tx
}

func (ts *testServer) submit(t *testing.T, from common.Address, method string, params map[string]any) receiptView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/tx", ts.signed(t, from, method, params), testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: status %d: %s", method, rec.Code, rec.Body.String())
	}
	var r receiptView
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	rec := ts.do(t, http.MethodGet, "/api/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestServer_Auth(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", testAPIKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/methods", nil, tt.key)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("X-API-Key header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/methods", nil)
		req.Header.Set("X-API-Key", testAPIKey)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestServer_FixedPriceFlow(t *testing.T) {
	ts := newTestServer(t, testAPIKey, true)

	ts.submit(t, admin, engine.MethodItemMint, map[string]any{"collection": reqAddr, "to": seller, "itemId": "1"})
	ts.submit(t, seller, engine.MethodItemSetApprovalForAll, map[string]any{"collection": reqAddr, "operator": marketAddr, "approved": true})
	ts.submit(t, buyer, engine.MethodTokenApprove, map[string]any{"token": egoAddr, "spender": marketAddr, "amount": units.Ether("100").Dec()})

	r := ts.submit(t, seller, engine.MethodListFixedPrice, map[string]any{
		"collection": reqAddr, "itemId": "1", "price": units.Ether("10").Dec(), "paymentToken": egoAddr,
	})
	if r.Status != 1 {
		t.Fatalf("listing reverted: %s", r.Error)
	}

	rec := ts.do(t, http.MethodGet, "/api/items/"+reqAddr.Hex()+"/1", nil, testAPIKey)
	var item struct {
		Owner  string `json:"owner"`
		Active string `json:"active"`
		Item   struct {
			IsActive bool `json:"isActive"`
		} `json:"item"`
	}
	decode(t, rec, &item)
	if item.Active != domain.SaleFixedPrice.String() || !item.Item.IsActive {
		t.Errorf("item = %+v", item)
	}
	if !strings.EqualFold(item.Owner, marketAddr.Hex()) {
		t.Errorf("owner = %s, want market escrow", item.Owner)
	}

	r = ts.submit(t, buyer, engine.MethodBuyFixedPrice, map[string]any{"collection": reqAddr, "itemId": "1"})
	if r.Status != 1 {
		t.Fatalf("buy reverted: %s", r.Error)
	}

	t.Run("second buy reverts with 200", func(t *testing.T) {
		r := ts.submit(t, buyer, engine.MethodBuyFixedPrice, map[string]any{"collection": reqAddr, "itemId": "1"})
		if r.Status != 0 || !strings.Contains(r.Error, domain.ErrItemDidNotListed.Error()) {
			t.Errorf("receipt = %+v", r)
		}
		if len(r.Logs) != 0 {
			t.Errorf("reverted receipt has %d logs", len(r.Logs))
		}
	})

	t.Run("collected fee", func(t *testing.T) {
		var fee struct {
			Formatted string `json:"formatted"`
		}
		decode(t, ts.do(t, http.MethodGet, "/api/fees/"+egoAddr.Hex(), nil, testAPIKey), &fee)
		if fee.Formatted != "0.5" {
			t.Errorf("collected fee = %s, want 0.5", fee.Formatted)
		}
	})

	t.Run("tx lookup", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/tx/"+r.Hash, nil, testAPIKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var tx domain.TxRecord
		decode(t, rec, &tx)
		if tx.Seq != r.Seq || tx.Method != engine.MethodBuyFixedPrice {
			t.Errorf("tx = %+v", tx)
		}

		rec = ts.do(t, http.MethodGet, "/api/tx/0xdead", nil, testAPIKey)
		if rec.Code != http.StatusNotFound {
			t.Errorf("unknown hash status = %d", rec.Code)
		}
	})

	t.Run("log index", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/logs?name=FixedPriceMarketItemBought", nil, testAPIKey)
		var logs []struct {
			Seq  uint64 `json:"seq"`
			Name string `json:"name"`
		}
		decode(t, rec, &logs)
		if len(logs) != 1 || logs[0].Seq != r.Seq {
			t.Errorf("logs = %+v", logs)
		}

		rec = ts.do(t, http.MethodGet, "/api/logs?from_seq=x", nil, testAPIKey)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("bad from_seq status = %d", rec.Code)
		}
	})
}

func TestServer_SubmitRejected(t *testing.T) {
	ts := newTestServer(t, "", false)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown method", `{"from":"` + buyer.Hex() + `","method":"market.nope"}`},
		{"bad params", `{"from":"` + buyer.Hex() + `","method":"market.bid","params":{"amount":"x"}}`},
		{"missing sender", `{"method":"market.bid","params":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tx", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}

	var health map[string]any
	decode(t, ts.do(t, http.MethodGet, "/api/health", nil, ""), &health)
	if health["next_seq"] != float64(1) {
		t.Errorf("rejected txs should not be sequenced, next_seq = %v", health["next_seq"])
	}
}

func TestServer_ForgedSenderRejected(t *testing.T) {
	ts := newTestServer(t, "", false)

	grant := map[string]any{"role": "ADMIN_ROLE", "account": attacker}
	mint := map[string]any{"token": egoAddr, "to": attacker, "amount": units.Ether("1000").Dec()}

	// The attacker signs with their own key and claims to be admin.
	forge := func(method string, params map[string]any) engine.Tx {
		tx := ts.signed(t, attacker, method, params)
		tx.From = admin
		return tx
	}
	unsigned := func(method string, params map[string]any) map[string]any {
		return map[string]any{"from": admin, "method": method, "params": params}
	}

	tests := []struct {
		name string
		body any
	}{
		{"grant role, forged from", forge(engine.MethodGrantRole, grant)},
		{"mint, forged from", forge(engine.MethodTokenMint, mint)},
		{"grant role, unsigned", unsigned(engine.MethodGrantRole, grant)},
		{"mint, unsigned", unsigned(engine.MethodTokenMint, mint)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/tx", tt.body, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401: %s", rec.Code, rec.Body.String())
			}
		})
	}

	var health map[string]any
	decode(t, ts.do(t, http.MethodGet, "/api/health", nil, ""), &health)
	if health["next_seq"] != float64(1) {
		t.Errorf("forged txs were sequenced, next_seq = %v", health["next_seq"])
	}

	var bal map[string]any
	decode(t, ts.do(t, http.MethodGet, "/api/balances/"+egoAddr.Hex()+"/"+attacker.Hex(), nil, ""), &bal)
	if bal["balance"] != "0" {
		t.Errorf("attacker balance = %v", bal["balance"])
	}

	// Signed honestly, the attacker holds no role: the mint reverts.
	ts.nonces[attacker] = 0
	r := ts.submit(t, attacker, engine.MethodTokenMint, mint)
	if r.Status != 0 {
		t.Errorf("mint by non-admin committed: %+v", r)
	}
}

func TestServer_Nonces(t *testing.T) {
	ts := newTestServer(t, "", false)

	nonceOf := func(account common.Address) float64 {
		var body map[string]any
		decode(t, ts.do(t, http.MethodGet, "/api/nonces/"+account.Hex(), nil, ""), &body)
		n, _ := body["nonce"].(float64)
		return n
	}

	if n := nonceOf(buyer); n != 0 {
		t.Fatalf("initial nonce = %v", n)
	}

	tx := ts.signed(t, buyer, engine.MethodTokenApprove, map[string]any{"token": egoAddr, "spender": marketAddr, "amount": "1"})
	if rec := ts.do(t, http.MethodPost, "/api/tx", tx, ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := nonceOf(buyer); n != 1 {
		t.Errorf("nonce after one tx = %v, want 1", n)
	}

	t.Run("replayed tx", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/tx", tx, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409: %s", rec.Code, rec.Body.String())
		}
		if n := nonceOf(buyer); n != 1 {
			t.Errorf("nonce after replay = %v, want 1", n)
		}
	})

	t.Run("bad account", func(t *testing.T) {
		if rec := ts.do(t, http.MethodGet, "/api/nonces/0x12", nil, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestServer_Views(t *testing.T) {
	ts := newTestServer(t, "", false)

	t.Run("auction of unknown item", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/auctions/"+reqAddr.Hex()+"/5", nil, "")
		var a struct {
			State string `json:"state"`
		}
		decode(t, rec, &a)
		if a.State != domain.AuctionNotStarted.String() {
			t.Errorf("state = %q", a.State)
		}
	})

	t.Run("token mode", func(t *testing.T) {
		var body map[string]any
		decode(t, ts.do(t, http.MethodGet, "/api/tokens/"+egoAddr.Hex(), nil, ""), &body)
		if body["accepted"] != true || body["mode"] != domain.TokenFeeApplies.String() {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("balance", func(t *testing.T) {
		var body map[string]any
		decode(t, ts.do(t, http.MethodGet, "/api/balances/"+egoAddr.Hex()+"/"+buyer.Hex(), nil, ""), &body)
		if body["balance"] != units.Ether("100").Dec() {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		paths := []string{
			"/api/items/nothex/1",
			"/api/items/" + reqAddr.Hex() + "/abc",
			"/api/fees/0x12",
		}
		for _, p := range paths {
			if rec := ts.do(t, http.MethodGet, p, nil, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d", p, rec.Code)
			}
		}
		if rec := ts.do(t, http.MethodGet, "/api/balances/"+creator.Hex()+"/"+buyer.Hex(), nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("unknown token status = %d", rec.Code)
		}
	})

	t.Run("storage disabled", func(t *testing.T) {
		if rec := ts.do(t, http.MethodGet, "/api/logs", nil, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

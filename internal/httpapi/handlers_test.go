package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"vaultbid.org/internal/auction"
	"vaultbid.org/internal/auth"
	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/stream"
	"vaultbid.org/internal/valuation"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	clock  *fakeClock
	assets *escrow.Table
	bank   *funds.InMemory
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("VAULTBID_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	assets := escrow.NewTable()
	bank := funds.NewInMemory()
	hub := stream.New()
	engine := auction.NewEngine(assets, bank, hub, auction.Config{
		MinIncrement: 1,
		BidWindow:    10 * time.Minute,
		Now:          clock.Now,
	})

	api := New(ReadyProbe{}, "test", engine, bank, hub, nil, valuation.Static{PerAsset: 100})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		clock:   clock,
		assets:  assets,
		bank:    bank,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(address string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"address": address}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

func (c *apiClient) mint(holder string, refs ...escrow.AssetRef) ([]string, []uint64) {
	c.t.Helper()
	collections := make([]string, len(refs))
	tokenIDs := make([]uint64, len(refs))
	for i, ref := range refs {
		if err := c.assets.Mint(holder, ref); err != nil {
			c.t.Fatalf("mint %s: %v", ref, err)
		}
		collections[i] = ref.Collection
		tokenIDs[i] = ref.TokenID
	}
	return collections, tokenIDs
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func vaultPath(id uint64, rest string) string {
	p := "/v1/vaults/" + strconv.FormatUint(id, 10)
	if rest != "" {
		p += "/" + rest
	}
	return p
}

func TestFullAuctionFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	sellerAuth := api.obtainToken("seller")
	aliceAuth := api.obtainToken("alice")
	bobAuth := api.obtainToken("bob")

	cols, toks := api.mint("seller",
		escrow.AssetRef{Kind: escrow.KindUnique, Collection: "col-a", TokenID: 1},
		escrow.AssetRef{Kind: escrow.KindUnique, Collection: "col-b", TokenID: 2},
	)

	// Create the vault.
	resp := api.post("/v1/vaults", map[string]any{
		"collections": cols,
		"token_ids":   toks,
		"name":        "genesis",
		"description": "two assets",
	}, sellerAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create vault status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatal("missing Location header")
	}
	created := decode[createVaultResponse](t, resp)
	id := created.VaultID

	// Schedule: appraisal echoed in the response.
	resp = api.post(vaultPath(id, "auction"), map[string]any{
		"start_price":      100,
		"duration_seconds": 3600,
	}, sellerAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create auction status: %d", resp.StatusCode)
	}
	scheduled := decode[createAuctionResponse](t, resp)
	if scheduled.SuggestedStartPrice != 200 {
		t.Fatalf("expected appraisal of 200, got %d", scheduled.SuggestedStartPrice)
	}

	// Start.
	resp = api.post(vaultPath(id, "auction/start"), nil, sellerAuth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start auction status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Fund the bidders through the API.
	for bidder, hdr := range map[string]map[string]string{"alice": aliceAuth, "bob": bobAuth} {
		resp = api.post("/v1/funds/deposit", map[string]any{"amount": 1000}, hdr)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("deposit for %s status: %d", bidder, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Wrong amount is rejected with a stable code.
	resp = api.post(vaultPath(id, "bids"), map[string]any{"amount": 150}, aliceAuth)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("overbid status: %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["code"] != "invalid_bid_amount" {
		t.Fatalf("unexpected error code: %v", errBody["code"])
	}

	// Exact increment bids.
	resp = api.post(vaultPath(id, "bids"), map[string]any{"amount": 101}, aliceAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("alice bid status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.post(vaultPath(id, "bids"), map[string]any{"amount": 102}, bobAuth)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bob bid status: %d", resp.StatusCode)
	}
	state := decode[auction.Auction](t, resp)
	if state.HighestBidder != "bob" || state.CurrentBid != 102 {
		t.Fatalf("unexpected auction state: %#v", state)
	}

	// Alice was refunded automatically.
	if bal, _ := api.bank.Balance(t.Context(), "alice"); bal != 1000 {
		t.Fatalf("alice balance=%d, want 1000", bal)
	}

	// Early settlement is rejected.
	resp = api.post(vaultPath(id, "settle"), nil, aliceAuth)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("early settle status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Past the deadline anyone can settle.
	api.clock.Advance(2 * time.Hour)
	resp = api.post(vaultPath(id, "settle"), nil, aliceAuth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle status: %d", resp.StatusCode)
	}
	settlement := decode[auction.Settlement](t, resp)
	if !settlement.Sold || settlement.Winner != "bob" || settlement.Amount != 102 {
		t.Fatalf("unexpected settlement: %#v", settlement)
	}
	if bal, _ := api.bank.Balance(t.Context(), "seller"); bal != 102 {
		t.Fatalf("seller balance=%d, want 102", bal)
	}

	// Reads are public.
	resp = api.get(vaultPath(id, ""), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get vault status: %d", resp.StatusCode)
	}
	vault := decode[auction.Vault](t, resp)
	if vault.Status != auction.StatusEnded {
		t.Fatalf("vault status=%s, want ended", vault.Status)
	}
}

func TestReadEndpoints(t *testing.T) {
	api := newTestAPI(t)
	sellerAuth := api.obtainToken("seller")

	cols, toks := api.mint("seller", escrow.AssetRef{Kind: escrow.KindUnique, Collection: "col-a", TokenID: 7})
	resp := api.post("/v1/vaults", map[string]any{"collections": cols, "token_ids": toks}, sellerAuth)
	created := decode[createVaultResponse](t, resp)
	id := created.VaultID

	resp = api.post(vaultPath(id, "auction"), map[string]any{"start_price": 50, "duration_seconds": 600}, sellerAuth)
	resp.Body.Close()
	resp = api.post(vaultPath(id, "auction/start"), nil, sellerAuth)
	resp.Body.Close()

	resp = api.get(vaultPath(id, "assets"), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assets status: %d", resp.StatusCode)
	}
	assets := decode[map[string]any](t, resp)
	if len(assets["assets"].([]any)) != 1 {
		t.Fatalf("unexpected assets payload: %v", assets)
	}

	resp = api.get(vaultPath(id, "auction/timing"), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("timing status: %d", resp.StatusCode)
	}
	timing := decode[auction.Timing](t, resp)
	if !timing.Active || timing.BidWindow != 10*time.Minute {
		t.Fatalf("unexpected timing: %#v", timing)
	}

	resp = api.get(vaultPath(id, "summary"), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status: %d", resp.StatusCode)
	}
	summary := decode[auction.Summary](t, resp)
	if !summary.Live || summary.MinimumPrice != 51 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	resp = api.get("/v1/auctions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("auctions index status: %d", resp.StatusCode)
	}
	index := decode[map[string]any](t, resp)
	if len(index["vault_ids"].([]any)) != 1 {
		t.Fatalf("unexpected index: %v", index)
	}

	// Unknown vault maps to 404 with a stable code.
	resp = api.get("/v1/vaults/9999", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown vault status: %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["code"] != "vault_not_found" {
		t.Fatalf("unexpected code: %v", errBody["code"])
	}

	// Events endpoint reports a disabled journal.
	resp = api.get(vaultPath(id, "events"), nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("events status without journal: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/vaults", map[string]any{
		"collections": []string{"col-a"},
		"token_ids":   []uint64{1},
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestNotSellerIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	sellerAuth := api.obtainToken("seller")
	otherAuth := api.obtainToken("other")

	cols, toks := api.mint("seller", escrow.AssetRef{Kind: escrow.KindUnique, Collection: "col-a", TokenID: 1})
	resp := api.post("/v1/vaults", map[string]any{"collections": cols, "token_ids": toks}, sellerAuth)
	created := decode[createVaultResponse](t, resp)

	resp = api.post(vaultPath(created.VaultID, "cancel"), nil, otherAuth)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	errBody := decode[map[string]any](t, resp)
	if errBody["code"] != "not_seller" {
		t.Fatalf("unexpected code: %v", errBody["code"])
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"address": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "vaultbid-api" {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = api.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

package valuation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vaultbid.org/internal/escrow"
)

func TestHTTPAdvisor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		var req appraiseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Assets) != 2 {
			t.Errorf("expected 2 assets, got %d", len(req.Assets))
		}
		json.NewEncoder(w).Encode(Appraisal{SuggestedStartPrice: 750, RiskFlags: []string{"thin_market"}})
	}))
	defer srv.Close()

	advisor := HTTPAdvisor{Endpoint: srv.URL, APIKey: "test-key", Client: srv.Client()}
	got, err := advisor.Appraise(context.Background(), []escrow.AssetRef{
		{Kind: escrow.KindUnique, Collection: "col-a", TokenID: 1},
		{Kind: escrow.KindUnique, Collection: "col-b", TokenID: 2},
	})
	if err != nil {
		t.Fatalf("Appraise: %v", err)
	}
	if got.SuggestedStartPrice != 750 || len(got.RiskFlags) != 1 {
		t.Fatalf("unexpected appraisal: %#v", got)
	}
}

func TestHTTPAdvisorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	advisor := HTTPAdvisor{Endpoint: srv.URL, Client: srv.Client()}
	if _, err := advisor.Appraise(context.Background(), []escrow.AssetRef{{Collection: "col-a", TokenID: 1}}); err == nil {
		t.Fatal("expected error from 502 response")
	}
	if _, err := (HTTPAdvisor{}).Appraise(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestStaticAdvisor(t *testing.T) {
	got, err := Static{PerAsset: 200}.Appraise(context.Background(), []escrow.AssetRef{
		{Collection: "col-a", TokenID: 1},
		{Collection: "col-a", TokenID: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.SuggestedStartPrice != 400 {
		t.Fatalf("suggested=%d, want 400", got.SuggestedStartPrice)
	}
	if len(got.RiskFlags) != 1 || got.RiskFlags[0] != "single_collection_concentration" {
		t.Fatalf("unexpected flags: %v", got.RiskFlags)
	}

	if _, err := (Static{}).Appraise(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty bundle")
	}
}

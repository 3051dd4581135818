// Package valuation provides pre-listing price guidance for asset bundles.
// Sellers query an advisor before scheduling an auction; the answer is
// advisory only and never enforced by the bidding engine.
package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vaultbid.org/internal/escrow"
)

// Appraisal is the advisor's answer for a bundle.
type Appraisal struct {
	SuggestedStartPrice uint64   `json:"suggested_start_price"`
	RiskFlags           []string `json:"risk_flags,omitzero"`
}

// Advisor estimates a starting price for a bundle of escrowed assets.
type Advisor interface {
	Appraise(ctx context.Context, assets []escrow.AssetRef) (Appraisal, error)
}

// HTTPAdvisor delegates appraisal to an external pricing service.
type HTTPAdvisor struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

type appraiseRequest struct {
	Assets []assetPayload `json:"assets"`
}

type assetPayload struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
}

func (a HTTPAdvisor) Appraise(ctx context.Context, assets []escrow.AssetRef) (Appraisal, error) {
	if a.Endpoint == "" {
		return Appraisal{}, errors.New("advisor endpoint is not configured")
	}
	if len(assets) == 0 {
		return Appraisal{}, errors.New("nothing to appraise")
	}
	payload := appraiseRequest{Assets: make([]assetPayload, len(assets))}
	for i, ref := range assets {
		payload.Assets[i] = assetPayload{Collection: ref.Collection, TokenID: ref.TokenID}
	}
	buf, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return Appraisal{}, err
	}
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Appraisal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Appraisal{}, fmt.Errorf("advisor error: %s", resp.Status)
	}
	var out Appraisal
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Appraisal{}, err
	}
	return out, nil
}

// Static prices every asset at a flat rate. Used when no external advisor
// is configured.
type Static struct {
	PerAsset uint64
}

func (s Static) Appraise(ctx context.Context, assets []escrow.AssetRef) (Appraisal, error) {
	if len(assets) == 0 {
		return Appraisal{}, errors.New("nothing to appraise")
	}
	perAsset := s.PerAsset
	if perAsset == 0 {
		perAsset = 100
	}
	appraisal := Appraisal{SuggestedStartPrice: perAsset * uint64(len(assets))}
	seen := make(map[string]int, len(assets))
	for _, ref := range assets {
		seen[ref.Collection]++
	}
	if len(seen) == 1 && len(assets) > 1 {
		appraisal.RiskFlags = append(appraisal.RiskFlags, "single_collection_concentration")
	}
	return appraisal, nil
}

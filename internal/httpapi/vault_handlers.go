package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vaultbid.org/internal/audit"
	"vaultbid.org/internal/auction"
	"vaultbid.org/internal/escrow"
	"vaultbid.org/internal/funds"
	"vaultbid.org/internal/obs"
)

type createVaultRequest struct {
	Collections []string `json:"collections"`
	TokenIDs    []uint64 `json:"token_ids"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
}

type createVaultResponse struct {
	VaultID uint64 `json:"vault_id"`
}

type createAuctionRequest struct {
	StartPrice      uint64 `json:"start_price"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type createAuctionResponse struct {
	VaultID             uint64   `json:"vault_id"`
	StartPrice          uint64   `json:"start_price"`
	DurationSeconds     int64    `json:"duration_seconds"`
	SuggestedStartPrice uint64   `json:"suggested_start_price,omitzero"`
	RiskFlags           []string `json:"risk_flags,omitzero"`
}

type bidRequest struct {
	Amount uint64 `json:"amount"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type refundResponse struct {
	VaultID uint64 `json:"vault_id"`
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

func (a *API) handleVaultsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createVault(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleAuctionIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ids, err := a.svc.ListAuctionIDs(r.Context())
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault_ids": ids,
		"as_of":     time.Now().UTC(),
	})
}

// handleVaultResource routes /v1/vaults/{id} and its subresources.
func (a *API) handleVaultResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/vaults/")
	if path == "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	idPart, rest, _ := strings.Cut(path, "/")
	vaultID, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "vault id must be numeric")
		return
	}

	switch rest {
	case "":
		a.requireMethod(w, r, http.MethodGet, func() { a.getVault(w, r, vaultID) })
	case "assets":
		a.requireMethod(w, r, http.MethodGet, func() { a.getVaultAssets(w, r, vaultID) })
	case "auction":
		switch r.Method {
		case http.MethodGet:
			a.getAuction(w, r, vaultID)
		case http.MethodPost:
			a.createAuction(w, r, vaultID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case "auction/start":
		a.requireMethod(w, r, http.MethodPost, func() { a.startAuction(w, r, vaultID) })
	case "auction/cancel":
		a.requireMethod(w, r, http.MethodPost, func() { a.cancelAuction(w, r, vaultID) })
	case "auction/timing":
		a.requireMethod(w, r, http.MethodGet, func() { a.getTiming(w, r, vaultID) })
	case "summary":
		a.requireMethod(w, r, http.MethodGet, func() { a.getSummary(w, r, vaultID) })
	case "cancel":
		a.requireMethod(w, r, http.MethodPost, func() { a.cancelVault(w, r, vaultID) })
	case "bids":
		a.requireMethod(w, r, http.MethodPost, func() { a.placeBid(w, r, vaultID) })
	case "settle":
		a.requireMethod(w, r, http.MethodPost, func() { a.settle(w, r, vaultID) })
	case "refunds":
		a.requireMethod(w, r, http.MethodGet, func() { a.getPendingRefund(w, r, vaultID) })
	case "refunds/claim":
		a.requireMethod(w, r, http.MethodPost, func() { a.claimRefund(w, r, vaultID) })
	case "events":
		a.requireMethod(w, r, http.MethodGet, func() { a.getVaultEvents(w, r, vaultID) })
	default:
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) requireMethod(w http.ResponseWriter, r *http.Request, method string, fn func()) {
	if r.Method != method {
		methodNotAllowed(w, r, method)
		return
	}
	fn()
}

func (a *API) createVault(w http.ResponseWriter, r *http.Request) {
	seller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	var req createVaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(req.Name) > 128 || len(req.Description) > 1024 {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", "name or description too long")
		return
	}

	id, err := a.svc.CreateVault(r.Context(), seller, req.Collections, req.TokenIDs, req.Name, req.Description)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}

	_ = audit.LogVaultEvent(r.Context(), "vault.create", id, map[string]any{
		"assets": len(req.Collections),
	})

	w.Header().Set("Location", "/v1/vaults/"+strconv.FormatUint(id, 10))
	writeJSON(w, http.StatusCreated, createVaultResponse{VaultID: id})
}

func (a *API) cancelVault(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	if err := a.svc.CancelVault(r.Context(), vaultID, caller); err != nil {
		handleAuctionError(w, r, err)
		return
	}
	_ = audit.LogVaultEvent(r.Context(), "vault.cancel", vaultID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"vault_id": vaultID, "status": auction.StatusCancelled})
}

func (a *API) createAuction(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	var req createAuctionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := a.svc.CreateAuction(r.Context(), vaultID, caller, req.StartPrice, duration); err != nil {
		handleAuctionError(w, r, err)
		return
	}

	resp := createAuctionResponse{
		VaultID:         vaultID,
		StartPrice:      req.StartPrice,
		DurationSeconds: req.DurationSeconds,
	}
	// Advisory only: appraisal failure never blocks scheduling.
	if a.advisor != nil {
		if vault, err := a.svc.GetVault(r.Context(), vaultID); err == nil {
			if appraisal, err := a.advisor.Appraise(r.Context(), vault.Assets); err == nil {
				resp.SuggestedStartPrice = appraisal.SuggestedStartPrice
				resp.RiskFlags = appraisal.RiskFlags
				if appraisal.SuggestedStartPrice > 0 && req.StartPrice > appraisal.SuggestedStartPrice {
					w.Header().Set("X-Valuation-Warning", "start price above appraisal")
				}
			}
		}
	}

	_ = audit.LogVaultEvent(r.Context(), "auction.schedule", vaultID, map[string]any{
		"start_price":      req.StartPrice,
		"duration_seconds": req.DurationSeconds,
	})
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) startAuction(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	if err := a.svc.StartAuction(r.Context(), vaultID, caller); err != nil {
		handleAuctionError(w, r, err)
		return
	}
	obs.AuctionStarted()
	_ = audit.LogVaultEvent(r.Context(), "auction.start", vaultID, nil)

	auc, err := a.svc.GetAuction(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auc)
}

func (a *API) cancelAuction(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	if err := a.svc.CancelAuction(r.Context(), vaultID, caller); err != nil {
		handleAuctionError(w, r, err)
		return
	}
	_ = audit.LogVaultEvent(r.Context(), "auction.cancel", vaultID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"vault_id": vaultID, "status": auction.StatusActive})
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	bidder, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := a.svc.Bid(r.Context(), vaultID, bidder, req.Amount); err != nil {
		obs.ObserveBidRejected(rejectionReason(err))
		handleAuctionError(w, r, err)
		return
	}
	obs.ObserveBidAccepted()

	_ = audit.LogVaultEvent(r.Context(), "auction.bid", vaultID, map[string]any{
		"amount": req.Amount,
	})

	auc, err := a.svc.GetAuction(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, auc)
}

func (a *API) settle(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	settlement, err := a.svc.EndAuction(r.Context(), vaultID, caller)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	obs.AuctionFinished()
	outcome := "unsold"
	if settlement.Sold {
		outcome = "sold"
	}
	obs.ObserveSettlement(outcome)

	_ = audit.LogVaultEvent(r.Context(), "auction.settle", vaultID, map[string]any{
		"sold":   settlement.Sold,
		"winner": settlement.Winner,
		"amount": settlement.Amount,
	})
	writeJSON(w, http.StatusOK, settlement)
}

func (a *API) getPendingRefund(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", "address query parameter is required")
		return
	}
	amount, err := a.svc.PendingRefund(r.Context(), vaultID, address)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{VaultID: vaultID, Address: address, Amount: amount})
}

func (a *API) claimRefund(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	claimant, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	amount, err := a.svc.ClaimRefund(r.Context(), vaultID, claimant)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	_ = audit.LogVaultEvent(r.Context(), "refund.claim", vaultID, map[string]any{
		"amount": amount,
	})
	writeJSON(w, http.StatusOK, refundResponse{VaultID: vaultID, Address: claimant, Amount: amount})
}

func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := a.callerAddress(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	balance, err := a.bank.Deposit(r.Context(), caller, req.Amount)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "funds.deposit", map[string]any{
		"amount":  req.Amount,
		"balance": balance,
	})
	writeJSON(w, http.StatusOK, map[string]any{"address": caller, "balance": balance})
}

func (a *API) getVault(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	v, err := a.svc.GetVault(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getVaultAssets(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	pairs, err := a.svc.GetVaultAssets(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vault_id": vaultID, "assets": pairs})
}

func (a *API) getAuction(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	auc, err := a.svc.GetAuction(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auc)
}

func (a *API) getTiming(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	timing, err := a.svc.GetAuctionTiming(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timing)
}

func (a *API) getSummary(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	summary, err := a.svc.GetAuctionSummary(r.Context(), vaultID)
	if err != nil {
		handleAuctionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) getVaultEvents(w http.ResponseWriter, r *http.Request, vaultID uint64) {
	if a.journal == nil {
		writeErrorCode(w, r, http.StatusServiceUnavailable, "journal_disabled", "event journal is not configured")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	events, err := a.journal.VaultEvents(r.Context(), vaultID, limit)
	if err != nil {
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "journal read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vault_id": vaultID, "items": events})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// rejectionReason labels a bid failure for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auction.ErrInvalidBidAmount):
		return "invalid_amount"
	case errors.Is(err, auction.ErrAuctionExpired):
		return "expired"
	case errors.Is(err, auction.ErrAuctionNotActive):
		return "not_active"
	case errors.Is(err, funds.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, auction.ErrReentrantCall):
		return "payout_in_flight"
	default:
		return "other"
	}
}

func handleAuctionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrVaultNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "vault_not_found", err.Error())
	case errors.Is(err, auction.ErrNotSeller):
		writeErrorCode(w, r, http.StatusForbidden, "not_seller", err.Error())
	case errors.Is(err, auction.ErrEmptyVault):
		writeErrorCode(w, r, http.StatusBadRequest, "empty_vault", err.Error())
	case errors.Is(err, auction.ErrLengthMismatch):
		writeErrorCode(w, r, http.StatusBadRequest, "length_mismatch", err.Error())
	case errors.Is(err, auction.ErrInvalidDuration):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, auction.ErrInvalidBidAmount):
		writeErrorCode(w, r, http.StatusConflict, "invalid_bid_amount", err.Error())
	case errors.Is(err, auction.ErrAuctionNotActive):
		writeErrorCode(w, r, http.StatusConflict, "auction_not_active", err.Error())
	case errors.Is(err, auction.ErrAuctionExpired):
		writeErrorCode(w, r, http.StatusConflict, "auction_expired", err.Error())
	case errors.Is(err, auction.ErrAuctionStillRunning):
		writeErrorCode(w, r, http.StatusConflict, "auction_still_running", err.Error())
	case errors.Is(err, auction.ErrInvalidState):
		writeErrorCode(w, r, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, auction.ErrReentrantCall):
		writeErrorCode(w, r, http.StatusConflict, "payout_in_flight", err.Error())
	case errors.Is(err, auction.ErrNoPendingRefund):
		writeErrorCode(w, r, http.StatusNotFound, "no_pending_refund", err.Error())
	case errors.Is(err, escrow.ErrUnknownAsset):
		writeErrorCode(w, r, http.StatusNotFound, "unknown_asset", err.Error())
	case errors.Is(err, escrow.ErrNotHolder):
		writeErrorCode(w, r, http.StatusForbidden, "not_asset_holder", err.Error())
	case errors.Is(err, escrow.ErrAlreadyInVault), errors.Is(err, escrow.ErrDuplicateAsset):
		writeErrorCode(w, r, http.StatusConflict, "asset_escrowed", err.Error())
	case errors.Is(err, funds.ErrInsufficientFunds):
		writeErrorCode(w, r, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.Is(err, funds.ErrUnknownAccount):
		writeErrorCode(w, r, http.StatusConflict, "unfunded_account", err.Error())
	case errors.Is(err, funds.ErrInvalidAmount), errors.Is(err, funds.ErrOverflow):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_amount", err.Error())
	default:
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeErrorCode(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

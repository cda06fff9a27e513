package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/state"
)

// SetDevPrice overrides a feed price. Registered in dev only.
func (h *Handler) SetDevPrice(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "PRICES_READ_ONLY", "price provider does not accept overrides")
		return
	}

	var req DevPriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	feed := strings.ToUpper(strings.TrimSpace(req.Feed))
	if feed == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "feed is required")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "price: invalid decimal")
		return
	}
	if err := calc.ValidateAmount(price, "price"); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}

	round := h.prices.SetPrice(feed, price)
	h.logger.Infow("Dev price override", "feed", feed, "price", price.String(), "round", round.RoundID)

	writeJSON(w, http.StatusOK, DevPriceResponse{
		Feed:      feed,
		RoundID:   round.RoundID,
		Answer:    round.Answer.String(),
		UpdatedAt: round.UpdatedAt.Unix(),
	})
}

// Faucet mints collateral tokens from the admin to the caller, or to the
// given recipient. Registered in dev only.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, amount, ok := h.assetAmount(w, req.Asset, req.Amount, "amount")
	if !ok {
		return
	}
	ledger, found := h.collateral[asset]
	if !found {
		writeError(w, http.StatusNotFound, "UNKNOWN_TOKEN", "unknown collateral token "+asset.Hex())
		return
	}
	to, ok := h.optionalAddress(w, req.To, "to", caller)
	if !ok {
		return
	}

	err := h.engine.Update(r.Context(), "faucet", func(ctx context.Context, mu state.Mutable) error {
		return ledger.Mint(ctx, mu, h.admin, to, amount)
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":  asset.Hex(),
		"to":     to.Hex(),
		"amount": formatAmount(amount, ledger.Decimals()),
	})
}

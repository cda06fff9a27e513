package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/engine"
	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/internal/token"
)

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, amount, ok := h.assetAmount(w, req.Asset, req.Amount, "amount")
	if !ok {
		return
	}
	h.respond(w, r, caller, h.engine.DepositCollateral(r.Context(), caller, asset, amount))
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	amount, ok := h.amount(w, req.Amount, stableDecimals, "amount")
	if !ok {
		return
	}
	h.respond(w, r, caller, h.engine.MintDebt(r.Context(), caller, amount))
}

func (h *Handler) DepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req DepositAndMintRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, collateral, ok := h.assetAmount(w, req.Asset, req.CollateralAmount, "collateralAmount")
	if !ok {
		return
	}
	debt, ok := h.amount(w, req.DebtAmount, stableDecimals, "debtAmount")
	if !ok {
		return
	}
	h.respond(w, r, caller, h.engine.DepositAndMint(r.Context(), caller, asset, collateral, debt))
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, amount, ok := h.assetAmount(w, req.Asset, req.Amount, "amount")
	if !ok {
		return
	}
	to, ok := h.optionalAddress(w, req.To, "to", caller)
	if !ok {
		return
	}
	h.respond(w, r, caller, h.engine.RedeemCollateral(r.Context(), caller, to, asset, amount))
}

func (h *Handler) Burn(w http.ResponseWriter, r *http.Request) {
	var req BurnRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	amount, ok := h.amount(w, req.Amount, stableDecimals, "amount")
	if !ok {
		return
	}
	onBehalfOf, ok := h.optionalAddress(w, req.OnBehalfOf, "onBehalfOf", caller)
	if !ok {
		return
	}
	err := h.engine.BurnDebt(r.Context(), caller, onBehalfOf, amount)
	h.respond(w, r, onBehalfOf, err)
}

func (h *Handler) RedeemAndBurn(w http.ResponseWriter, r *http.Request) {
	var req RedeemAndBurnRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, collateral, ok := h.assetAmount(w, req.Asset, req.CollateralAmount, "collateralAmount")
	if !ok {
		return
	}
	debt, ok := h.amount(w, req.DebtAmount, stableDecimals, "debtAmount")
	if !ok {
		return
	}
	h.respond(w, r, caller, h.engine.RedeemAndBurn(r.Context(), caller, asset, collateral, debt))
}

// Liquidate covers part of another user's debt with the caller's stable
// tokens in exchange for discounted collateral.
func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	asset, err := parseAddress(req.Asset, "asset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	user, err := parseAddress(req.User, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	debt, ok := h.amount(w, req.DebtToCover, stableDecimals, "debtToCover")
	if !ok {
		return
	}

	res, err := h.engine.Liquidate(r.Context(), caller, asset, user, debt)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationDTO(res, h.decimals(asset)))
}

// Approve sets the caller's allowance for the engine on the stable token or
// a collateral token.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	caller, ok := h.begin(w, r, &req)
	if !ok {
		return
	}
	addr, err := parseAddress(req.Token, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	ledger := h.ledgerFor(addr)
	if ledger == nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_TOKEN", "unknown token "+addr.Hex())
		return
	}

	var amount *uint256.Int
	if strings.EqualFold(req.Amount, "max") {
		amount = new(uint256.Int).SetAllOne()
	} else if amount, ok = h.amount(w, req.Amount, ledger.Decimals(), "amount"); !ok {
		return
	}

	err = h.engine.Update(r.Context(), "approve", func(ctx context.Context, mu state.Mutable) error {
		return ledger.Approve(ctx, mu, caller, h.engine.Address(), amount)
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	allowance := amount.Dec()
	if !amount.Eq(new(uint256.Int).SetAllOne()) {
		allowance = formatAmount(amount, ledger.Decimals())
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     addr.Hex(),
		"owner":     caller.Hex(),
		"spender":   h.engine.Address().Hex(),
		"allowance": allowance,
	})
}

func (h *Handler) ledgerFor(addr common.Address) *token.Ledger {
	if addr == h.stable.Address() {
		return h.stable
	}
	return h.collateral[addr]
}

// begin reads the caller header and decodes the request body.
func (h *Handler) begin(w http.ResponseWriter, r *http.Request, req any) (common.Address, bool) {
	caller, err := parseAddress(r.Header.Get(HeaderUserAddress), HeaderUserAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_CALLER", err.Error())
		return common.Address{}, false
	}
	if !decodeJSON(w, r, req) {
		return common.Address{}, false
	}
	return caller, true
}

func (h *Handler) amount(w http.ResponseWriter, raw string, decimals uint8, field string) (*uint256.Int, bool) {
	v, err := parseAmount(raw, decimals, field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return nil, false
	}
	return v, true
}

// assetAmount parses an asset address and an amount in that asset's units.
// Unknown assets are left for the engine to reject.
func (h *Handler) assetAmount(w http.ResponseWriter, rawAsset, rawAmount, field string) (common.Address, *uint256.Int, bool) {
	asset, err := parseAddress(rawAsset, "asset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return common.Address{}, nil, false
	}
	amount, ok := h.amount(w, rawAmount, h.decimals(asset), field)
	return asset, amount, ok
}

func (h *Handler) optionalAddress(w http.ResponseWriter, raw, field string, fallback common.Address) (common.Address, bool) {
	if raw == "" {
		return fallback, true
	}
	addr, err := parseAddress(raw, field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return common.Address{}, false
	}
	return addr, true
}

// respond writes the account of user after a successful mutation.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, user common.Address, err error) {
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dto, err := h.account(r.Context(), user)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OperationResponse{Status: "ok", Account: dto})
}

// statusForError maps an engine error onto an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch engine.Classify(err) {
	case engine.ClassValidation:
		for _, c := range []struct {
			err  error
			code string
		}{
			{engine.ErrAmountMustBePositive, "AMOUNT_MUST_BE_POSITIVE"},
			{engine.ErrAssetNotAllowed, "ASSET_NOT_ALLOWED"},
			{engine.ErrZeroAddress, "ZERO_ADDRESS"},
			{engine.ErrInsufficientCollateral, "INSUFFICIENT_COLLATERAL"},
			{engine.ErrBurnExceedsDebt, "BURN_EXCEEDS_DEBT"},
		} {
			if errors.Is(err, c.err) {
				return http.StatusBadRequest, c.code
			}
		}
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case engine.ClassInvariant:
		return http.StatusUnprocessableEntity, "BREAKS_HEALTH_FACTOR"
	case engine.ClassLiquidation:
		if errors.Is(err, engine.ErrHealthFactorOK) {
			return http.StatusUnprocessableEntity, "HEALTH_FACTOR_OK"
		}
		return http.StatusUnprocessableEntity, "HEALTH_FACTOR_NOT_IMPROVED"
	case engine.ClassExternal:
		switch {
		case errors.Is(err, engine.ErrPriceUnavailable):
			return http.StatusBadGateway, "PRICE_UNAVAILABLE"
		case errors.Is(err, engine.ErrMintFailed):
			return http.StatusBadGateway, "MINT_FAILED"
		case errors.Is(err, engine.ErrBurnFailed):
			return http.StatusBadGateway, "BURN_FAILED"
		}
		return http.StatusBadGateway, "TRANSFER_FAILED"
	case engine.ClassReentrancy:
		return http.StatusConflict, "REENTRANT_CALL"
	}

	// Collaborator errors surfacing through Update, View and dev routes.
	switch {
	case errors.Is(err, token.ErrZeroAmount), errors.Is(err, token.ErrZeroAddress):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusBadRequest, "INSUFFICIENT_BALANCE"
	case errors.Is(err, token.ErrNotOwner):
		return http.StatusForbidden, "NOT_OWNER"
	case errors.Is(err, oracle.ErrUnknownFeed):
		return http.StatusNotFound, "UNKNOWN_FEED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	class := engine.Classify(err)
	log := h.logger.Infow
	if status >= http.StatusInternalServerError {
		log = h.logger.Errorw
	}
	log("Request failed",
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"code", code,
		"class", class,
		"error", err,
	)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, Class: string(class)})
}

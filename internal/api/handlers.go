package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/leafsii/collateral-engine/internal/calc"
	"github.com/leafsii/collateral-engine/internal/engine"
	"github.com/leafsii/collateral-engine/internal/oracle"
	"github.com/leafsii/collateral-engine/internal/repository"
	"github.com/leafsii/collateral-engine/internal/state"
	"github.com/leafsii/collateral-engine/internal/token"
)

// HeaderUserAddress carries the address a mutating request acts for.
const HeaderUserAddress = "X-User-Address"

const (
	stableDecimals = 18
	maxBodyBytes   = 1 << 20
)

// EventJournal serves a user's event history.
type EventJournal interface {
	ListUserEvents(ctx context.Context, address common.Address, limit int, cursor string) ([]repository.StoredEvent, string, error)
}

// Streamer serves live engine events.
type Streamer interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	HandleSSE(w http.ResponseWriter, r *http.Request)
}

// PriceSetter overrides feed prices in dev deployments.
type PriceSetter interface {
	SetPrice(feedID string, price decimal.Decimal) oracle.Round
}

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerDeps struct {
	Engine     *engine.Engine
	Stable     *token.Ledger
	Collateral []*token.Ledger
	Store      Pinger
	// Journal, Stream and Prices are optional.
	Journal EventJournal
	Stream  Streamer
	Prices  PriceSetter
	// Admin owns the collateral tokens and funds the dev faucet.
	Admin  common.Address
	Dev    bool
	Logger *zap.SugaredLogger
}

type Handler struct {
	engine     *engine.Engine
	stable     *token.Ledger
	collateral map[common.Address]*token.Ledger
	store      Pinger
	journal    EventJournal
	stream     Streamer
	prices     PriceSetter
	admin      common.Address
	dev        bool
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewHandler(deps HandlerDeps) *Handler {
	collateral := make(map[common.Address]*token.Ledger, len(deps.Collateral))
	for _, l := range deps.Collateral {
		collateral[l.Address()] = l
	}
	return &Handler{
		engine:     deps.Engine,
		stable:     deps.Stable,
		collateral: collateral,
		store:      deps.Store,
		journal:    deps.Journal,
		stream:     deps.Stream,
		prices:     deps.Prices,
		admin:      deps.Admin,
		dev:        deps.Dev,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Protocol endpoints
func (h *Handler) GetConstants(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Constants()
	writeJSON(w, http.StatusOK, ConstantsDTO{
		Precision:            c.Precision.Dec(),
		FeedPrecision:        c.FeedPrecision.Dec(),
		LiquidationThreshold: c.LiquidationThreshold.Dec(),
		LiquidationPrecision: c.LiquidationPrecision.Dec(),
		LiquidationBonus:     c.LiquidationBonus.Dec(),
		MinHealthFactor:      c.MinHealthFactor.Dec(),
	})
}

func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.engine.ProtocolTotals(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dto := TotalsDTO{
		Debt:               formatAmount(totals.Debt, stableDecimals),
		CollateralValueUSD: formatAmount(totals.CollateralValueUSD, stableDecimals),
		AsOf:               h.now().Unix(),
	}
	for _, a := range totals.Assets {
		dto.Assets = append(dto.Assets, AssetTotalDTO{
			Asset:    a.Asset.Hex(),
			Feed:     a.Feed,
			Deposits: formatAmount(a.Deposits, h.decimals(a.Asset)),
			ValueUSD: formatAmount(a.ValueUSD, stableDecimals),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListAssets returns the allowed collateral with the USD price of one
// whole token. Assets whose feed cannot be read are listed without a price.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := h.engine.CollateralTokens()
	out := make([]AssetDTO, 0, len(assets))
	for _, asset := range assets {
		feed, _ := h.engine.PriceFeed(asset)
		dto := AssetDTO{Address: asset.Hex(), Feed: feed, Decimals: h.decimals(asset)}
		if l, ok := h.collateral[asset]; ok {
			dto.Symbol = l.Symbol()
		}

		unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(dto.Decimals)))
		if usd, err := h.engine.USDValue(r.Context(), asset, unit); err == nil {
			dto.PriceUSD = formatAmount(usd, stableDecimals)
		} else {
			h.logger.Warnw("Asset price unavailable", "asset", asset.Hex(), "feed", feed, "error", err)
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// User endpoints
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	dto, err := h.account(r.Context(), user)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	hf, err := h.engine.HealthFactor(r.Context(), user)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthDTO(user, hf))
}

func (h *Handler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	asset, ok := h.pathAddress(w, r, "asset")
	if !ok {
		return
	}
	bal, err := h.engine.CollateralBalance(r.Context(), user, asset)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CollateralBalanceDTO{
		Asset:  asset.Hex(),
		Symbol: h.symbol(asset),
		Amount: formatAmount(bal, h.decimals(asset)),
	})
}

// GetBalances returns the wallet balances of the stable token and every
// collateral token.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}

	balances := make(map[string]string, len(h.collateral)+1)
	err := h.engine.View(r.Context(), func(ctx context.Context, im state.Immutable) error {
		for _, l := range h.tokens() {
			bal, err := l.BalanceOf(ctx, im, user)
			if err != nil {
				return err
			}
			balances[l.Symbol()] = formatAmount(bal, l.Decimals())
		}
		return nil
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalancesDTO{
		Address:   user.Hex(),
		Balances:  balances,
		UpdatedAt: h.now().Unix(),
	})
}

func (h *Handler) GetUserEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "event journal is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be an integer")
			return
		}
		limit = n
	}

	items, next, err := h.journal.ListUserEvents(r.Context(), user, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
			return
		}
		h.writeEngineError(w, r, err)
		return
	}
	if items == nil {
		items = []repository.StoredEvent{}
	}

	writeJSON(w, http.StatusOK, EventsDTO{Address: user.Hex(), Items: items, NextCursor: next})
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "ledger store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Live updates
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "STREAM_DISABLED", "event stream is not configured")
		return
	}
	h.stream.HandleWebSocket(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "STREAM_DISABLED", "event stream is not configured")
		return
	}
	h.stream.HandleSSE(w, r)
}

func (h *Handler) account(ctx context.Context, user common.Address) (AccountDTO, error) {
	pos, err := h.engine.Position(ctx, user)
	if err != nil {
		return AccountDTO{}, err
	}
	dto := AccountDTO{
		HealthDTO:          healthDTO(user, pos.HealthFactor),
		DebtMinted:         formatAmount(pos.DebtMinted, stableDecimals),
		CollateralValueUSD: formatAmount(pos.CollateralValueUSD, stableDecimals),
		Collateral:         []CollateralBalanceDTO{},
		AsOf:               h.now().Unix(),
	}
	for _, asset := range h.engine.CollateralTokens() {
		bal, err := h.engine.CollateralBalance(ctx, user, asset)
		if err != nil {
			return AccountDTO{}, err
		}
		if bal.IsZero() {
			continue
		}
		dto.Collateral = append(dto.Collateral, CollateralBalanceDTO{
			Asset:  asset.Hex(),
			Symbol: h.symbol(asset),
			Amount: formatAmount(bal, h.decimals(asset)),
		})
	}
	return dto, nil
}

func healthDTO(user common.Address, hf *uint256.Int) HealthDTO {
	dto := HealthDTO{
		Address: user.Hex(),
		Healthy: calc.IsHealthy(hf),
	}
	if hf.Eq(calc.MaxHealthFactor()) {
		dto.Unbounded = true
		dto.HealthFactor = hf.Dec()
	} else {
		dto.HealthFactor = formatAmount(hf, stableDecimals)
	}
	return dto
}

func (h *Handler) tokens() []*token.Ledger {
	out := []*token.Ledger{h.stable}
	for _, asset := range h.engine.CollateralTokens() {
		if l, ok := h.collateral[asset]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (h *Handler) decimals(asset common.Address) uint8 {
	if l, ok := h.collateral[asset]; ok {
		return l.Decimals()
	}
	return stableDecimals
}

func (h *Handler) symbol(asset common.Address) string {
	if l, ok := h.collateral[asset]; ok {
		return l.Symbol()
	}
	return ""
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	addr, err := parseAddress(chi.URLParam(r, param), param)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return common.Address{}, false
	}
	return addr, true
}

func parseAddress(raw, field string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: malformed address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// parseAmount converts a token-unit decimal string to integer units.
func parseAmount(raw string, decimals uint8, field string) (*uint256.Int, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid decimal %q", field, raw)
	}
	if err := calc.ValidateAmount(amount, field); err != nil {
		return nil, err
	}
	return calc.ToWad(amount, int32(decimals))
}

func formatAmount(v *uint256.Int, decimals uint8) string {
	return calc.FromWad(v, int32(decimals)).String()
}

// Utility methods
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return false
	}
	return true
}

package api

import (
	"github.com/leafsii/collateral-engine/internal/engine"
	"github.com/leafsii/collateral-engine/internal/repository"
)

// Amounts are decimal strings in token units ("10.5"). USD values and
// health factors are decimal strings with 18 fractional digits trimmed.

type ConstantsDTO struct {
	Precision            string `json:"precision"`
	FeedPrecision        string `json:"feedPrecision"`
	LiquidationThreshold string `json:"liquidationThreshold"`
	LiquidationPrecision string `json:"liquidationPrecision"`
	LiquidationBonus     string `json:"liquidationBonus"`
	MinHealthFactor      string `json:"minHealthFactor"`
}

type AssetDTO struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Feed     string `json:"feed"`
	PriceUSD string `json:"priceUsd,omitempty"`
}

type AssetTotalDTO struct {
	Asset    string `json:"asset"`
	Feed     string `json:"feed"`
	Deposits string `json:"deposits"`
	ValueUSD string `json:"valueUsd"`
}

type TotalsDTO struct {
	Assets             []AssetTotalDTO `json:"assets"`
	Debt               string          `json:"debt"`
	CollateralValueUSD string          `json:"collateralValueUsd"`
	AsOf               int64           `json:"asOf"`
}

type CollateralBalanceDTO struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol,omitempty"`
	Amount string `json:"amount"`
}

type HealthDTO struct {
	Address      string `json:"address"`
	HealthFactor string `json:"healthFactor"`
	// Unbounded is set when the account has no debt.
	Unbounded bool `json:"unbounded"`
	Healthy   bool `json:"healthy"`
}

type AccountDTO struct {
	HealthDTO
	DebtMinted         string                 `json:"debtMinted"`
	CollateralValueUSD string                 `json:"collateralValueUsd"`
	Collateral         []CollateralBalanceDTO `json:"collateral"`
	AsOf               int64                  `json:"asOf"`
}

type BalancesDTO struct {
	Address   string            `json:"address"`
	Balances  map[string]string `json:"balances"`
	UpdatedAt int64             `json:"updatedAt"`
}

type EventsDTO struct {
	Address    string                   `json:"address"`
	Items      []repository.StoredEvent `json:"items"`
	NextCursor string                   `json:"nextCursor"`
}

type LiquidationDTO struct {
	User                 string `json:"user"`
	Liquidator           string `json:"liquidator"`
	Asset                string `json:"asset"`
	DebtCovered          string `json:"debtCovered"`
	CollateralSeized     string `json:"collateralSeized"`
	Bonus                string `json:"bonus"`
	TotalSeized          string `json:"totalSeized"`
	StartingHealthFactor string `json:"startingHealthFactor"`
	EndingHealthFactor   string `json:"endingHealthFactor"`
}

type OperationResponse struct {
	Status  string     `json:"status"`
	Account AccountDTO `json:"account"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Class   string `json:"class,omitempty"`
}

// Request bodies

type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type MintRequest struct {
	Amount string `json:"amount"`
}

type DepositAndMintRequest struct {
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type RedeemRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	// To defaults to the caller.
	To string `json:"to,omitempty"`
}

type BurnRequest struct {
	Amount string `json:"amount"`
	// OnBehalfOf defaults to the caller.
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
}

type RedeemAndBurnRequest struct {
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type LiquidateRequest struct {
	Asset       string `json:"asset"`
	User        string `json:"user"`
	DebtToCover string `json:"debtToCover"`
}

type ApproveRequest struct {
	Token string `json:"token"`
	// Amount may be "max" for an unlimited allowance.
	Amount string `json:"amount"`
}

type DevPriceRequest struct {
	Feed  string `json:"feed"`
	Price string `json:"price"`
}

type FaucetRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	// To defaults to the caller.
	To string `json:"to,omitempty"`
}

type DevPriceResponse struct {
	Feed      string `json:"feed"`
	RoundID   uint64 `json:"roundId"`
	Answer    string `json:"answer"`
	UpdatedAt int64  `json:"updatedAt"`
}

func liquidationDTO(res *engine.LiquidationResult, collateralDecimals uint8) LiquidationDTO {
	return LiquidationDTO{
		User:                 res.User.Hex(),
		Liquidator:           res.Liquidator.Hex(),
		Asset:                res.Asset.Hex(),
		DebtCovered:          formatAmount(res.DebtCovered, stableDecimals),
		CollateralSeized:     formatAmount(res.CollateralSeized, collateralDecimals),
		Bonus:                formatAmount(res.Bonus, collateralDecimals),
		TotalSeized:          formatAmount(res.TotalSeized, collateralDecimals),
		StartingHealthFactor: formatAmount(res.StartingHealthFactor, stableDecimals),
		EndingHealthFactor:   formatAmount(res.EndingHealthFactor, stableDecimals),
	}
}

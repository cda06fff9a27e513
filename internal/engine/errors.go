package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/leafsii/collateral-engine/internal/calc"
)

// Input validation
var (
	ErrAmountMustBePositive    = errors.New("engine: amount must be more than zero")
	ErrAssetNotAllowed         = errors.New("engine: asset not allowed")
	ErrAssetFeedLengthMismatch = errors.New("engine: asset and price feed lists must be the same length")
	ErrDuplicateAsset          = errors.New("engine: asset registered twice")
	ErrZeroAddress             = errors.New("engine: zero address")
	ErrInsufficientCollateral  = errors.New("engine: redeem exceeds deposited collateral")
	ErrBurnExceedsDebt         = errors.New("engine: burn exceeds outstanding debt")
	ErrMissingDependency       = errors.New("engine: missing dependency")
)

// Invariant violation
var ErrBreaksHealthFactor = errors.New("engine: breaks health factor")

// External call failure
var (
	ErrTransferFailed   = errors.New("engine: transfer failed")
	ErrMintFailed       = errors.New("engine: mint failed")
	ErrBurnFailed       = errors.New("engine: burn failed")
	ErrPriceUnavailable = errors.New("engine: price unavailable")
)

// Liquidation precondition
var (
	ErrHealthFactorOK          = errors.New("engine: health factor ok")
	ErrHealthFactorNotImproved = errors.New("engine: health factor not improved")
)

var (
	ErrReentrantCall = errors.New("engine: reentrant call")
	ErrStorage       = errors.New("engine: storage failure")
)

// HealthFactorError reports the user whose position an operation would have
// left below the minimum health factor.
type HealthFactorError struct {
	User         common.Address
	HealthFactor *uint256.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("%v: user %s health factor %s", ErrBreaksHealthFactor, e.User.Hex(), calc.FromWad(e.HealthFactor, 18))
}

func (e *HealthFactorError) Unwrap() error { return ErrBreaksHealthFactor }

type Class string

const (
	ClassValidation  Class = "validation"
	ClassInvariant   Class = "invariant"
	ClassExternal    Class = "external"
	ClassLiquidation Class = "liquidation"
	ClassReentrancy  Class = "reentrancy"
	ClassInternal    Class = "internal"
)

// Classify maps an error returned by the engine to its class. Errors the
// engine did not produce are internal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReentrantCall):
		return ClassReentrancy
	case errors.Is(err, ErrHealthFactorOK), errors.Is(err, ErrHealthFactorNotImproved):
		return ClassLiquidation
	case errors.Is(err, ErrBreaksHealthFactor):
		return ClassInvariant
	case errors.Is(err, ErrTransferFailed), errors.Is(err, ErrMintFailed),
		errors.Is(err, ErrBurnFailed), errors.Is(err, ErrPriceUnavailable):
		return ClassExternal
	case errors.Is(err, ErrAmountMustBePositive), errors.Is(err, ErrAssetNotAllowed),
		errors.Is(err, ErrAssetFeedLengthMismatch), errors.Is(err, ErrDuplicateAsset),
		errors.Is(err, ErrZeroAddress), errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrBurnExceedsDebt), errors.Is(err, ErrMissingDependency):
		return ClassValidation
	default:
		return ClassInternal
	}
}

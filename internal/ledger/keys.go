package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// State
// dsc/collateral/<user>/<asset> => amount
// dsc/debt/<user>               => amount
// dsc/total/collateral/<asset>  => amount
// dsc/total/debt                => amount
// dsc/account/<user>            => marker
//
// Addresses are lower-case hex. Amounts are 32-byte big-endian.

const (
	collateralPrefix      = "dsc/collateral/"
	debtPrefix            = "dsc/debt/"
	totalCollateralPrefix = "dsc/total/collateral/"
	totalDebtKey          = "dsc/total/debt"
	AccountPrefix         = "dsc/account/"
)

func addrKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func CollateralKey(user, asset common.Address) string {
	return collateralPrefix + addrKey(user) + "/" + addrKey(asset)
}

func DebtKey(user common.Address) string {
	return debtPrefix + addrKey(user)
}

func TotalCollateralKey(asset common.Address) string {
	return totalCollateralPrefix + addrKey(asset)
}

func AccountKey(user common.Address) string {
	return AccountPrefix + addrKey(user)
}

// AccountFromKey parses the user out of an AccountKey.
func AccountFromKey(key string) (common.Address, bool) {
	hex, ok := strings.CutPrefix(key, AccountPrefix)
	if !ok || !common.IsHexAddress(hex) {
		return common.Address{}, false
	}
	return common.HexToAddress(hex), true
}

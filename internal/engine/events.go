package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type EventType string

const (
	CollateralDeposited EventType = "collateral_deposited"
	CollateralRedeemed  EventType = "collateral_redeemed"
	DebtMinted          EventType = "debt_minted"
	DebtBurned          EventType = "debt_burned"
	PositionLiquidated  EventType = "position_liquidated"
)

// Event is emitted for every committed ledger change. Counterparty is the
// redeem recipient, the burn payer or the liquidator; DebtCovered and Bonus
// are set on liquidations only.
type Event struct {
	ID           uuid.UUID
	Type         EventType
	User         common.Address
	Asset        common.Address
	Counterparty common.Address
	Amount       *uint256.Int
	DebtCovered  *uint256.Int
	Bonus        *uint256.Int
	Timestamp    time.Time
}

// EventRecord is the wire form of an Event.
type EventRecord struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	User         string    `json:"user"`
	Asset        string    `json:"asset,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount"`
	DebtCovered  string    `json:"debtCovered,omitempty"`
	Bonus        string    `json:"bonus,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (ev Event) Record() EventRecord {
	rec := EventRecord{
		ID:        ev.ID.String(),
		Type:      string(ev.Type),
		User:      ev.User.Hex(),
		Amount:    decString(ev.Amount),
		Timestamp: ev.Timestamp,
	}
	if ev.Asset != (common.Address{}) {
		rec.Asset = ev.Asset.Hex()
	}
	if ev.Counterparty != (common.Address{}) {
		rec.Counterparty = ev.Counterparty.Hex()
	}
	if ev.DebtCovered != nil {
		rec.DebtCovered = ev.DebtCovered.Dec()
	}
	if ev.Bonus != nil {
		rec.Bonus = ev.Bonus.Dec()
	}
	return rec
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// EventSink receives events after the operation that produced them has
// committed. A failing sink never undoes the operation.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/flashloan-arb/business/pricing/domain"
)

// Token identifies an ERC20 on the settlement chain.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// SwapLeg is one swap of the atomic round trip.
type SwapLeg struct {
	Venue         pricingDomain.VenueID
	Router        common.Address
	TokenIn       Token
	TokenOut      Token
	AmountIn      decimal.Decimal
	ExpectedPrice decimal.Decimal
}

// SettlementReceipt is returned by a successful atomic swap.
type SettlementReceipt struct {
	TxID           string
	ProfitRealized decimal.Decimal
	GasUsed        uint64
}

// Control is the operator's admin record, polled once per cycle.
type Control struct {
	Pause     bool
	Stop      bool
	UpdatedAt time.Time
}

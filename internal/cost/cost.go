// Package cost computes transaction costs for fills: brokerage commission,
// stamp tax, and transfer fee. The model is a pure function of side, price,
// quantity, and the configured rates.
package cost

import (
	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

// Model holds the fee rates. All rates come from configuration; defaults
// match the A-share fee structure.
type Model struct {
	commissionRate  decimal.Decimal
	minCommission   decimal.Decimal
	stampTaxRate    decimal.Decimal
	transferFeeRate decimal.Decimal
}

// NewModel creates a cost Model from configuration.
func NewModel(cfg config.CostConfig) *Model {
	return &Model{
		commissionRate:  decimal.NewFromFloat(cfg.CommissionRate),
		minCommission:   decimal.NewFromFloat(cfg.MinCommission),
		stampTaxRate:    decimal.NewFromFloat(cfg.StampTaxRate),
		transferFeeRate: decimal.NewFromFloat(cfg.TransferFeeRate),
	}
}

// Cost returns the fee breakdown for a trade of qty shares at price.
// Commission applies to both sides with a minimum floor; stamp tax applies
// only to sells; transfer fee applies to both sides. All amounts are rounded
// to the cent.
func (m *Model) Cost(side domain.OrderSide, price decimal.Decimal, qty int64) domain.Fees {
	amount := price.Mul(decimal.NewFromInt(qty))

	commission := amount.Mul(m.commissionRate)
	if commission.LessThan(m.minCommission) {
		commission = m.minCommission
	}

	stampTax := decimal.Zero
	if side == domain.OrderSideSell {
		stampTax = amount.Mul(m.stampTaxRate)
	}

	transferFee := amount.Mul(m.transferFeeRate)

	return domain.Fees{
		Commission:  commission.Round(2),
		StampTax:    stampTax.Round(2),
		TransferFee: transferFee.Round(2),
	}
}

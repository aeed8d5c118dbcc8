package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TaxMode decides how sell prices relate to tax.
type TaxMode string

const (
	// TaxInclusive treats the sell price as tax-inclusive; base and tax are extracted from it.
	TaxInclusive TaxMode = "inclusive"
	// TaxExclusive treats the sell price as the base; tax is added on top.
	TaxExclusive TaxMode = "exclusive"
)

// ParseTaxMode validates a configured tax mode.
func ParseTaxMode(raw string) (TaxMode, error) {
	switch mode := TaxMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case TaxInclusive, TaxExclusive:
		return mode, nil
	default:
		return "", fmt.Errorf("batch: unknown tax mode %q: %w", raw, shared.ErrValidation)
	}
}

// PricingConfig carries pricing settings explicitly into every computation.
type PricingConfig struct {
	Mode TaxMode
}

// Pricing is the derived price split for a sell price.
type Pricing struct {
	BasePrice     decimal.Decimal
	TaxAmount     decimal.Decimal
	TaxPercentage decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// EffectiveTaxPercentage prefers a positive category rate over the batch rate.
func EffectiveTaxPercentage(categoryTax *decimal.Decimal, batchTax decimal.Decimal) decimal.Decimal {
	if categoryTax != nil && categoryTax.IsPositive() {
		return *categoryTax
	}
	return batchTax
}

// Compute splits sellPrice into base and tax at pct percent.
func (c PricingConfig) Compute(sellPrice, pct decimal.Decimal) Pricing {
	if pct.IsNegative() || pct.IsZero() {
		return Pricing{BasePrice: sellPrice, TaxAmount: decimal.Zero, TaxPercentage: decimal.Zero}
	}
	rate := pct.Div(hundred)
	if c.Mode == TaxExclusive {
		return Pricing{
			BasePrice:     sellPrice,
			TaxAmount:     sellPrice.Mul(rate).Round(2),
			TaxPercentage: pct,
		}
	}
	base := sellPrice.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
	return Pricing{
		BasePrice:     base,
		TaxAmount:     sellPrice.Sub(base),
		TaxPercentage: pct,
	}
}

// Apply recomputes base price and tax amount on b.
func (c PricingConfig) Apply(b *Batch, categoryTax *decimal.Decimal) {
	p := c.Compute(b.SellPrice, EffectiveTaxPercentage(categoryTax, b.TaxPercentage))
	b.BasePrice = p.BasePrice
	b.TaxAmount = p.TaxAmount
}

// CategoryTaxReader resolves the category tax rate for a product, nil when unset.
type CategoryTaxReader interface {
	CategoryTaxPercentage(ctx context.Context, productID int64) (*decimal.Decimal, error)
}

// Prepare is the compute-then-save step run before a batch is inserted or repriced.
func Prepare(ctx context.Context, taxes CategoryTaxReader, cfg PricingConfig, b *Batch) error {
	if b.ProductID == 0 {
		return fmt.Errorf("batch: product required: %w", shared.ErrValidation)
	}
	if b.SellPrice.IsNegative() || b.CostPrice.IsNegative() {
		return fmt.Errorf("batch: prices must not be negative: %w", shared.ErrValidation)
	}
	if b.TaxPercentage.IsNegative() {
		return fmt.Errorf("batch: tax percentage must not be negative: %w", shared.ErrValidation)
	}
	categoryTax, err := taxes.CategoryTaxPercentage(ctx, b.ProductID)
	if err != nil {
		return fmt.Errorf("load category tax: %w", err)
	}
	cfg.Apply(b, categoryTax)
	return nil
}

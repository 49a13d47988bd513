package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/closetline/api/internal/domain"
)

// ShippingTier charges Fee when its bound matches. Tiers are evaluated in order; first match wins.
// A tier matches when the subtotal reaches MinSubtotal (if set) or the total quantity is at most
// MaxQuantity (if set). A tier with neither bound always matches.
type ShippingTier struct {
	MinSubtotal *float64
	MaxQuantity *int
	Fee         float64
}

func (t ShippingTier) matches(subtotal decimal.Decimal, quantity int) bool {
	switch {
	case t.MinSubtotal != nil:
		return subtotal.GreaterThanOrEqual(decimal.NewFromFloat(*t.MinSubtotal))
	case t.MaxQuantity != nil:
		return quantity <= *t.MaxQuantity
	default:
		return true
	}
}

// PricingRules holds the storefront tax rate and shipping table.
type PricingRules struct {
	TaxRate  float64
	Shipping []ShippingTier
}

// DefaultPricingRules returns the storefront contract: 30% tax, free shipping from 5000,
// 150 for up to two units, 250 for up to five, 15 otherwise.
func DefaultPricingRules() PricingRules {
	freeFrom := 5000.0
	two, five := 2, 5
	return PricingRules{
		TaxRate: 0.30,
		Shipping: []ShippingTier{
			{MinSubtotal: &freeFrom, Fee: 0},
			{MaxQuantity: &two, Fee: 150},
			{MaxQuantity: &five, Fee: 250},
			{Fee: 15},
		},
	}
}

// CartPricingEngine computes cart totals. It holds no mutable state and is safe for concurrent use.
type CartPricingEngine struct {
	taxRate  decimal.Decimal
	shipping []ShippingTier
}

// NewCartPricingEngine builds an engine. Zero-value rules fall back to DefaultPricingRules. Once a
// shipping table is supplied the tax rate is taken as given, so 0 means tax free; negative rates
// are clamped to 0. A tax rate without a shipping table keeps the default tiers.
func NewCartPricingEngine(rules PricingRules) *CartPricingEngine {
	defaults := DefaultPricingRules()
	if rules.TaxRate == 0 && len(rules.Shipping) == 0 {
		rules = defaults
	}
	if rules.TaxRate < 0 {
		rules.TaxRate = 0
	}
	if len(rules.Shipping) == 0 {
		rules.Shipping = defaults.Shipping
	}
	tiers := make([]ShippingTier, len(rules.Shipping))
	copy(tiers, rules.Shipping)
	return &CartPricingEngine{
		taxRate:  decimal.NewFromFloat(rules.TaxRate),
		shipping: tiers,
	}
}

// PriceCart totals the given lines. An empty basket (total quantity 0) prices to all zeros.
func (e *CartPricingEngine) PriceCart(items []domain.CartItem) domain.CartTotals {
	quantity := 0
	subtotal := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		quantity += item.Quantity
		subtotal = subtotal.Add(decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if quantity == 0 {
		return domain.CartTotals{}
	}

	subtotal = subtotal.Round(2)
	tax := subtotal.Mul(e.taxRate).Round(2)
	shipping := decimal.NewFromFloat(e.shippingFee(subtotal, quantity))
	total := subtotal.Add(tax).Add(shipping).Round(2)

	return domain.CartTotals{
		Quantity: quantity,
		Subtotal: subtotal.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Shipping: shipping.Round(2).InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

func (e *CartPricingEngine) shippingFee(subtotal decimal.Decimal, quantity int) float64 {
	for _, tier := range e.shipping {
		if tier.matches(subtotal, quantity) {
			return tier.Fee
		}
	}
	return 0
}

// ToMinorUnits converts a decimal amount into integer minor units, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

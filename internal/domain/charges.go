package domain

import "math"

// Default charge policy values in minor units (paise).
const (
	DefaultFlatTax               int64 = 1800
	DefaultHandlingCharge        int64 = 0
	DefaultDeliveryCharge        int64 = 5000
	DefaultFreeDeliveryThreshold int64 = 50000
	MinorUnitsPerMajor           int64 = 100
)

// DefaultCurrency is the settlement currency for storefront orders.
const DefaultCurrency = "INR"

// ChargesPolicy holds the pricing rules applied to a cart.
type ChargesPolicy struct {
	FlatTax               int64
	HandlingCharge        int64
	DeliveryCharge        int64
	FreeDeliveryThreshold int64
}

// DefaultChargesPolicy returns the standard storefront policy.
func DefaultChargesPolicy() ChargesPolicy {
	return ChargesPolicy{
		FlatTax:               DefaultFlatTax,
		HandlingCharge:        DefaultHandlingCharge,
		DeliveryCharge:        DefaultDeliveryCharge,
		FreeDeliveryThreshold: DefaultFreeDeliveryThreshold,
	}
}

// PricedLine is a cart quantity joined to its stock pricing.
type PricedLine struct {
	Quantity   int
	UnitPrice  int64
	OfferPrice int64
}

// Compute derives the snapshot amounts for the supplied lines. Delivery is free only when the
// gross total strictly exceeds the threshold.
func (p ChargesPolicy) Compute(lines []PricedLine) ChargesSnapshot {
	var snap ChargesSnapshot
	for _, line := range lines {
		qty := int64(line.Quantity)
		snap.TotalQuantity += line.Quantity
		snap.TotalPrice += line.OfferPrice * qty
		if line.UnitPrice > line.OfferPrice {
			snap.DiscountPrice += (line.UnitPrice - line.OfferPrice) * qty
		}
	}
	snap.Tax = p.FlatTax
	snap.HandlingCharge = p.HandlingCharge
	if snap.TotalPrice > p.FreeDeliveryThreshold {
		snap.DeliveryCharge = 0
	} else {
		snap.DeliveryCharge = p.DeliveryCharge
	}
	snap.TotalPayableAmount = snap.TotalPrice + snap.Tax + snap.HandlingCharge + snap.DeliveryCharge
	return snap
}

// MinorUnits converts a major currency amount to minor units, rounding half away from zero.
func MinorUnits(major float64) int64 {
	return int64(math.Round(major * float64(MinorUnitsPerMajor)))
}

// MajorUnits converts minor units to a major currency amount.
func MajorUnits(minor int64) float64 {
	return float64(minor) / float64(MinorUnitsPerMajor)
}

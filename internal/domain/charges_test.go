package domain

import "testing"

func TestChargesPolicyCompute(t *testing.T) {
	policy := DefaultChargesPolicy()

	tests := []struct {
		name  string
		lines []PricedLine
		want  ChargesSnapshot
	}{
		{
			name:  "below threshold pays delivery",
			lines: []PricedLine{{Quantity: 2, UnitPrice: 15000, OfferPrice: 12000}},
			want: ChargesSnapshot{
				TotalQuantity:      2,
				TotalPrice:         24000,
				DiscountPrice:      6000,
				Tax:                1800,
				DeliveryCharge:     5000,
				TotalPayableAmount: 30800,
			},
		},
		{
			name:  "exactly at threshold still pays delivery",
			lines: []PricedLine{{Quantity: 1, UnitPrice: 50000, OfferPrice: 50000}},
			want: ChargesSnapshot{
				TotalQuantity:      1,
				TotalPrice:         50000,
				Tax:                1800,
				DeliveryCharge:     5000,
				TotalPayableAmount: 56800,
			},
		},
		{
			name: "above threshold ships free",
			lines: []PricedLine{
				{Quantity: 1, UnitPrice: 40000, OfferPrice: 30000},
				{Quantity: 3, UnitPrice: 9000, OfferPrice: 8000},
			},
			want: ChargesSnapshot{
				TotalQuantity:      4,
				TotalPrice:         54000,
				DiscountPrice:      13000,
				Tax:                1800,
				DeliveryCharge:     0,
				TotalPayableAmount: 55800,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.Compute(tc.lines)
			if got != tc.want {
				t.Fatalf("unexpected snapshot:\n got %+v\nwant %+v", got, tc.want)
			}
			if got.TotalPayableAmount != got.TotalPrice+got.Tax+got.HandlingCharge+got.DeliveryCharge {
				t.Fatalf("total payable does not add up: %+v", got)
			}
		})
	}
}

func TestMinorUnitsRounding(t *testing.T) {
	cases := map[float64]int64{
		0:      0,
		50:     5000,
		499.99: 49999,
		1234.5: 123450,
	}
	for in, want := range cases {
		if got := MinorUnits(in); got != want {
			t.Errorf("MinorUnits(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestDeliveryRank(t *testing.T) {
	if DeliveryRank(DeliveryStatusPending) >= DeliveryRank(DeliveryStatusShipped) {
		t.Fatalf("expected pending to rank before shipped")
	}
	if DeliveryRank(DeliveryStatusCancelled) != -1 {
		t.Fatalf("cancelled should not be part of the forward path")
	}
	if status, ok := ParseDeliveryStatus("out for delivery"); !ok || status != DeliveryStatusOutForDelivery {
		t.Fatalf("expected case-insensitive parse, got %q %v", status, ok)
	}
}

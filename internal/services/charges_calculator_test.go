package services

import (
	"context"
	"testing"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories/memory"
)

func TestChargesCalculatorRecalculate(t *testing.T) {
	cases := []struct {
		name         string
		offer        int64
		unit         int64
		quantity     int
		wantDelivery int64
		wantDiscount int64
		wantPayable  int64
	}{
		{name: "exactly at threshold pays delivery", offer: 25000, unit: 25000, quantity: 2, wantDelivery: 5000, wantPayable: 50000 + 1800 + 5000},
		{name: "above threshold ships free", offer: 50001, unit: 60000, quantity: 1, wantDelivery: 0, wantDiscount: 9999, wantPayable: 50001 + 1800},
		{name: "small cart", offer: 9900, unit: 12900, quantity: 3, wantDelivery: 5000, wantDiscount: 9000, wantPayable: 29700 + 1800 + 5000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := memory.NewLedger()
			ledger.SeedStock(domain.StockRecord{Key: "s1", Available: 10, UnitPrice: tc.unit, OfferPrice: tc.offer})
			ledger.SeedCartItem(domain.CartItem{ID: "c1", UserID: "u1", VariantID: "v1", SizeID: "s1", Quantity: tc.quantity})
			calc := NewChargesCalculator(domain.DefaultChargesPolicy(), fixedClock)

			var snap *domain.ChargesSnapshot
			err := ledger.RunInTx(context.Background(), func(ctx context.Context, tx repositories.LedgerTx) error {
				var err error
				snap, err = calc.Recalculate(ctx, tx, "u1")
				return err
			})
			if err != nil {
				t.Fatalf("Recalculate: %v", err)
			}
			if snap == nil {
				t.Fatal("expected snapshot")
			}
			if snap.ID != "u1" || snap.UserID != "u1" || !snap.UpdatedAt.Equal(fixedNow) {
				t.Fatalf("unexpected identity fields %+v", snap)
			}
			if snap.TotalQuantity != tc.quantity {
				t.Fatalf("expected quantity %d, got %d", tc.quantity, snap.TotalQuantity)
			}
			if snap.DeliveryCharge != tc.wantDelivery || snap.DiscountPrice != tc.wantDiscount || snap.TotalPayableAmount != tc.wantPayable {
				t.Fatalf("unexpected amounts %+v", snap)
			}
			if snap.TotalPayableAmount != snap.TotalPrice+snap.Tax+snap.HandlingCharge+snap.DeliveryCharge {
				t.Fatalf("payable does not add up: %+v", snap)
			}
		})
	}
}

func TestChargesCalculatorEmptyCartDeletesSnapshot(t *testing.T) {
	ledger := memory.NewLedger()
	calc := NewChargesCalculator(domain.DefaultChargesPolicy(), fixedClock)
	ctx := context.Background()

	err := ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		return tx.PutCharges(ctx, domain.ChargesSnapshot{ID: "u1", UserID: "u1", TotalPrice: 100})
	})
	if err != nil {
		t.Fatalf("seed charges: %v", err)
	}

	err = ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		snap, err := calc.Recalculate(ctx, tx, "u1")
		if err != nil {
			return err
		}
		if snap != nil {
			t.Errorf("expected nil snapshot for empty cart, got %+v", snap)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}

	err = ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
		_, err := tx.GetCharges(ctx, "u1")
		return err
	})
	if !isRepoNotFound(err) {
		t.Fatalf("expected snapshot to be deleted, got %v", err)
	}
}

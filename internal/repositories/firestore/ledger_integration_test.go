//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/Abhranil-01/dsport-backend-api/internal/domain"
	pconfig "github.com/Abhranil-01/dsport-backend-api/internal/platform/config"
	pfirestore "github.com/Abhranil-01/dsport-backend-api/internal/platform/firestore"
	"github.com/Abhranil-01/dsport-backend-api/internal/repositories"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

var errOutOfStock = errors.New("out of stock")

func TestLedgerIntegration(t *testing.T) {
	endpoint := emulatorEndpoint(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("ledger-test-%d", time.Now().UnixNano()),
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ledger, err := NewLedger(provider, pfirestore.WithTxAttempts(20))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	if _, err := client.Collection(stockCollection).Doc("size-1").Set(ctx, newStockDocument(domain.StockRecord{
		Key: "size-1", Available: 10, UnitPrice: 20000, OfferPrice: 15000,
	})); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	t.Run("read after staged write sees the staged value", func(t *testing.T) {
		err := ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
			item := domain.CartItem{ID: "ci_u1_v1_size-1", UserID: "u1", VariantID: "v1", SizeID: "size-1", Quantity: 2}
			if err := tx.PutCartItem(ctx, item); err != nil {
				return err
			}
			items, err := tx.ListCartItems(ctx, "u1")
			if err != nil {
				return err
			}
			if len(items) != 1 || items[0].Quantity != 2 {
				return fmt.Errorf("expected staged cart item, got %+v", items)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}
	})

	t.Run("concurrent reservations", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
					ok, err := tx.ReserveStock(ctx, "size-1", 6)
					if err != nil {
						return err
					}
					if !ok {
						return errOutOfStock
					}
					return nil
				})
			}()
		}
		wg.Wait()
		close(results)

		var wins, losses int
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, errOutOfStock):
				losses++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 || losses != 1 {
			t.Fatalf("expected one winner and one loser, got %d/%d", wins, losses)
		}

		snap, err := client.Collection(stockCollection).Doc("size-1").Get(ctx)
		if err != nil {
			t.Fatalf("read stock: %v", err)
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			t.Fatalf("decode stock: %v", err)
		}
		if doc.Available != 4 {
			t.Fatalf("expected 4 remaining, got %d", doc.Available)
		}
	})

	t.Run("duplicate order insert conflicts", func(t *testing.T) {
		insert := func() error {
			return ledger.RunInTx(ctx, func(ctx context.Context, tx repositories.LedgerTx) error {
				return tx.InsertOrder(ctx, domain.Order{ID: "ord_dup", UserID: "u1", CreatedAt: time.Now()})
			})
		}
		if err := insert(); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		err := insert()
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict, got %v", err)
		}
	})
}

func emulatorEndpoint(t *testing.T) string {
	t.Helper()
	if host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")); host != "" {
		return host
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start emulator: %v - %s", err, out)
	}
	containerID := strings.TrimSpace(string(out))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(stopCtx, "docker", "stop", containerID).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(45 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return endpoint
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready at %s", endpoint)
	return ""
}

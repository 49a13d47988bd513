//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/closetline/api/internal/domain"
	pconfig "github.com/closetline/api/internal/platform/config"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
	"github.com/closetline/api/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("closetline-test-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestCartRepositoryConcurrentAddsMergeIntoOneLine(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewCartRepository(provider)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Mutate(ctx, "usr_concurrent", func(cart *domain.Cart, _ bool) error {
				for j := range cart.Items {
					if cart.Items[j].ProductID == "prd_1" && cart.Items[j].Size == "M" {
						cart.Items[j].Quantity++
						return nil
					}
				}
				cart.Items = append(cart.Items, domain.CartItem{ProductID: "prd_1", Size: "M", Quantity: 1, UnitPrice: 10})
				return nil
			})
			if err != nil {
				t.Errorf("mutate(%d): %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	cart, err := repo.Get(ctx, "usr_concurrent")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != workers {
		t.Fatalf("expected quantity %d, got %d", workers, cart.Items[0].Quantity)
	}
}

func TestUserRepositoryRejectsDuplicateEmail(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewUserRepository(provider)
	if err != nil {
		t.Fatalf("new user repository: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Insert(ctx, domain.User{ID: "usr_a", Name: "Ada", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	err = repo.Insert(ctx, domain.User{ID: "usr_b", Name: "Ada Two", Email: "ADA@example.com", CreatedAt: now, UpdatedAt: now})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}

	found, err := repo.FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.ID != "usr_a" {
		t.Fatalf("expected usr_a, got %s", found.ID)
	}
}

func TestOrderRepositoryListPaginates(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		if err := repo.Insert(ctx, domain.Order{
			ID:             fmt.Sprintf("ord_%d", i),
			UserID:         "usr_1",
			PaymentMethod:  domain.PaymentMethodCard,
			PaymentStatus:  domain.PaymentStatusUnpaid,
			ShippingStatus: domain.ShippingStatusPlaced,
			CreatedAt:      created,
			UpdatedAt:      created,
		}); err != nil {
			t.Fatalf("insert order %d: %v", i, err)
		}
	}

	first, err := repo.List(ctx, domain.Pagination{PageSize: 3})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(first.Items) != 3 || first.Items[0].ID != "ord_4" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := repo.List(ctx, domain.Pagination{PageSize: 3, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Items) != 2 || second.Items[1].ID != "ord_0" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}
}

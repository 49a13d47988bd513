//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/closetline/api/internal/platform/config"
	pfirestore "github.com/closetline/api/internal/platform/firestore"
)

type counterDoc struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

// Run with `gcloud emulators firestore start` and FIRESTORE_EMULATOR_HOST exported.
func TestBaseRepositoryAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "closet-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	repo := pfirestore.NewBaseRepository[counterDoc](provider, "counters_"+time.Now().Format("150405.000"), nil, nil)

	if err := repo.Create(ctx, "c1", counterDoc{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var conflict interface{ IsConflict() bool }
	if err := repo.Create(ctx, "c1", counterDoc{Name: "dup"}); !errors.As(err, &conflict) || !conflict.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := repo.GetTx(ctx, tx, "c1")
		if err != nil || !found {
			return errors.Join(err, errors.New("expected document"))
		}
		doc.Data.Count++
		return repo.SetTx(ctx, tx, "c1", doc.Data)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	doc, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data.Count != 2 {
		t.Fatalf("expected count 2, got %d", doc.Data.Count)
	}

	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "c1"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

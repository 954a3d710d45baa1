package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/storage/postgres"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

func TestSessionRepositoryUpsert(t *testing.T) {
	env := SetupTestEnvironment(t)
	repo := postgres.NewSessionRepository(env.DB, zap.NewNop())
	ctx := context.Background()

	t.Run("creates session on first write", func(t *testing.T) {
		CleanDatabase(t, env.DB)

		session, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:  "ref-create",
			Status:       strPtr(domain.SessionStatusInitExpress),
			IvySessionID: strPtr("sess-1"),
			ExpressTempData: domain.JSONMap{
				"continuationToken": "tok-1",
			},
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if session.ReferenceID != "ref-create" {
			t.Errorf("ReferenceID = %q, want ref-create", session.ReferenceID)
		}
		if session.Status != domain.SessionStatusInitExpress {
			t.Errorf("Status = %q, want %q", session.Status, domain.SessionStatusInitExpress)
		}
		if session.ExpressTempData.Str("continuationToken") != "tok-1" {
			t.Errorf("ExpressTempData token = %q, want tok-1", session.ExpressTempData.Str("continuationToken"))
		}

		got, err := repo.FindByReference(ctx, "ref-create")
		if err != nil {
			t.Fatalf("FindByReference failed: %v", err)
		}
		if got == nil || got.IvySessionID != "sess-1" {
			t.Fatalf("persisted session = %+v, want IvySessionID sess-1", got)
		}
	})

	t.Run("merges express temp data and keeps first ivy ids", func(t *testing.T) {
		CleanDatabase(t, env.DB)

		if _, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:  "ref-merge",
			IvySessionID: strPtr("sess-first"),
			IvyOrderID:   strPtr("ivy-first"),
			ExpressTempData: domain.JSONMap{
				"continuationToken": "tok-1",
				"shippingCountry":   "DE",
			},
		}); err != nil {
			t.Fatalf("first Upsert failed: %v", err)
		}

		session, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:  "ref-merge",
			IvySessionID: strPtr("sess-other"),
			IvyOrderID:   strPtr("ivy-other"),
			ExpressTempData: domain.JSONMap{
				"shippingCountry": "AT",
				"shippingZip":     "1010",
			},
		})
		if err != nil {
			t.Fatalf("second Upsert failed: %v", err)
		}

		if session.IvySessionID != "sess-first" {
			t.Errorf("IvySessionID = %q, want the first write kept", session.IvySessionID)
		}
		if session.IvyOrderID != "ivy-first" {
			t.Errorf("IvyOrderID = %q, want the first write kept", session.IvyOrderID)
		}
		if session.ExpressTempData.Str("continuationToken") != "tok-1" {
			t.Errorf("token lost on merge: %+v", session.ExpressTempData)
		}
		if session.ExpressTempData.Str("shippingCountry") != "AT" {
			t.Errorf("shippingCountry = %q, want AT", session.ExpressTempData.Str("shippingCountry"))
		}
		if session.ExpressTempData.Str("shippingZip") != "1010" {
			t.Errorf("shippingZip = %q, want 1010", session.ExpressTempData.Str("shippingZip"))
		}
	})

	t.Run("link is set once and clears temp data", func(t *testing.T) {
		CleanDatabase(t, env.DB)

		if _, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID: "ref-link",
			ExpressTempData: domain.JSONMap{
				"continuationToken": "tok-1",
			},
		}); err != nil {
			t.Fatalf("seed Upsert failed: %v", err)
		}

		session, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:   "ref-link",
			Status:        strPtr(domain.SessionStatusCreateOrder),
			LinkedOrderID: strPtr("order-1"),
		})
		if err != nil {
			t.Fatalf("link Upsert failed: %v", err)
		}
		if session.LinkedOrderID == nil || *session.LinkedOrderID != "order-1" {
			t.Fatalf("LinkedOrderID = %v, want order-1", session.LinkedOrderID)
		}
		if len(session.ExpressTempData) != 0 {
			t.Errorf("ExpressTempData not cleared on link: %+v", session.ExpressTempData)
		}

		// Re-linking to the same order is a no-op.
		if _, err := repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:   "ref-link",
			LinkedOrderID: strPtr("order-1"),
		}); err != nil {
			t.Errorf("idempotent re-link failed: %v", err)
		}

		// A different order is a conflict.
		_, err = repo.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:   "ref-link",
			LinkedOrderID: strPtr("order-2"),
		})
		if !errors.Is(err, domain.ErrOrderAlreadyLinked) {
			t.Errorf("re-link to another order: err = %v, want ErrOrderAlreadyLinked", err)
		}

		got, err := repo.FindByReference(ctx, "ref-link")
		if err != nil {
			t.Fatalf("FindByReference failed: %v", err)
		}
		if got.LinkedOrderID == nil || *got.LinkedOrderID != "order-1" {
			t.Errorf("link changed after conflict: %v", got.LinkedOrderID)
		}
	})

	t.Run("only one concurrent link wins", func(t *testing.T) {
		CleanDatabase(t, env.DB)

		if _, err := repo.Upsert(ctx, &domain.SessionUpdate{ReferenceID: "ref-race"}); err != nil {
			t.Fatalf("seed Upsert failed: %v", err)
		}

		orders := []string{"order-a", "order-b", "order-c", "order-d"}
		var wg sync.WaitGroup
		results := make([]error, len(orders))
		for i, orderID := range orders {
			wg.Add(1)
			go func(i int, orderID string) {
				defer wg.Done()
				_, results[i] = repo.Upsert(ctx, &domain.SessionUpdate{
					ReferenceID:   "ref-race",
					LinkedOrderID: strPtr(orderID),
				})
			}(i, orderID)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrOrderAlreadyLinked):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Errorf("wins = %d, want exactly 1 (conflicts %d)", wins, conflicts)
		}
	})

	t.Run("find by reference returns nil for unknown id", func(t *testing.T) {
		CleanDatabase(t, env.DB)

		got, err := repo.FindByReference(ctx, "never-written")
		if err != nil {
			t.Fatalf("FindByReference failed: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})
}

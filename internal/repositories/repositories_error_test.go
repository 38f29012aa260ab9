package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

func TestParentRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewParentRepository(db)
			err := repo.Create(ctx, models.NewParent("", "no id"))
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("DuplicateExternalID", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewParentRepository(db)
			createParent(t, repo, "acct-1")

			if err := repo.Create(ctx, models.NewParent("acct-1", "again")); err == nil {
				t.Fatal("expected error when creating parent with duplicate external id")
			}
		})
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewParentRepository(db)
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetByExternalID(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("GetByExternalID: expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateSyncStatus(ctx, "missing", models.SyncFailed, nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("UpdateSyncStatus: expected ErrNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewParentRepository(db)
		db.Close()

		if _, err := repo.List(ctx); err == nil {
			t.Fatal("expected error listing from closed database")
		}
	})
}

func TestTaskRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownMember", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := models.NewTask("nightly", 1, []string{"no-such-parent"})
		if err := repo.Create(ctx, task); err == nil {
			t.Fatal("expected foreign key error for unknown member")
		}

		if _, err := repo.Get(ctx, task.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected task insert to be rolled back, got %v", err)
		}
	})

	t.Run("DuplicateMember", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := models.NewTask("nightly", 1, []string{"p", "p"})
		if err := repo.Create(ctx, task); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("Get: expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateRun(ctx, "missing", models.TaskUpdate{Status: models.TaskFailed}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("UpdateRun: expected ErrNotFound, got %v", err)
		}
		if err := repo.SetMembers(ctx, "missing", nil); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("SetMembers: expected ErrNotFound, got %v", err)
		}
	})
}

func TestItemRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewItemRepository(db)
		if err := repo.Upsert(ctx, &models.Item{ParentID: "p"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownParent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewItemRepository(db)
		item := models.NewItem("no-such-parent", models.ItemDescriptor{ID: "i1", Kind: models.KindVideo}, nil)
		if err := repo.Upsert(ctx, item); err == nil {
			t.Fatal("expected foreign key error for unknown parent")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewItemRepository(db)
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

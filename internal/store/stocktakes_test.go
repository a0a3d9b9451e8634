package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/popis/internal/db"
	"github.com/erazemk/popis/internal/model"
)

// seedStocktake creates three items, one user and an in-progress stocktake over them.
func seedStocktake(t *testing.T, database *sql.DB) (*Stocktakes, *model.Stocktake, *model.User) {
	t.Helper()
	ctx := context.Background()

	var itemIDs []int64
	for _, name := range []string{"Laptop", "Monitor", "Chair"} {
		item, err := CreateItem(ctx, database, name, "", "")
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		itemIDs = append(itemIDs, item.ID)
	}
	user, err := CreateUser(ctx, database, "scanner", "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	repo := NewStocktakes(database)
	now := time.Now().UTC()
	st, err := repo.Create(ctx, &model.Stocktake{
		Name:         "Q4 audit",
		Status:       model.StocktakeStatusInProgress,
		StartDate:    now,
		EndDate:      now.Add(7 * 24 * time.Hour),
		CreatedAt:    now,
		ItemsToCheck: itemIDs,
		Accounts:     []int64{user.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return repo, st, user
}

func TestCreateAndGetStocktake(t *testing.T) {
	database := db.NewTestDB(t)
	_, st, user := seedStocktake(t, database)

	if st.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if st.AllItems != 3 || len(st.ItemsToCheck) != 3 {
		t.Errorf("expected snapshot of 3 items, got all_items=%d items=%v", st.AllItems, st.ItemsToCheck)
	}
	if len(st.Accounts) != 1 || st.Accounts[0] != user.ID {
		t.Errorf("expected accounts [%d], got %v", user.ID, st.Accounts)
	}
	if st.Name != "Q4 audit" {
		t.Errorf("expected name 'Q4 audit', got %q", st.Name)
	}
}

func TestGetMissingStocktake(t *testing.T) {
	database := db.NewTestDB(t)
	repo := NewStocktakes(database)

	_, err := repo.Get(context.Background(), 404)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCreateStocktakeRollsBackOnBadItem(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo := NewStocktakes(database)

	now := time.Now().UTC()
	_, err := repo.Create(ctx, &model.Stocktake{
		Status:       model.StocktakeStatusInProgress,
		StartDate:    now,
		EndDate:      now,
		CreatedAt:    now,
		ItemsToCheck: []int64{999},
	})
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("expected storage error for dangling item, got %v", err)
	}

	list, _ := repo.List(ctx, model.StocktakeFilter{})
	if len(list) != 0 {
		t.Errorf("expected no stocktake to be persisted, got %d", len(list))
	}
}

func TestInsertCheckIsIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, user := seedStocktake(t, database)

	first, inserted, err := repo.InsertCheck(ctx, model.CheckedItem{
		StocktakeID: st.ID, ItemID: st.ItemsToCheck[1], CheckedAt: time.Now(), CheckedBy: &user.ID,
	})
	if err != nil {
		t.Fatalf("InsertCheck: %v", err)
	}
	if !inserted {
		t.Error("expected first check to be inserted")
	}

	second, inserted, err := repo.InsertCheck(ctx, model.CheckedItem{
		StocktakeID: st.ID, ItemID: st.ItemsToCheck[1], CheckedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("second InsertCheck: %v", err)
	}
	if inserted {
		t.Error("expected second check not to be inserted")
	}
	if second.ID != first.ID || second.CheckedBy == nil || *second.CheckedBy != user.ID {
		t.Errorf("expected the original record back, got %+v", second)
	}

	n, _ := repo.CountChecked(ctx, st.ID)
	if n != 1 {
		t.Errorf("expected 1 check record, got %d", n)
	}
}

func TestInsertCheckConcurrent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, _ := seedStocktake(t, database)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.InsertCheck(ctx, model.CheckedItem{
				StocktakeID: st.ID, ItemID: st.ItemsToCheck[0], CheckedAt: time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if inserted != 1 {
		t.Errorf("expected exactly one winning insert, got %d", inserted)
	}
	if n, _ := repo.CountChecked(ctx, st.ID); n != 1 {
		t.Errorf("expected 1 check record, got %d", n)
	}
}

func TestInsertCheckRejectedWhenClosed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, _ := seedStocktake(t, database)

	if err := repo.UpdateStatus(ctx, st.ID, model.StocktakeStatusInProgress, model.StocktakeStatusCancelled, time.Now()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	_, _, err := repo.InsertCheck(ctx, model.CheckedItem{StocktakeID: st.ID, ItemID: st.ItemsToCheck[0], CheckedAt: time.Now()})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict for closed stocktake, got %v", err)
	}
	if n, _ := repo.CountChecked(ctx, st.ID); n != 0 {
		t.Errorf("expected no check records, got %d", n)
	}
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, _ := seedStocktake(t, database)

	if err := repo.UpdateStatus(ctx, st.ID, model.StocktakeStatusInProgress, model.StocktakeStatusCompleted, time.Now()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// A second writer that still believes the stocktake is in progress loses.
	err := repo.UpdateStatus(ctx, st.ID, model.StocktakeStatusInProgress, model.StocktakeStatusCancelled, time.Now())
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	err = repo.UpdateStatus(ctx, 404, model.StocktakeStatusPlanned, model.StocktakeStatusCancelled, time.Now())
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListStocktakesFiltered(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, user := seedStocktake(t, database)

	other, _ := CreateUser(ctx, database, "other", "hash", model.RoleUser)
	now := time.Now().UTC()
	planned, err := repo.Create(ctx, &model.Stocktake{
		Status:       model.StocktakeStatusPlanned,
		StartDate:    now.Add(24 * time.Hour),
		EndDate:      now.Add(48 * time.Hour),
		CreatedAt:    now,
		ItemsToCheck: st.ItemsToCheck[:1],
		Accounts:     []int64{other.ID, user.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, _ := repo.List(ctx, model.StocktakeFilter{})
	if len(all) != 2 {
		t.Errorf("expected 2 stocktakes, got %d", len(all))
	}

	mine, _ := repo.List(ctx, model.StocktakeFilter{AccountID: user.ID, Status: model.StocktakeStatusInProgress})
	if len(mine) != 1 || mine[0].ID != st.ID {
		t.Errorf("expected only stocktake %d, got %v", st.ID, mine)
	}
	if len(mine) == 1 && len(mine[0].ItemsToCheck) != 3 {
		t.Errorf("expected snapshot to be loaded, got %v", mine[0].ItemsToCheck)
	}

	others, _ := repo.List(ctx, model.StocktakeFilter{AccountID: other.ID})
	if len(others) != 1 || others[0].ID != planned.ID {
		t.Errorf("expected only stocktake %d, got %v", planned.ID, others)
	}
}

func TestReplaceAccounts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, _ := seedStocktake(t, database)

	newcomer, _ := CreateUser(ctx, database, "newcomer", "hash", model.RoleUser)
	if err := repo.ReplaceAccounts(ctx, st.ID, []int64{newcomer.ID}, time.Now()); err != nil {
		t.Fatalf("ReplaceAccounts: %v", err)
	}

	got, _ := repo.Get(ctx, st.ID)
	if len(got.Accounts) != 1 || got.Accounts[0] != newcomer.ID {
		t.Errorf("expected accounts [%d], got %v", newcomer.ID, got.Accounts)
	}

	repo.UpdateStatus(ctx, st.ID, model.StocktakeStatusInProgress, model.StocktakeStatusCompleted, time.Now())
	if err := repo.ReplaceAccounts(ctx, st.ID, []int64{newcomer.ID}, time.Now()); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict replacing accounts of a completed stocktake, got %v", err)
	}
}

func TestDeleteStocktakeCascades(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	repo, st, _ := seedStocktake(t, database)

	repo.InsertCheck(ctx, model.CheckedItem{StocktakeID: st.ID, ItemID: st.ItemsToCheck[0], CheckedAt: time.Now()})

	if err := repo.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var leftover int
	database.QueryRow(`SELECT COUNT(*) FROM stocktake_checked_items WHERE stocktake_id = ?`, st.ID).Scan(&leftover)
	if leftover != 0 {
		t.Errorf("expected check records to be deleted, got %d", leftover)
	}

	if err := repo.Delete(ctx, st.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found deleting twice, got %v", err)
	}
}

func TestDirectory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	dir := NewDirectory(database)

	user, _ := CreateUser(ctx, database, "mod", "hash", model.RoleModerator)
	item, _ := CreateItem(ctx, database, "Laptop", "", "")

	acct, err := dir.Account(ctx, user.ID)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if !acct.IsModerator() {
		t.Errorf("expected moderator, got role %q", acct.Role)
	}

	DeleteUser(ctx, database, user.ID)
	if _, err := dir.Account(ctx, user.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected deleted account to be not found, got %v", err)
	}

	if ok, _ := dir.ItemExists(ctx, item.ID); !ok {
		t.Error("expected item to exist")
	}
	if ok, _ := dir.ItemExists(ctx, 404); ok {
		t.Error("expected missing item not to exist")
	}
}

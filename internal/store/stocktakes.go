package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/popis/internal/model"
)

var stocktakeColumns = []string{
	"s.id", "s.name", "s.description", "s.status", "s.start_date", "s.end_date",
	"s.all_items", "s.created_at", "s.updated_at",
}

const checkedItemColumns = `id, stocktake_id, item_id, checked_at, checked_by`

// Stocktakes persists stocktake campaigns, their item snapshots, authorized
// accounts and check records.
//
// The (stocktake_id, item_id) uniqueness of check records is enforced by the
// schema, and InsertCheck relies on it instead of looking before inserting.
type Stocktakes struct {
	db *sqlx.DB
}

// NewStocktakes returns a repository backed by db.
func NewStocktakes(db *sql.DB) *Stocktakes {
	return &Stocktakes{db: sqlx.NewDb(db, "sqlite")}
}

// Create stores a new stocktake together with its item snapshot and
// authorized accounts in a single transaction.
func (s *Stocktakes) Create(ctx context.Context, st *model.Stocktake) (*model.Stocktake, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO stocktakes (name, description, status, start_date, end_date, all_items, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Name, st.Description, st.Status, st.StartDate.UTC(), st.EndDate.UTC(),
		len(st.ItemsToCheck), st.CreatedAt.UTC(), st.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, model.NewStorageError("creating stocktake", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, model.NewStorageError("getting stocktake id", err)
	}

	for pos, itemID := range st.ItemsToCheck {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stocktake_items (stocktake_id, item_id, position) VALUES (?, ?, ?)`,
			id, itemID, pos,
		); err != nil {
			return nil, model.NewStorageError("adding stocktake item", err)
		}
	}

	if err := insertAccounts(ctx, tx, id, st.Accounts); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, model.NewStorageError("committing stocktake", err)
	}

	return s.Get(ctx, id)
}

func insertAccounts(ctx context.Context, tx *sqlx.Tx, stocktakeID int64, accounts []int64) error {
	for _, userID := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stocktake_accounts (stocktake_id, user_id) VALUES (?, ?)`,
			stocktakeID, userID,
		); err != nil {
			return model.NewStorageError("adding stocktake account", err)
		}
	}
	return nil
}

// Get returns a stocktake with its snapshot and authorized accounts.
func (s *Stocktakes) Get(ctx context.Context, id int64) (*model.Stocktake, error) {
	query, args, err := sq.Select(stocktakeColumns...).From("stocktakes s").Where(sq.Eq{"s.id": id}).ToSql()
	if err != nil {
		return nil, model.NewStorageError("building stocktake query", err)
	}

	var st model.Stocktake
	if err := s.db.GetContext(ctx, &st, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NotFoundf("stocktake %d", id)
		}
		return nil, model.NewStorageError("getting stocktake", err)
	}

	list := []model.Stocktake{st}
	if err := s.loadMembers(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// List returns stocktakes matching the filter, ordered by start date.
// Snapshots and accounts are populated.
func (s *Stocktakes) List(ctx context.Context, filter model.StocktakeFilter) ([]model.Stocktake, error) {
	b := sq.Select(stocktakeColumns...).From("stocktakes s")
	if filter.AccountID > 0 {
		b = b.Join("stocktake_accounts a ON a.stocktake_id = s.id").Where(sq.Eq{"a.user_id": filter.AccountID})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"s.status": filter.Status})
	}

	query, args, err := b.OrderBy("s.start_date", "s.id").ToSql()
	if err != nil {
		return nil, model.NewStorageError("building stocktake query", err)
	}

	var list []model.Stocktake
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, model.NewStorageError("listing stocktakes", err)
	}

	if err := s.loadMembers(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadMembers fills ItemsToCheck and Accounts for every stocktake in list.
func (s *Stocktakes) loadMembers(ctx context.Context, list []model.Stocktake) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, st := range list {
		ids[i] = st.ID
		index[st.ID] = i
	}

	var items []struct {
		StocktakeID int64 `db:"stocktake_id"`
		ItemID      int64 `db:"item_id"`
	}
	query, args, err := sqlx.In(
		`SELECT stocktake_id, item_id FROM stocktake_items
		 WHERE stocktake_id IN (?) ORDER BY stocktake_id, position`, ids)
	if err != nil {
		return model.NewStorageError("building snapshot query", err)
	}
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return model.NewStorageError("loading stocktake items", err)
	}
	for _, it := range items {
		st := &list[index[it.StocktakeID]]
		st.ItemsToCheck = append(st.ItemsToCheck, it.ItemID)
	}

	var accounts []struct {
		StocktakeID int64 `db:"stocktake_id"`
		UserID      int64 `db:"user_id"`
	}
	query, args, err = sqlx.In(
		`SELECT stocktake_id, user_id FROM stocktake_accounts
		 WHERE stocktake_id IN (?) ORDER BY stocktake_id, user_id`, ids)
	if err != nil {
		return model.NewStorageError("building account query", err)
	}
	if err := s.db.SelectContext(ctx, &accounts, s.db.Rebind(query), args...); err != nil {
		return model.NewStorageError("loading stocktake accounts", err)
	}
	for _, a := range accounts {
		st := &list[index[a.StocktakeID]]
		st.Accounts = append(st.Accounts, a.UserID)
	}

	return nil
}

// Update writes the editable fields and status of st, provided the stored
// status still equals expectedStatus. A concurrent status change makes the
// update fail with a conflict instead of overwriting it.
func (s *Stocktakes) Update(ctx context.Context, st *model.Stocktake, expectedStatus string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE stocktakes
		 SET name = ?, description = ?, start_date = ?, end_date = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		st.Name, st.Description, st.StartDate.UTC(), st.EndDate.UTC(), st.Status, st.UpdatedAt.UTC(),
		st.ID, expectedStatus,
	)
	if err != nil {
		return model.NewStorageError("updating stocktake", err)
	}
	return s.checkSwapped(ctx, result, st.ID, expectedStatus)
}

// UpdateStatus moves a stocktake from one status to another atomically.
func (s *Stocktakes) UpdateStatus(ctx context.Context, id int64, from, to string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE stocktakes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), id, from,
	)
	if err != nil {
		return model.NewStorageError("updating stocktake status", err)
	}
	return s.checkSwapped(ctx, result, id, from)
}

// checkSwapped distinguishes a missing stocktake from one whose status moved
// on when a conditional update touched no rows.
func (s *Stocktakes) checkSwapped(ctx context.Context, result sql.Result, id int64, expected string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return model.NewStorageError("reading affected rows", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.GetContext(ctx, &current, `SELECT status FROM stocktakes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFoundf("stocktake %d", id)
	}
	if err != nil {
		return model.NewStorageError("reading stocktake status", err)
	}
	return model.Conflictf("stocktake %d status changed from %s to %s", id, expected, current)
}

// ReplaceAccounts swaps the authorized accounts of a non-terminal stocktake.
func (s *Stocktakes) ReplaceAccounts(ctx context.Context, id int64, accounts []int64, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE stocktakes SET updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		at.UTC(), id, model.StocktakeStatusPlanned, model.StocktakeStatusInProgress,
	)
	if err != nil {
		return model.NewStorageError("touching stocktake", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		tx.Rollback()
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return model.Conflictf("stocktake %d is closed", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stocktake_accounts WHERE stocktake_id = ?`, id); err != nil {
		return model.NewStorageError("clearing stocktake accounts", err)
	}
	if err := insertAccounts(ctx, tx, id, accounts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return model.NewStorageError("committing stocktake accounts", err)
	}
	return nil
}

// InsertCheck records that c.ItemID was verified in c.StocktakeID.
//
// The insert is a single statement that only succeeds while the stocktake is
// open and silently yields when a record for the pair already exists. It
// returns the durable record (the new one or the one that won) and whether
// this call created it.
func (s *Stocktakes) InsertCheck(ctx context.Context, c model.CheckedItem) (*model.CheckedItem, bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO stocktake_checked_items (stocktake_id, item_id, checked_at, checked_by)
		 SELECT ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM stocktakes WHERE id = ? AND status IN (?, ?))
		 ON CONFLICT (stocktake_id, item_id) DO NOTHING`,
		c.StocktakeID, c.ItemID, c.CheckedAt.UTC(), c.CheckedBy,
		c.StocktakeID, model.StocktakeStatusPlanned, model.StocktakeStatusInProgress,
	)
	if err != nil {
		return nil, false, model.NewStorageError("inserting check", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, model.NewStorageError("reading affected rows", err)
	}

	var rec model.CheckedItem
	err = s.db.GetContext(ctx, &rec,
		`SELECT `+checkedItemColumns+` FROM stocktake_checked_items WHERE stocktake_id = ? AND item_id = ?`,
		c.StocktakeID, c.ItemID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing inserted and nothing there: the stocktake closed underneath us.
		return nil, false, model.Conflictf("stocktake %d no longer accepts checks", c.StocktakeID)
	}
	if err != nil {
		return nil, false, model.NewStorageError("reading check", err)
	}

	return &rec, n > 0, nil
}

// CheckedItems returns the check records of a stocktake in the order they were made.
func (s *Stocktakes) CheckedItems(ctx context.Context, id int64) ([]model.CheckedItem, error) {
	var checks []model.CheckedItem
	err := s.db.SelectContext(ctx, &checks,
		`SELECT `+checkedItemColumns+` FROM stocktake_checked_items WHERE stocktake_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, model.NewStorageError("listing checks", err)
	}
	return checks, nil
}

// CountChecked returns the number of check records of a stocktake.
func (s *Stocktakes) CountChecked(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM stocktake_checked_items WHERE stocktake_id = ?`, id,
	)
	if err != nil {
		return 0, model.NewStorageError("counting checks", err)
	}
	return n, nil
}

// Delete removes a stocktake and everything that belongs to it.
func (s *Stocktakes) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"stocktake_checked_items", "stocktake_accounts", "stocktake_items"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE stocktake_id = ?`, table), id,
		); err != nil {
			return model.NewStorageError("deleting from "+table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM stocktakes WHERE id = ?`, id)
	if err != nil {
		return model.NewStorageError("deleting stocktake", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.NotFoundf("stocktake %d", id)
	}

	if err := tx.Commit(); err != nil {
		return model.NewStorageError("committing stocktake deletion", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/erazemk/popis/internal/model"
)

var itemColumns = []string{
	"id", "name", "description", "inventory_number", "status", "created_at", "updated_at", "deleted_at",
}

func scanItem(row interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{}
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.InventoryNumber,
		&item.Status, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero values mean no filtering.
type ItemFilter struct {
	Status string
	Search string
}

// CreateItem creates a new item.
func CreateItem(ctx context.Context, db *sql.DB, name, description, inventoryNumber string) (*model.Item, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (name, description, inventory_number) VALUES (?, ?, ?)`,
		name, description, inventoryNumber,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.Conflictf("inventory number %q is taken", inventoryNumber)
		}
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including soft-deleted items (for history).
// Returns nil if no such item exists.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	query, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	item, err := scanItem(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ItemExists reports whether a non-deleted item with the given ID exists.
func ItemExists(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking item: %w", err)
	}
	return count > 0, nil
}

// ListItems returns all non-deleted items matching the filter, ordered by name.
func ListItems(ctx context.Context, db *sql.DB, filter ItemFilter) ([]model.Item, error) {
	b := sq.Select(itemColumns...).From("items").Where(sq.Eq{"deleted_at": nil})
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		b = b.Where(sq.Or{sq.Like{"name": pattern}, sq.Like{"inventory_number": pattern}})
	}

	query, args, err := b.OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's metadata.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, name, description, inventoryNumber, status string) error {
	if !model.ValidItemStatus(status) {
		return model.NewValidationError("status", fmt.Sprintf("unknown item status %q", status))
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, inventory_number = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, description, inventoryNumber, status, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Conflictf("inventory number %q is taken", inventoryNumber)
		}
		return fmt.Errorf("updating item: %w", err)
	}
	return requireAffected(result, "item %d", id)
}

// DeleteItem soft-deletes an item. Existing stocktake snapshots keep referencing it.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return requireAffected(result, "item %d", id)
}

package store

import (
	"context"
	"database/sql"

	"github.com/erazemk/popis/internal/model"
)

// Directory exposes the item and account records the stocktake engine
// needs, without letting it modify them.
type Directory struct {
	db *sql.DB
}

// NewDirectory returns a Directory backed by db.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Account returns an active account by ID, or a not-found error.
func (d *Directory) Account(ctx context.Context, id int64) (*model.User, error) {
	u, err := GetUser(ctx, d.db, id)
	if err != nil {
		return nil, model.NewStorageError("getting account", err)
	}
	if u == nil || u.DeletedAt != nil {
		return nil, model.NotFoundf("account %d", id)
	}
	return u, nil
}

// ItemExists reports whether an active item with the given ID exists.
func (d *Directory) ItemExists(ctx context.Context, id int64) (bool, error) {
	ok, err := ItemExists(ctx, d.db, id)
	if err != nil {
		return false, model.NewStorageError("checking item", err)
	}
	return ok, nil
}

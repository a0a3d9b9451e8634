package stocktake

import (
	"context"

	"github.com/erazemk/popis/internal/model"
)

// reader is the part of the Engine the query surface reads through.
type reader interface {
	ListOpenCampaignsForAccount(ctx context.Context, accountID int64) ([]model.Stocktake, error)
	GetStatistics(ctx context.Context, id int64) (*model.StocktakeStatistics, error)
}

// OpenItem is an item an account still has to look at, and the campaign it
// was first found in.
type OpenItem struct {
	ItemID      int64 `json:"item_id"`
	StocktakeID int64 `json:"stocktake_id"`
}

// Query serves read-only views built on the Engine.
type Query struct {
	engine reader
}

// NewQuery returns a Query reading through engine.
func NewQuery(engine reader) *Query {
	return &Query{engine: engine}
}

// MyOpenItems returns the union of item snapshots across the account's open
// campaigns. An item appearing in several campaigns is listed once, under the
// first campaign it appears in.
func (q *Query) MyOpenItems(ctx context.Context, accountID int64) ([]OpenItem, error) {
	campaigns, err := q.engine.ListOpenCampaignsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	items := []OpenItem{}
	for _, c := range campaigns {
		for _, id := range c.ItemsToCheck {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, OpenItem{ItemID: id, StocktakeID: c.ID})
		}
	}
	return items, nil
}

// Statistics returns the live statistics of one campaign.
func (q *Query) Statistics(ctx context.Context, id int64) (*model.StocktakeStatistics, error) {
	return q.engine.GetStatistics(ctx, id)
}

package stocktake

import (
	"context"

	"github.com/erazemk/popis/internal/model"
)

// CheckResult is the outcome of MarkItemChecked.
type CheckResult struct {
	Check          *model.CheckedItem `json:"check"`
	AlreadyChecked bool               `json:"already_checked"`
}

// MarkItemChecked records that itemID was physically verified in the
// campaign. actingAccount may be nil for anonymous or system checks.
//
// All validation happens before the write, so a rejected call never leaves a
// record behind. Marking an item that is already checked succeeds and
// returns the existing record: concurrent scanners race on the storage
// unique key, never on a prior read.
func (e *Engine) MarkItemChecked(ctx context.Context, campaignID, itemID int64, actingAccount *int64) (*CheckResult, error) {
	st, err := e.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if model.StocktakeStatusTerminal(st.Status) {
		return nil, model.Conflictf("stocktake %d is %s", campaignID, st.Status)
	}
	if !st.HasItem(itemID) {
		return nil, model.NewValidationError("item_id", "item is not part of this stocktake")
	}

	if actingAccount != nil {
		acct, err := e.dir.Account(ctx, *actingAccount)
		if err != nil {
			return nil, err
		}
		if !st.HasAccount(acct.ID) && !acct.IsElevated() {
			return nil, model.Forbiddenf("account %d is not authorized for stocktake %d", acct.ID, campaignID)
		}
	}

	rec, inserted, err := e.repo.InsertCheck(ctx, model.CheckedItem{
		StocktakeID: campaignID,
		ItemID:      itemID,
		CheckedAt:   e.now(),
		CheckedBy:   actingAccount,
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		e.log.Info("item checked", "stocktake", campaignID, "item", itemID, "by", actingAccount)
	} else {
		e.log.Debug("item already checked", "stocktake", campaignID, "item", itemID, "by", actingAccount)
	}
	return &CheckResult{Check: rec, AlreadyChecked: !inserted}, nil
}

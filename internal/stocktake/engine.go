// Package stocktake implements periodic physical audits of the inventory:
// campaigns over a fixed snapshot of items, idempotent check-marking by
// authorized accounts, and progress statistics.
package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/popis/internal/model"
)

// repository is the persistence the engine needs.
type repository interface {
	Create(ctx context.Context, st *model.Stocktake) (*model.Stocktake, error)
	Get(ctx context.Context, id int64) (*model.Stocktake, error)
	List(ctx context.Context, filter model.StocktakeFilter) ([]model.Stocktake, error)
	Update(ctx context.Context, st *model.Stocktake, expectedStatus string) error
	UpdateStatus(ctx context.Context, id int64, from, to string, at time.Time) error
	ReplaceAccounts(ctx context.Context, id int64, accounts []int64, at time.Time) error
	InsertCheck(ctx context.Context, c model.CheckedItem) (*model.CheckedItem, bool, error)
	CheckedItems(ctx context.Context, id int64) ([]model.CheckedItem, error)
	CountChecked(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

// directory resolves item and account identities owned elsewhere.
type directory interface {
	Account(ctx context.Context, id int64) (*model.User, error)
	ItemExists(ctx context.Context, id int64) (bool, error)
}

// Engine owns the stocktake lifecycle. It holds no mutable state of its own;
// every operation goes to the repository.
type Engine struct {
	log  *slog.Logger
	repo repository
	dir  directory
	now  func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a stocktake engine.
func NewEngine(logger *slog.Logger, repo repository, dir directory, opts ...Option) *Engine {
	e := &Engine{
		log:  logger.With("service", "stocktake"),
		repo: repo,
		dir:  dir,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewCampaign holds the input of CreateCampaign.
type NewCampaign struct {
	Name        string
	Description string
	Items       []int64
	Accounts    []int64
	StartDate   time.Time
	EndDate     time.Time
}

// CampaignUpdate holds the fields UpdateCampaign may change. Nil means unchanged.
type CampaignUpdate struct {
	Name        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *string
}

// CreateCampaign validates the input, snapshots the item list and persists
// a new campaign. A campaign starting in the future is planned, otherwise it
// is in progress.
func (e *Engine) CreateCampaign(ctx context.Context, in NewCampaign) (*model.Stocktake, error) {
	items := dedupe(in.Items)
	accounts := dedupe(in.Accounts)
	now := e.now()

	if len(items) == 0 {
		return nil, model.NewValidationError("items", "at least one item is required")
	}
	if len(accounts) == 0 {
		return nil, model.NewValidationError("accounts", "at least one authorized account is required")
	}
	if in.StartDate.IsZero() {
		in.StartDate = now
	}
	if in.EndDate.IsZero() {
		return nil, model.NewValidationError("end_date", "is required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, model.NewValidationError("end_date", "must not be before start_date")
	}

	for _, id := range items {
		ok, err := e.dir.ItemExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.NotFoundf("item %d", id)
		}
	}
	if err := e.requireAccounts(ctx, accounts); err != nil {
		return nil, err
	}

	status := model.StocktakeStatusInProgress
	if in.StartDate.After(now) {
		status = model.StocktakeStatusPlanned
	}

	st, err := e.repo.Create(ctx, &model.Stocktake{
		Name:         in.Name,
		Description:  in.Description,
		Status:       status,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		CreatedAt:    now,
		ItemsToCheck: items,
		Accounts:     accounts,
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("stocktake created", "stocktake", st.ID, "status", st.Status,
		"items", st.AllItems, "accounts", len(st.Accounts))
	return st, nil
}

func (e *Engine) requireAccounts(ctx context.Context, accounts []int64) error {
	for _, id := range accounts {
		if _, err := e.dir.Account(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// GetCampaign returns a campaign with its snapshot, accounts and check records.
func (e *Engine) GetCampaign(ctx context.Context, id int64) (*model.Stocktake, error) {
	st, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	checks, err := e.repo.CheckedItems(ctx, id)
	if err != nil {
		return nil, err
	}
	st.CheckedItems = checks
	return st, nil
}

// ListCampaigns returns campaigns matching the filter.
func (e *Engine) ListCampaigns(ctx context.Context, filter model.StocktakeFilter) ([]model.Stocktake, error) {
	if filter.Status != "" && !model.ValidStocktakeStatus(filter.Status) {
		return nil, model.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return e.repo.List(ctx, filter)
}

// ListOpenCampaignsForAccount returns the in-progress campaigns the account
// is authorized for, each with its item snapshot.
func (e *Engine) ListOpenCampaignsForAccount(ctx context.Context, accountID int64) ([]model.Stocktake, error) {
	return e.repo.List(ctx, model.StocktakeFilter{
		AccountID: accountID,
		Status:    model.StocktakeStatusInProgress,
	})
}

// ListCheckedItems returns a campaign's check records in check order.
func (e *Engine) ListCheckedItems(ctx context.Context, id int64) ([]model.CheckedItem, error) {
	if _, err := e.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.CheckedItems(ctx, id)
}

// UpdateCampaign changes the descriptive fields, dates or status of an open
// campaign. The item snapshot cannot be changed.
func (e *Engine) UpdateCampaign(ctx context.Context, id int64, upd CampaignUpdate) (*model.Stocktake, error) {
	st, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if model.StocktakeStatusTerminal(st.Status) {
		return nil, model.Conflictf("stocktake %d is %s", id, st.Status)
	}

	expected := st.Status
	if upd.Name != nil {
		st.Name = *upd.Name
	}
	if upd.Description != nil {
		st.Description = *upd.Description
	}
	if upd.StartDate != nil {
		st.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		st.EndDate = *upd.EndDate
	}
	if upd.Status != nil && *upd.Status != st.Status {
		if err := checkTransition(st, *upd.Status); err != nil {
			return nil, err
		}
		st.Status = *upd.Status
	}
	if st.EndDate.Before(st.StartDate) {
		return nil, model.NewValidationError("end_date", "must not be before start_date")
	}

	st.UpdatedAt = e.now()
	if err := e.repo.Update(ctx, st, expected); err != nil {
		return nil, err
	}

	if st.Status != expected {
		e.log.Info("stocktake status changed", "stocktake", id, "from", expected, "to", st.Status)
	}
	return e.repo.Get(ctx, id)
}

// TransitionStatus moves a campaign along the status graph. Transitions out
// of a terminal state, to the same state, or backwards are conflicts.
func (e *Engine) TransitionStatus(ctx context.Context, id int64, to string) (*model.Stocktake, error) {
	if !model.ValidStocktakeStatus(to) {
		return nil, model.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}

	st, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(st, to); err != nil {
		return nil, err
	}

	if err := e.repo.UpdateStatus(ctx, id, st.Status, to, e.now()); err != nil {
		return nil, err
	}

	e.log.Info("stocktake status changed", "stocktake", id, "from", st.Status, "to", to)
	return e.repo.Get(ctx, id)
}

func checkTransition(st *model.Stocktake, to string) error {
	if !model.ValidStocktakeStatus(to) {
		return model.NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}
	if model.StocktakeStatusTerminal(st.Status) {
		return model.Conflictf("stocktake %d is %s", st.ID, st.Status)
	}
	if !model.CanTransitionStocktake(st.Status, to) {
		return model.Conflictf("stocktake %d cannot move from %s to %s", st.ID, st.Status, to)
	}
	return nil
}

// SetAuthorizedAccounts replaces the accounts allowed to check items in an
// open campaign.
func (e *Engine) SetAuthorizedAccounts(ctx context.Context, id int64, accounts []int64) (*model.Stocktake, error) {
	accounts = dedupe(accounts)
	if len(accounts) == 0 {
		return nil, model.NewValidationError("accounts", "at least one authorized account is required")
	}
	if err := e.requireAccounts(ctx, accounts); err != nil {
		return nil, err
	}

	if err := e.repo.ReplaceAccounts(ctx, id, accounts, e.now()); err != nil {
		return nil, err
	}

	e.log.Info("stocktake accounts replaced", "stocktake", id, "accounts", len(accounts))
	return e.repo.Get(ctx, id)
}

// DeleteCampaign removes a campaign and all of its check records.
func (e *Engine) DeleteCampaign(ctx context.Context, id int64) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.log.Info("stocktake deleted", "stocktake", id)
	return nil
}

// dedupe drops repeated ids, keeping the first occurrence of each.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package model

import "time"

// Stocktake is one bounded audit campaign over a fixed snapshot of items.
type Stocktake struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name,omitempty" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Status      string    `json:"status" db:"status"`
	StartDate   time.Time `json:"start_date" db:"start_date"`
	EndDate     time.Time `json:"end_date" db:"end_date"`
	AllItems    int       `json:"all_items" db:"all_items"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// Loaded separately (not always populated).
	ItemsToCheck []int64       `json:"items_to_check,omitempty" db:"-"`
	Accounts     []int64       `json:"accounts,omitempty" db:"-"`
	CheckedItems []CheckedItem `json:"checked_items,omitempty" db:"-"`
}

// CheckedItem records that one item was physically verified within one stocktake.
type CheckedItem struct {
	ID          int64     `json:"id" db:"id"`
	StocktakeID int64     `json:"stocktake_id" db:"stocktake_id"`
	ItemID      int64     `json:"item_id" db:"item_id"`
	CheckedAt   time.Time `json:"checked_at" db:"checked_at"`
	CheckedBy   *int64    `json:"checked_by,omitempty" db:"checked_by"`
}

// StocktakeStatistics is a point-in-time view of a stocktake's progress.
type StocktakeStatistics struct {
	StocktakeID        int64   `json:"stocktake_id"`
	Status             string  `json:"status"`
	TotalItems         int     `json:"total_items"`
	CheckedItems       int     `json:"checked_items"`
	UncheckedItems     int     `json:"unchecked_items"`
	ProgressPercentage float64 `json:"progress_percentage"`
	DaysRemaining      int     `json:"days_remaining"`
	IsOverdue          bool    `json:"is_overdue"`
	AverageItemsPerDay float64 `json:"average_items_per_day"`
}

// StocktakeFilter narrows stocktake listings. Zero values mean no filtering.
type StocktakeFilter struct {
	AccountID int64
	Status    string
}

// Stocktake statuses.
const (
	StocktakeStatusPlanned    = "planned"
	StocktakeStatusInProgress = "in_progress"
	StocktakeStatusCompleted  = "completed"
	StocktakeStatusCancelled  = "cancelled"
)

// stocktakeTransitions lists the valid next states for every status.
// Terminal states have no entry.
var stocktakeTransitions = map[string][]string{
	StocktakeStatusPlanned:    {StocktakeStatusInProgress, StocktakeStatusCancelled},
	StocktakeStatusInProgress: {StocktakeStatusCompleted, StocktakeStatusCancelled},
}

// ValidStocktakeStatus reports whether status is a known stocktake status.
func ValidStocktakeStatus(status string) bool {
	switch status {
	case StocktakeStatusPlanned, StocktakeStatusInProgress, StocktakeStatusCompleted, StocktakeStatusCancelled:
		return true
	}
	return false
}

// StocktakeStatusTerminal reports whether no further transitions or checks
// are accepted in status.
func StocktakeStatusTerminal(status string) bool {
	return status == StocktakeStatusCompleted || status == StocktakeStatusCancelled
}

// CanTransitionStocktake reports whether a stocktake may move from one status to another.
func CanTransitionStocktake(from, to string) bool {
	for _, next := range stocktakeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HasItem reports whether itemID is part of the stocktake's snapshot.
func (s *Stocktake) HasItem(itemID int64) bool {
	for _, id := range s.ItemsToCheck {
		if id == itemID {
			return true
		}
	}
	return false
}

// HasAccount reports whether userID is authorized for the stocktake.
func (s *Stocktake) HasAccount(userID int64) bool {
	for _, id := range s.Accounts {
		if id == userID {
			return true
		}
	}
	return false
}

package model

import "time"

// Item is a single tracked asset.
type Item struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description,omitempty" db:"description"`
	InventoryNumber string     `json:"inventory_number,omitempty" db:"inventory_number"`
	Status          string     `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Item statuses.
const (
	ItemStatusActive  = "active"
	ItemStatusDamaged = "damaged"
	ItemStatusLost    = "lost"
	ItemStatusRetired = "retired"
)

// ValidItemStatus reports whether status is a known item status.
func ValidItemStatus(status string) bool {
	switch status {
	case ItemStatusActive, ItemStatusDamaged, ItemStatusLost, ItemStatusRetired:
		return true
	}
	return false
}

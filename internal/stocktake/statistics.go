package stocktake

import (
	"context"
	"math"
	"time"

	"github.com/erazemk/popis/internal/model"
)

const day = 24 * time.Hour

// GetStatistics computes the progress of a campaign as of now. It is a pure
// read and may be slightly stale relative to concurrent checks.
func (e *Engine) GetStatistics(ctx context.Context, id int64) (*model.StocktakeStatistics, error) {
	st, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	checked, err := e.repo.CountChecked(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := computeStatistics(st, checked, e.now())
	return &stats, nil
}

func computeStatistics(st *model.Stocktake, checked int, now time.Time) model.StocktakeStatistics {
	stats := model.StocktakeStatistics{
		StocktakeID:  st.ID,
		Status:       st.Status,
		TotalItems:   st.AllItems,
		CheckedItems: checked,
	}

	stats.UncheckedItems = max(stats.TotalItems-checked, 0)
	if stats.TotalItems > 0 {
		stats.ProgressPercentage = round2(100 * float64(checked) / float64(stats.TotalItems))
	}

	remaining := st.EndDate.Sub(now)
	stats.DaysRemaining = max(int(math.Ceil(remaining.Hours()/24)), 0)
	stats.IsOverdue = now.After(st.EndDate) && !model.StocktakeStatusTerminal(st.Status)

	elapsed := max(int(now.Sub(st.StartDate)/day), 1)
	stats.AverageItemsPerDay = round2(float64(checked) / float64(elapsed))

	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

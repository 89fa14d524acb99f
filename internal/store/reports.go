package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

// DashboardStats is the overview shown after sign-in.
type DashboardStats struct {
	TotalMaterials     int                     `json:"total_materials"`
	LowStockCount      int                     `json:"low_stock_count"`
	PendingRequests    int                     `json:"pending_requests"`
	TotalStockValue    decimal.Decimal         `json:"total_stock_value"`
	RecentRequests     []model.MaterialRequest `json:"recent_requests"`
	RecentTransactions []model.Transaction     `json:"recent_transactions"`
	LowStockMaterials  []model.Material        `json:"low_stock_materials"`
}

// CategoryStat summarizes active materials in one category.
type CategoryStat struct {
	Category   string          `json:"category"`
	Count      int             `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// MonthlyStat summarizes one transaction type in one month.
type MonthlyStat struct {
	Month      string          `json:"month"`
	Type       string          `json:"transaction_type"`
	Count      int             `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Dashboard gathers the dashboard counters and recent activity.
func Dashboard(ctx context.Context, db DBTX) (*DashboardStats, error) {
	s := &DashboardStats{}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN current_stock <= minimum_stock THEN 1 ELSE 0 END), 0),
		        ROUND(COALESCE(SUM(current_stock * unit_price), 0), 2)
		 FROM materials WHERE is_active = 1`,
	).Scan(&s.TotalMaterials, &s.LowStockCount, &s.TotalStockValue)
	if err != nil {
		return nil, fmt.Errorf("reading material totals: %w", err)
	}

	if s.PendingRequests, err = CountRequestsByStatus(ctx, db, model.StatusPending); err != nil {
		return nil, err
	}
	if s.RecentRequests, err = RecentRequests(ctx, db, 5); err != nil {
		return nil, err
	}
	if s.RecentTransactions, err = RecentTransactions(ctx, db, 0, 5); err != nil {
		return nil, err
	}
	if s.LowStockMaterials, err = ListLowStock(ctx, db, 10); err != nil {
		return nil, err
	}

	if s.RecentRequests == nil {
		s.RecentRequests = []model.MaterialRequest{}
	}
	if s.RecentTransactions == nil {
		s.RecentTransactions = []model.Transaction{}
	}
	if s.LowStockMaterials == nil {
		s.LowStockMaterials = []model.Material{}
	}
	return s, nil
}

// CategoryStats returns material count and stock value per category.
func CategoryStats(ctx context.Context, db DBTX) ([]CategoryStat, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT category, COUNT(*), ROUND(COALESCE(SUM(current_stock * unit_price), 0), 2)
		 FROM materials WHERE is_active = 1
		 GROUP BY category ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying category stats: %w", err)
	}
	defer rows.Close()

	stats := []CategoryStat{}
	for rows.Next() {
		var s CategoryStat
		if err := rows.Scan(&s.Category, &s.Count, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("scanning category stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// MonthlyStats returns transaction count and value per month and type, newest month first.
func MonthlyStats(ctx context.Context, db DBTX, months int) ([]MonthlyStat, error) {
	if months < 1 {
		months = 1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT substr(transaction_date, 1, 7) AS month, transaction_type, COUNT(*),
		        ROUND(COALESCE(SUM(ABS(quantity) * unit_price), 0), 2)
		 FROM transactions
		 WHERE transaction_date >= date('now', 'start of month', ?)
		 GROUP BY month, transaction_type
		 ORDER BY month DESC, transaction_type`,
		fmt.Sprintf("-%d months", months-1),
	)
	if err != nil {
		return nil, fmt.Errorf("querying monthly stats: %w", err)
	}
	defer rows.Close()

	stats := []MonthlyStat{}
	for rows.Next() {
		var s MonthlyStat
		if err := rows.Scan(&s.Month, &s.Type, &s.Count, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("scanning monthly stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

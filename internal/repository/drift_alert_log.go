package repository

import (
	"context"
	"fmt"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/domain/repository"
	pkgch "CandleCast/pkg/clickhouse"
)

// ClickHouseDriftLog appends drift reports.
type ClickHouseDriftLog struct {
	ch *pkgch.Client
}

func NewClickHouseDriftLog(ch *pkgch.Client) repository.DriftAlertLog {
	return &ClickHouseDriftLog{ch: ch}
}

func (d *ClickHouseDriftLog) AppendDriftReports(ctx context.Context, reports []models.DriftReport) error {
	if len(reports) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.drift_alerts
		(pair, name, method, statistic, threshold, breaches, triggered, window_from_ms, window_to_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, d.ch.Database())
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		var triggered uint8
		if r.Triggered {
			triggered = 1
		}
		rows = append(rows, []any{r.Pair, r.Name, r.Method, r.Statistic, r.Threshold, uint32(r.Breaches),
			triggered, r.Window.RecentFromMs, r.Window.RecentToMs, r.CheckedAt})
	}
	if err := d.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("append drift reports: %w", err)
	}
	return nil
}

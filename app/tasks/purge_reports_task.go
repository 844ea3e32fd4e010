package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wpmr/feed-validator/app/database"
)

// PurgeReportsTask strips hashed email data from reports older than the
// retention window. Scheduled periodically; validation results are kept.
type PurgeReportsTask struct {
	Task
	reportRepo    database.ReportRepository
	retentionDays int
}

func NewPurgeReportsTask(reportRepo database.ReportRepository, retentionDays int) *PurgeReportsTask {
	return &PurgeReportsTask{
		Task:          NewTask(TaskTypePurgeReports, ""),
		reportRepo:    reportRepo,
		retentionDays: retentionDays,
	}
}

func (t *PurgeReportsTask) Execute(ctx context.Context) error {
	if t.retentionDays <= 0 {
		slog.Debug("Report retention disabled, skipping purge")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -t.retentionDays)

	purged, err := t.reportRepo.PurgePII(cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge report PII: %w", err)
	}

	if purged > 0 {
		slog.Info("Purged PII from expired reports", "count", purged, "cutoff", cutoff.Format(time.RFC3339))
	}

	return nil
}

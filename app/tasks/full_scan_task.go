package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wpmr/feed-validator/app/cfg"
	"github.com/wpmr/feed-validator/app/database"
	"github.com/wpmr/feed-validator/app/fetcher"
	"github.com/wpmr/feed-validator/app/report"
	"github.com/wpmr/feed-validator/app/rules"
	"github.com/wpmr/feed-validator/app/validator"
)

// FullScanTask validates every item in a feed without sampling. It runs in
// the background because large feeds can take minutes, and uses raised
// transport caps compared to the interactive endpoint.
type FullScanTask struct {
	Task
	email        string
	fetcher      *fetcher.Fetcher
	packLoader   *rules.PackLoader
	reportRepo   database.ReportRepository
	overrideRepo database.OverrideRepository
	mailer       *report.Mailer
	notifier     *report.WebhookNotifier
}

func NewFullScanTask(feedURL, email string, f *fetcher.Fetcher, packLoader *rules.PackLoader,
	reportRepo database.ReportRepository, overrideRepo database.OverrideRepository,
	mailer *report.Mailer, notifier *report.WebhookNotifier) *FullScanTask {

	return &FullScanTask{
		Task:         NewTask(TaskTypeFullScan, feedURL),
		email:        email,
		fetcher:      f,
		packLoader:   packLoader,
		reportRepo:   reportRepo,
		overrideRepo: overrideRepo,
		mailer:       mailer,
		notifier:     notifier,
	}
}

func (t *FullScanTask) Execute(ctx context.Context) error {
	c := cfg.Get()

	fetchOpts := fetcher.Options{
		TimeoutSeconds: max(30, c.TimeoutSeconds),
		RedirectCap:    max(3, c.RedirectCap),
		MaxFileMB:      max(200, c.MaxFileMB),
		UserAgent:      c.UserAgent,
	}

	fetched, err := t.fetcher.Run(ctx, t.FeedURL, fetchOpts)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	pack := t.packLoader.Load(c.RuleVersion)
	overrides, err := t.overrideRepo.GetOverrides(pack.ID)
	if err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}
	weightOverrides, err := t.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		return fmt.Errorf("failed to load weight overrides: %w", err)
	}

	transport := validator.Transport{
		HTTPCode:    fetched.HTTPCode,
		ContentType: fetched.ContentType,
		Bytes:       fetched.Bytes,
	}
	result, err := validator.Run(fetched.Body, transport, fetched.Diagnostics,
		validator.Options{Sample: false}, pack, overrides, weightOverrides)
	if err != nil {
		return fmt.Errorf("failed to validate feed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	record := BuildReportRecord(result, t.FeedURL, t.email)
	record.OverrideCount = len(overrides) + weightOverrides.Count()

	if _, err := t.reportRepo.Create(record, c.ShareableReports, c.ReportTTLDays); err != nil {
		return fmt.Errorf("failed to persist report: %w", err)
	}

	reportURL := ""
	if record.PublicKey != "" {
		reportURL = c.BaseUrl + "/reports/public/" + record.PublicKey
	}

	// The report is persisted at this point. Notification failures are
	// logged, not retried, so the scan does not run twice.
	if t.email != "" {
		var attachment []byte
		if c.AttachCSV {
			attachment = report.CSV(result.Issues, 0)
		}
		msg := report.Message{
			URL:           t.FeedURL,
			Score:         result.Score,
			ItemsScanned:  result.ItemsScanned,
			Errors:        result.Totals.Errors,
			Warnings:      result.Totals.Warnings,
			RuleVersion:   result.RuleVersion,
			OverrideCount: record.OverrideCount,
			ReportURL:     reportURL,
		}
		if err := t.mailer.Send(t.email, msg, attachment); err != nil {
			slog.Error("Failed to send full scan report email", "url", t.FeedURL, "error", err)
		}
	}

	t.notifier.Notify(report.WebhookPayload{
		Email:     t.email,
		URL:       t.FeedURL,
		Score:     result.Score,
		Errors:    result.Totals.Errors,
		Warnings:  result.Totals.Warnings,
		ReportURL: reportURL,
	})

	slog.Info("Full scan completed", "url", t.FeedURL, "score", result.Score,
		"items_scanned", result.ItemsScanned, "duration", t.GetDuration().String())

	return nil
}

// BuildReportRecord converts a validation result into its persisted form.
// The email address is hashed here; the raw address never reaches the
// database layer.
func BuildReportRecord(result *validator.Report, feedURL, email string) *database.Report {
	emailHash, emailDomain := database.HashEmail(email)

	return &database.Report{
		URL:            feedURL,
		EmailSHA256:    emailHash,
		EmailDomain:    emailDomain,
		RuleVersion:    result.RuleVersion,
		Format:         string(result.Format),
		ItemsScanned:   result.ItemsScanned,
		ItemsTotal:     result.ItemsTotal,
		MissingIDCount: result.MissingIDCount,
		Score:          result.Score,
		TotalsJSON:     mustJSON(result.Totals),
		IssuesJSON:     mustJSON(result.Issues),
		TransportJSON:  mustJSON(result.Transport),
		DuplicatesJSON: mustJSON(result.Duplicates),
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

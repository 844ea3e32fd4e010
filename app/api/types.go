package api

import (
	"github.com/wpmr/feed-validator/app/database"
	"github.com/wpmr/feed-validator/app/fetcher"
	"github.com/wpmr/feed-validator/app/report"
	"github.com/wpmr/feed-validator/app/rules"
	"github.com/wpmr/feed-validator/app/tasks"
)

type Handler struct {
	reportRepo   database.ReportRepository
	overrideRepo database.OverrideRepository
	packLoader   *rules.PackLoader
	fetcher      *fetcher.Fetcher
	mailer       *report.Mailer
	notifier     *report.WebhookNotifier
	scheduler    tasks.TaskSchedulerInterface
	limiter      *rateLimiter
	blocklist    []string
}

type ValidateRequest struct {
	URL    string `json:"url" binding:"required"`
	Email  string `json:"email"`
	Sample *bool  `json:"sample"` // nil means sampled, the interactive default
}

type OverrideRequest struct {
	Code           string `json:"code" binding:"required"`
	Severity       string `json:"severity"`
	Enabled        *bool  `json:"enabled"`
	WeightOverride *int   `json:"weight_override"`
}

type PreviewRequest struct {
	URL       string                    `json:"url" binding:"required"`
	Sample    *bool                     `json:"sample"`
	Overrides map[string]rules.Override `json:"overrides"`
}

type ScanRequest struct {
	URL   string `json:"url" binding:"required"`
	Email string `json:"email"`
}

// RulesExport is the portable override bundle produced by export and
// accepted by import.
type RulesExport struct {
	RuleVersion string                    `json:"rule_version"`
	Overrides   map[string]rules.Override `json:"overrides"`
	Weights     rules.WeightOverrides     `json:"weights"`
}

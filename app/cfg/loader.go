package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./feed-validator.db" description:"Path to the SQLite database file"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://validator.example.com)"`
	RulesDir     string `long:"rules-dir" env:"RULES_DIR" default:"./rules" description:"Directory containing rule pack files"`
	RuleVersion  string `long:"rule-version" env:"RULE_VERSION" default:"google-v2025-09" description:"Rule pack version to validate against"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authenticated endpoints (optional)"`

	// Pipeline limits
	SampleSize     int `long:"sample-size" env:"SAMPLE_SIZE" default:"500" description:"Number of items to scan when sampling"`
	TimeoutSeconds int `long:"timeout-seconds" env:"TIMEOUT_SECONDS" default:"20" description:"Feed fetch timeout in seconds"`
	RedirectCap    int `long:"redirect-cap" env:"REDIRECT_CAP" default:"3" description:"Maximum number of redirects to follow"`
	MaxFileMB      int `long:"max-file-mb" env:"MAX_FILE_MB" default:"100" description:"Maximum feed size in megabytes"`

	// Background workers
	WorkerCount       int `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for full scans"`
	SchedulerInterval int `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"3600" description:"Scheduler interval in seconds"`
	RetentionDays     int `long:"retention-days" env:"RETENTION_DAYS" default:"180" description:"Days before report PII is purged (0 disables)"`

	// Abuse controls
	RateLimitPerMinute int    `long:"rate-limit" env:"RATE_LIMIT_PER_MINUTE" default:"10" description:"Validation requests allowed per client per minute (0 disables)"`
	Blocklist          string `long:"blocklist" env:"BLOCKLIST" description:"Comma-separated emails, domains, or IPs to reject"`

	// Report delivery
	ShareableReports     bool   `long:"shareable-reports" env:"SHAREABLE_REPORTS" description:"Issue public keys for stored reports"`
	ReportTTLDays        int    `long:"report-ttl-days" env:"REPORT_TTL_DAYS" default:"0" description:"Days before public reports expire (0 = never)"`
	DeliveryMode         string `long:"delivery-mode" env:"DELIVERY_MODE" default:"email_plus_display" description:"Report delivery mode: email_only or email_plus_display"`
	AttachCSV            bool   `long:"attach-csv" env:"ATTACH_CSV" description:"Attach a CSV of issues to report emails"`
	EmailSubjectTemplate string `long:"email-subject" env:"EMAIL_SUBJECT_TEMPLATE" default:"Your Product Feed Report - {score}/100" description:"Email subject template"`
	EmailBodyTemplate    string `long:"email-body" env:"EMAIL_BODY_TEMPLATE" default:"Here is your product feed report for {url}. Items scanned: {items_scanned}. Errors: {errors}. Warnings: {warnings}. Date: {date}." description:"Email body template"`
	SMTPHost             string `long:"smtp-host" env:"SMTP_HOST" description:"SMTP server host (empty disables email delivery)"`
	SMTPPort             int    `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port"`
	SMTPFrom             string `long:"smtp-from" env:"SMTP_FROM" description:"Sender address for report emails"`
	SMTPUser             string `long:"smtp-user" env:"SMTP_USER" description:"SMTP username"`
	SMTPPassword         string `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
	WebhookURL           string `long:"webhook-url" env:"WEBHOOK_URL" description:"Webhook endpoint notified after each validation (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed-Validator/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:               raw.DBPath,
		Port:                 raw.Port,
		BaseUrl:              raw.BaseUrl,
		RulesDir:             raw.RulesDir,
		RuleVersion:          raw.RuleVersion,
		APIAccessKey:         raw.APIAccessKey,
		SampleSize:           raw.SampleSize,
		TimeoutSeconds:       raw.TimeoutSeconds,
		RedirectCap:          raw.RedirectCap,
		MaxFileMB:            raw.MaxFileMB,
		WorkerCount:          raw.WorkerCount,
		SchedulerInterval:    raw.SchedulerInterval,
		RetentionDays:        raw.RetentionDays,
		RateLimitPerMinute:   raw.RateLimitPerMinute,
		Blocklist:            raw.Blocklist,
		ShareableReports:     raw.ShareableReports,
		ReportTTLDays:        raw.ReportTTLDays,
		DeliveryMode:         raw.DeliveryMode,
		AttachCSV:            raw.AttachCSV,
		EmailSubjectTemplate: raw.EmailSubjectTemplate,
		EmailBodyTemplate:    raw.EmailBodyTemplate,
		SMTPHost:             raw.SMTPHost,
		SMTPPort:             raw.SMTPPort,
		SMTPFrom:             raw.SMTPFrom,
		SMTPUser:             raw.SMTPUser,
		SMTPPassword:         raw.SMTPPassword,
		WebhookURL:           raw.WebhookURL,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

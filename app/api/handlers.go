package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wpmr/feed-validator/app/cfg"
	"github.com/wpmr/feed-validator/app/database"
	"github.com/wpmr/feed-validator/app/feed"
	"github.com/wpmr/feed-validator/app/fetcher"
	"github.com/wpmr/feed-validator/app/report"
	"github.com/wpmr/feed-validator/app/rules"
	"github.com/wpmr/feed-validator/app/tasks"
	"github.com/wpmr/feed-validator/app/validator"
)

func NewHandler(reportRepo database.ReportRepository, overrideRepo database.OverrideRepository,
	packLoader *rules.PackLoader, f *fetcher.Fetcher, mailer *report.Mailer,
	notifier *report.WebhookNotifier, scheduler tasks.TaskSchedulerInterface) *Handler {

	c := cfg.Get()

	var blocklist []string
	for _, entry := range strings.Split(c.Blocklist, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			blocklist = append(blocklist, entry)
		}
	}

	return &Handler{
		reportRepo:   reportRepo,
		overrideRepo: overrideRepo,
		packLoader:   packLoader,
		fetcher:      f,
		mailer:       mailer,
		notifier:     notifier,
		scheduler:    scheduler,
		limiter:      newRateLimiter(c.RateLimitPerMinute),
		blocklist:    blocklist,
	}
}

// Validate runs the interactive, sampled validation pipeline and persists
// the resulting report.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if req.Email != "" && !validEmail(req.Email) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "A valid email is required."})
		return
	}

	if !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later."})
		return
	}

	if h.isBlocked(req.URL, req.Email, c.ClientIP()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "This request is not allowed."})
		return
	}

	conf := cfg.Get()
	sample := req.Sample == nil || *req.Sample

	fetched, err := h.fetcher.Run(c.Request.Context(), req.URL, fetcher.Options{
		TimeoutSeconds: conf.TimeoutSeconds,
		RedirectCap:    conf.RedirectCap,
		MaxFileMB:      conf.MaxFileMB,
		UserAgent:      conf.UserAgent,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	pack := h.packLoader.Load(conf.RuleVersion)
	overrides, err := h.overrideRepo.GetOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	weightOverrides, err := h.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	transport := validator.Transport{
		HTTPCode:    fetched.HTTPCode,
		ContentType: fetched.ContentType,
		Bytes:       fetched.Bytes,
	}
	result, err := validator.Run(fetched.Body, transport, fetched.Diagnostics,
		validator.Options{Sample: sample, SampleSize: conf.SampleSize},
		pack, overrides, weightOverrides)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	record := tasks.BuildReportRecord(result, req.URL, req.Email)
	record.OverrideCount = len(overrides) + weightOverrides.Count()
	if _, err := h.reportRepo.Create(record, conf.ShareableReports, conf.ReportTTLDays); err != nil {
		// The caller still gets their result; only persistence failed.
		slog.Error("Failed to persist report", "url", req.URL, "error", err)
	}

	reportURL := ""
	if record.PublicKey != "" {
		reportURL = conf.BaseUrl + "/reports/public/" + record.PublicKey
	}

	if req.Email != "" {
		var attachment []byte
		if conf.AttachCSV {
			attachment = report.CSV(result.Issues, 0)
		}
		msg := report.Message{
			URL:           req.URL,
			Score:         result.Score,
			ItemsScanned:  result.ItemsScanned,
			Errors:        result.Totals.Errors,
			Warnings:      result.Totals.Warnings,
			RuleVersion:   result.RuleVersion,
			OverrideCount: record.OverrideCount,
			ReportURL:     reportURL,
		}
		if err := h.mailer.Send(req.Email, msg, attachment); err != nil {
			slog.Error("Failed to send report email", "url", req.URL, "error", err)
		}
	}

	h.notifier.Notify(report.WebhookPayload{
		Email:     req.Email,
		URL:       req.URL,
		Score:     result.Score,
		Errors:    result.Totals.Errors,
		Warnings:  result.Totals.Warnings,
		ReportURL: reportURL,
	})

	if conf.DeliveryMode == "email_only" && req.Email != "" {
		c.JSON(http.StatusOK, gin.H{
			"status":          "sent",
			"message":         "The report has been emailed to you.",
			"report_id":       record.ID,
			"public_endpoint": reportURL,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":          result,
		"report_id":       record.ID,
		"public_key":      record.PublicKey,
		"public_endpoint": reportURL,
	})
}

// GetPublicReport serves a shareable report. Email data is already
// stripped by the repository.
func (h *Handler) GetPublicReport(c *gin.Context) {
	key := c.Param("key")

	record, err := h.reportRepo.GetByPublicKey(key)
	if err != nil {
		slog.Error("Database error", "operation", "get_public_report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found or link expired"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":              record.URL,
		"created_at":       record.CreatedAt,
		"rule_version":     record.RuleVersion,
		"format":           record.Format,
		"score":            record.Score,
		"items_scanned":    record.ItemsScanned,
		"items_total":      record.ItemsTotal,
		"missing_id_count": record.MissingIDCount,
		"override_count":   record.OverrideCount,
		"totals":           rawJSON(record.TotalsJSON, "{}"),
		"issues":           rawJSON(record.IssuesJSON, "[]"),
		"transport":        rawJSON(record.TransportJSON, "{}"),
		"duplicates":       rawJSON(record.DuplicatesJSON, "[]"),
	})
}

// GetRules returns the active rule pack with overrides applied, in pack
// order.
func (h *Handler) GetRules(c *gin.Context) {
	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	overrides, err := h.overrideRepo.GetOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	weightOverrides, err := h.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	effective := rules.EffectiveRules(pack, overrides)
	list := make([]rules.EffectiveRule, 0, len(pack.Rules))
	for _, pr := range pack.Rules {
		list = append(list, effective[pr.Code])
	}

	c.JSON(http.StatusOK, gin.H{
		"rule_version": pack.ID,
		"weights":      rules.EffectiveWeights(pack, weightOverrides),
		"rules":        list,
	})
}

// SetOverride creates or updates an override for one rule.
func (h *Handler) SetOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	packRule := findRule(pack, req.Code)
	if packRule == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown rule code: %s", req.Code)})
		return
	}
	if !packRule.CanOverride {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Rule %s cannot be overridden", req.Code)})
		return
	}

	override := rules.Override{
		Enabled:        req.Enabled,
		WeightOverride: req.WeightOverride,
	}
	if req.Severity != "" {
		severity := feed.Severity(req.Severity)
		if !severity.Valid() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Invalid severity: %s", req.Severity)})
			return
		}
		override.Severity = severity
	}
	if req.WeightOverride != nil && *req.WeightOverride < 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "weight_override must not be negative"})
		return
	}

	if err := h.overrideRepo.SetOverride(pack.ID, req.Code, override); err != nil {
		slog.Error("Database error", "operation", "set_override", "code", req.Code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved", "code": req.Code})
}

func (h *Handler) DeleteOverride(c *gin.Context) {
	code := c.Param("code")
	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	if err := h.overrideRepo.DeleteOverride(pack.ID, code); err != nil {
		slog.Error("Database error", "operation", "delete_override", "code", code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "code": code})
}

func (h *Handler) GetWeights(c *gin.Context) {
	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	weightOverrides, err := h.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rule_version": pack.ID,
		"defaults":     pack.Weights,
		"overrides":    weightOverrides,
		"effective":    rules.EffectiveWeights(pack, weightOverrides),
	})
}

// SetWeights replaces the weight overrides. Posting an empty object
// clears them.
func (h *Handler) SetWeights(c *gin.Context) {
	var req rules.WeightOverrides
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid weights payload"})
		return
	}

	for _, p := range []*int{req.Error, req.Warning, req.Advice, req.CapPerCategory} {
		if p != nil && *p < 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Weights must not be negative"})
			return
		}
	}

	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	var err error
	if req.Count() == 0 {
		err = h.overrideRepo.DeleteWeightOverrides(pack.ID)
	} else {
		err = h.overrideRepo.SetWeightOverrides(pack.ID, req)
	}
	if err != nil {
		slog.Error("Database error", "operation", "set_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "saved",
		"effective": rules.EffectiveWeights(pack, req),
	})
}

func (h *Handler) ExportRules(c *gin.Context) {
	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	overrides, err := h.overrideRepo.GetOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	weightOverrides, err := h.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="rules-%s.json"`, pack.ID))
	c.JSON(http.StatusOK, RulesExport{
		RuleVersion: pack.ID,
		Overrides:   overrides,
		Weights:     weightOverrides,
	})
}

// ImportRules replaces the full override set with an exported bundle.
func (h *Handler) ImportRules(c *gin.Context) {
	var req RulesExport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid import payload"})
		return
	}

	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	if req.RuleVersion != "" && req.RuleVersion != pack.ID {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("Bundle targets rule version %s, active version is %s", req.RuleVersion, pack.ID),
		})
		return
	}

	for code, override := range req.Overrides {
		if override.Severity != "" && !override.Severity.Valid() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Invalid severity for rule %s", code)})
			return
		}
	}

	if err := h.overrideRepo.ReplaceOverrides(pack.ID, req.Overrides); err != nil {
		slog.Error("Database error", "operation", "replace_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	var err error
	if req.Weights.Count() == 0 {
		err = h.overrideRepo.DeleteWeightOverrides(pack.ID)
	} else {
		err = h.overrideRepo.SetWeightOverrides(pack.ID, req.Weights)
	}
	if err != nil {
		slog.Error("Database error", "operation", "import_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "imported", "overrides": len(req.Overrides)})
}

// RestoreRules drops every override, returning the pack to its defaults.
func (h *Handler) RestoreRules(c *gin.Context) {
	conf := cfg.Get()
	pack := h.packLoader.Load(conf.RuleVersion)

	if err := h.overrideRepo.ReplaceOverrides(pack.ID, nil); err != nil {
		slog.Error("Database error", "operation", "restore_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if err := h.overrideRepo.DeleteWeightOverrides(pack.ID); err != nil {
		slog.Error("Database error", "operation", "restore_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

// PreviewRules validates a feed against the persisted overrides and a
// hypothetical set, returning both outcomes and the delta.
func (h *Handler) PreviewRules(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if h.isBlocked(req.URL, "", c.ClientIP()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "This request is not allowed."})
		return
	}

	conf := cfg.Get()
	sample := req.Sample == nil || *req.Sample

	fetched, err := h.fetcher.Run(c.Request.Context(), req.URL, fetcher.Options{
		TimeoutSeconds: conf.TimeoutSeconds,
		RedirectCap:    conf.RedirectCap,
		MaxFileMB:      conf.MaxFileMB,
		UserAgent:      conf.UserAgent,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	pack := h.packLoader.Load(conf.RuleVersion)
	baseOverrides, err := h.overrideRepo.GetOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	weightOverrides, err := h.overrideRepo.GetWeightOverrides(pack.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_weight_overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	outcome, err := validator.Preview(fetched.Body, fetched.Diagnostics,
		validator.Options{Sample: sample, SampleSize: conf.SampleSize},
		pack, baseOverrides, req.Overrides, weightOverrides)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// CreateScan queues an unsampled full scan in the background.
func (h *Handler) CreateScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if req.Email != "" && !validEmail(req.Email) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "A valid email is required."})
		return
	}
	if h.isBlocked(req.URL, req.Email, c.ClientIP()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "This request is not allowed."})
		return
	}
	if err := h.fetcher.ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	task := tasks.NewFullScanTask(req.URL, req.Email, h.fetcher, h.packLoader,
		h.reportRepo, h.overrideRepo, h.mailer, h.notifier)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Failed to enqueue full scan", "url", req.URL, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scan queue is full, try again later"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "task_id": task.GetID()})
}

func (h *Handler) GetReportCSV(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report id"})
		return
	}

	record, err := h.reportRepo.GetByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_report", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}

	var issues []rules.Issue
	if err := json.Unmarshal([]byte(record.IssuesJSON), &issues); err != nil {
		slog.Error("Failed to decode stored issues", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="feed-report-%d.csv"`, id))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", report.CSV(issues, 0))
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if _, err := h.reportRepo.GetCount(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": cfg.GetVersion(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.reportRepo.GetStats()
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	conf := cfg.Get()
	c.JSON(http.StatusOK, gin.H{
		"reports":        stats.ReportCount,
		"average_score":  stats.AverageScore,
		"last_report_at": stats.LastReportAt,
		"rule_version":   conf.RuleVersion,
	})
}

// isBlocked matches blocklist entries against the requester's email,
// the email's domain, the client IP, and the feed URL's host (exact or
// parent domain).
func (h *Handler) isBlocked(rawURL, email, clientIP string) bool {
	if len(h.blocklist) == 0 {
		return false
	}

	email = strings.ToLower(strings.TrimSpace(email))
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	for _, entry := range h.blocklist {
		if email != "" && email == entry {
			return true
		}
		if domain != "" && domain == entry {
			return true
		}
		if clientIP != "" && clientIP == entry {
			return true
		}
		if host != "" && (host == entry || strings.HasSuffix(host, "."+entry)) {
			return true
		}
	}
	return false
}

// validEmail accepts a bare RFC 5322 address, no display name.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func findRule(pack *rules.RulePack, code string) *rules.PackRule {
	for i := range pack.Rules {
		if pack.Rules[i].Code == code {
			return &pack.Rules[i]
		}
	}
	return nil
}

func rawJSON(s, fallback string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}

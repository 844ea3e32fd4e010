package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type reportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) ReportRepository {
	return &reportRepository{db: db}
}

// HashEmail returns the sha256 hex digest of the normalized address plus
// its domain part. Raw addresses are never stored.
func HashEmail(email string) (string, string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ""
	}
	sum := sha256.Sum256([]byte(email))
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	return hex.EncodeToString(sum[:]), domain
}

// Create persists a report. When shareable is true a public key and TTL
// expiry are generated so the report can be fetched without auth.
func (r *reportRepository) Create(report *Report, shareable bool, ttlDays int) (int64, error) {
	if report.URLHost == "" {
		if u, err := url.Parse(report.URL); err == nil {
			report.URLHost = u.Hostname()
		}
	}
	if shareable {
		report.PublicKey = uuid.New().String()
		if ttlDays > 0 {
			expires := time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)
			report.ExpiresAt = &expires
		}
	}

	var publicKey sql.NullString
	if report.PublicKey != "" {
		publicKey = sql.NullString{String: report.PublicKey, Valid: true}
	}
	var expiresAt sql.NullTime
	if report.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: report.ExpiresAt.UTC(), Valid: true}
	}

	result, err := r.db.Exec(`
		INSERT INTO reports (
			url, url_host, email_sha256, email_domain, rule_version, format,
			items_scanned, items_total, missing_id_count, override_count, score,
			totals_json, issues_json, transport_json, duplicates_json,
			public_key, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.URL, report.URLHost, report.EmailSHA256, report.EmailDomain,
		report.RuleVersion, report.Format,
		report.ItemsScanned, report.ItemsTotal, report.MissingIDCount,
		report.OverrideCount, report.Score,
		report.TotalsJSON, report.IssuesJSON, report.TransportJSON, report.DuplicatesJSON,
		publicKey, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report id: %w", err)
	}
	report.ID = id

	return id, nil
}

func (r *reportRepository) GetByID(id int64) (*Report, error) {
	report, err := r.scanReport(r.db.QueryRow(selectColumns+` FROM reports WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %d: %w", id, err)
	}
	return report, nil
}

// GetByPublicKey resolves a shareable link. Expired links do not resolve,
// and email fields are stripped from the public view.
func (r *reportRepository) GetByPublicKey(key string) (*Report, error) {
	report, err := r.scanReport(r.db.QueryRow(selectColumns+`
		FROM reports
		WHERE public_key = ?
		  AND (expires_at IS NULL OR expires_at > ?)
	`, key, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report by public key: %w", err)
	}

	report.EmailSHA256 = ""
	report.EmailDomain = ""

	return report, nil
}

func (r *reportRepository) GetCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

func (r *reportRepository) GetStats() (*ReportStats, error) {
	stats := &ReportStats{}

	var avgScore sql.NullFloat64
	var lastAt sql.NullTime
	err := r.db.QueryRow(`
		SELECT COUNT(*), AVG(score), MAX(created_at) FROM reports
	`).Scan(&stats.ReportCount, &avgScore, &lastAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get report stats: %w", err)
	}
	if avgScore.Valid {
		stats.AverageScore = avgScore.Float64
	}
	if lastAt.Valid {
		t := lastAt.Time
		stats.LastReportAt = &t
	}

	return stats, nil
}

// PurgePII clears the hashed email columns on reports older than the
// retention cutoff. Validation results themselves are kept.
func (r *reportRepository) PurgePII(olderThan time.Time) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE reports
		SET email_sha256 = '', email_domain = ''
		WHERE created_at < ?
		  AND (email_sha256 != '' OR email_domain != '')
	`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge report PII: %w", err)
	}
	return result.RowsAffected()
}

const selectColumns = `
	SELECT id, created_at, url, url_host, email_sha256, email_domain,
	       rule_version, format, items_scanned, items_total,
	       missing_id_count, override_count, score,
	       totals_json, issues_json, transport_json, duplicates_json,
	       public_key, expires_at`

func (r *reportRepository) scanReport(row *sql.Row) (*Report, error) {
	report := &Report{}
	var publicKey sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&report.ID, &report.CreatedAt, &report.URL, &report.URLHost,
		&report.EmailSHA256, &report.EmailDomain,
		&report.RuleVersion, &report.Format, &report.ItemsScanned, &report.ItemsTotal,
		&report.MissingIDCount, &report.OverrideCount, &report.Score,
		&report.TotalsJSON, &report.IssuesJSON, &report.TransportJSON, &report.DuplicatesJSON,
		&publicKey, &expiresAt)
	if err != nil {
		return nil, err
	}

	if publicKey.Valid {
		report.PublicKey = publicKey.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		report.ExpiresAt = &t
	}

	return report, nil
}

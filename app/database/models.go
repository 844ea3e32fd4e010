package database

import (
	"time"
)

// Report is a persisted validation run. Issue and diagnostic payloads are
// stored as JSON text so the schema stays stable as rule packs evolve.
type Report struct {
	ID             int64
	CreatedAt      time.Time
	URL            string
	URLHost        string
	EmailSHA256    string // sha256 hex of the lowercased address, never the raw address
	EmailDomain    string
	RuleVersion    string
	Format         string
	ItemsScanned   int
	ItemsTotal     int
	MissingIDCount int
	OverrideCount  int
	Score          int
	TotalsJSON     string
	IssuesJSON     string
	TransportJSON  string
	DuplicatesJSON string
	PublicKey      string     // set only for shareable reports
	ExpiresAt      *time.Time // public link expiry, nil = no public link
}

// ReportStats is the aggregate view exposed by the stats endpoint.
type ReportStats struct {
	ReportCount  int
	AverageScore float64
	LastReportAt *time.Time
}

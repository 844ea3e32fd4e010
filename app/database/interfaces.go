package database

import (
	"time"

	"github.com/wpmr/feed-validator/app/rules"
)

type ReportRepository interface {
	Create(report *Report, shareable bool, ttlDays int) (int64, error)
	GetByID(id int64) (*Report, error)
	GetByPublicKey(key string) (*Report, error)
	GetCount() (int, error)
	GetStats() (*ReportStats, error)

	PurgePII(olderThan time.Time) (int64, error)
}

type OverrideRepository interface {
	GetOverrides(ruleVersion string) (map[string]rules.Override, error)
	SetOverride(ruleVersion, ruleCode string, override rules.Override) error
	DeleteOverride(ruleVersion, ruleCode string) error
	ReplaceOverrides(ruleVersion string, overrides map[string]rules.Override) error

	GetWeightOverrides(ruleVersion string) (rules.WeightOverrides, error)
	SetWeightOverrides(ruleVersion string, weights rules.WeightOverrides) error
	DeleteWeightOverrides(ruleVersion string) error
}

package database

import (
	"database/sql"
	"fmt"

	"github.com/wpmr/feed-validator/app/feed"
	"github.com/wpmr/feed-validator/app/rules"
)

type overrideRepository struct {
	db *DB
}

func NewOverrideRepository(db *DB) OverrideRepository {
	return &overrideRepository{db: db}
}

func (r *overrideRepository) GetOverrides(ruleVersion string) (map[string]rules.Override, error) {
	rows, err := r.db.Query(`
		SELECT rule_code, severity, enabled, weight_override
		FROM rule_overrides
		WHERE rule_version = ?
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to get overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]rules.Override)
	for rows.Next() {
		var code, severity string
		var enabled sql.NullBool
		var weight sql.NullInt64

		if err := rows.Scan(&code, &severity, &enabled, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}

		override := rules.Override{Severity: feed.Severity(severity)}
		if enabled.Valid {
			v := enabled.Bool
			override.Enabled = &v
		}
		if weight.Valid {
			v := int(weight.Int64)
			override.WeightOverride = &v
		}
		overrides[code] = override
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}

	return overrides, nil
}

func (r *overrideRepository) SetOverride(ruleVersion, ruleCode string, override rules.Override) error {
	enabled := sql.NullBool{}
	if override.Enabled != nil {
		enabled = sql.NullBool{Bool: *override.Enabled, Valid: true}
	}
	weight := sql.NullInt64{}
	if override.WeightOverride != nil {
		weight = sql.NullInt64{Int64: int64(*override.WeightOverride), Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO rule_overrides (rule_version, rule_code, severity, enabled, weight_override, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (rule_version, rule_code) DO UPDATE SET
			severity = excluded.severity,
			enabled = excluded.enabled,
			weight_override = excluded.weight_override,
			updated_at = CURRENT_TIMESTAMP
	`, ruleVersion, ruleCode, string(override.Severity), enabled, weight)
	if err != nil {
		return fmt.Errorf("failed to set override for %s: %w", ruleCode, err)
	}
	return nil
}

func (r *overrideRepository) DeleteOverride(ruleVersion, ruleCode string) error {
	_, err := r.db.Exec(`
		DELETE FROM rule_overrides WHERE rule_version = ? AND rule_code = ?
	`, ruleVersion, ruleCode)
	if err != nil {
		return fmt.Errorf("failed to delete override for %s: %w", ruleCode, err)
	}
	return nil
}

// ReplaceOverrides swaps the full override set for a rule version in one
// transaction. Used by import and restore.
func (r *overrideRepository) ReplaceOverrides(ruleVersion string, overrides map[string]rules.Override) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rule_overrides WHERE rule_version = ?`, ruleVersion); err != nil {
		return fmt.Errorf("failed to clear overrides: %w", err)
	}

	for code, override := range overrides {
		enabled := sql.NullBool{}
		if override.Enabled != nil {
			enabled = sql.NullBool{Bool: *override.Enabled, Valid: true}
		}
		weight := sql.NullInt64{}
		if override.WeightOverride != nil {
			weight = sql.NullInt64{Int64: int64(*override.WeightOverride), Valid: true}
		}

		_, err := tx.Exec(`
			INSERT INTO rule_overrides (rule_version, rule_code, severity, enabled, weight_override, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, ruleVersion, code, string(override.Severity), enabled, weight)
		if err != nil {
			return fmt.Errorf("failed to insert override for %s: %w", code, err)
		}
	}

	return tx.Commit()
}

func (r *overrideRepository) GetWeightOverrides(ruleVersion string) (rules.WeightOverrides, error) {
	var weights rules.WeightOverrides
	var errW, warnW, adviceW, capW sql.NullInt64

	err := r.db.QueryRow(`
		SELECT error_weight, warning_weight, advice_weight, cap_per_category
		FROM weight_overrides
		WHERE rule_version = ?
	`, ruleVersion).Scan(&errW, &warnW, &adviceW, &capW)
	if err == sql.ErrNoRows {
		return weights, nil
	}
	if err != nil {
		return weights, fmt.Errorf("failed to get weight overrides: %w", err)
	}

	weights.Error = nullableInt(errW)
	weights.Warning = nullableInt(warnW)
	weights.Advice = nullableInt(adviceW)
	weights.CapPerCategory = nullableInt(capW)

	return weights, nil
}

func (r *overrideRepository) SetWeightOverrides(ruleVersion string, weights rules.WeightOverrides) error {
	_, err := r.db.Exec(`
		INSERT INTO weight_overrides (rule_version, error_weight, warning_weight, advice_weight, cap_per_category, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (rule_version) DO UPDATE SET
			error_weight = excluded.error_weight,
			warning_weight = excluded.warning_weight,
			advice_weight = excluded.advice_weight,
			cap_per_category = excluded.cap_per_category,
			updated_at = CURRENT_TIMESTAMP
	`, ruleVersion,
		nullInt(weights.Error), nullInt(weights.Warning),
		nullInt(weights.Advice), nullInt(weights.CapPerCategory))
	if err != nil {
		return fmt.Errorf("failed to set weight overrides: %w", err)
	}
	return nil
}

func (r *overrideRepository) DeleteWeightOverrides(ruleVersion string) error {
	_, err := r.db.Exec(`DELETE FROM weight_overrides WHERE rule_version = ?`, ruleVersion)
	if err != nil {
		return fmt.Errorf("failed to delete weight overrides: %w", err)
	}
	return nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

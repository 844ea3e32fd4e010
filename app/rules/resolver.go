package rules

// EffectiveRules merges persisted overrides onto the pack definitions.
// Overrides referencing codes absent from the pack are never materialized.
func EffectiveRules(pack *RulePack, overrides map[string]Override) map[string]EffectiveRule {
	effective := make(map[string]EffectiveRule, len(pack.Rules))

	for _, r := range pack.Rules {
		e := EffectiveRule{
			Code:            r.Code,
			Category:        r.Category,
			DefaultSeverity: r.DefaultSeverity,
			Message:         r.Message,
			DocsURL:         r.DocsURL,
			CanOverride:     r.CanOverride,
			Enabled:         true,
			Severity:        r.DefaultSeverity,
			Source:          SourceDefault,
		}

		ov, ok := overrides[r.Code]
		if ok && !ov.IsZero() {
			e.Source = SourceOverride
		}
		if ov.Enabled != nil {
			e.Enabled = *ov.Enabled
		}
		if ov.Severity.Valid() {
			e.Severity = ov.Severity
		}
		if ov.WeightOverride != nil {
			e.WeightOverride = *ov.WeightOverride
		}

		effective[r.Code] = e
	}

	return effective
}

// EffectiveWeights overlays numeric weight overrides onto the pack's base
// weights field by field.
func EffectiveWeights(pack *RulePack, overrides WeightOverrides) Weights {
	weights := pack.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if overrides.Error != nil {
		weights.Error = *overrides.Error
	}
	if overrides.Warning != nil {
		weights.Warning = *overrides.Warning
	}
	if overrides.Advice != nil {
		weights.Advice = *overrides.Advice
	}
	if overrides.CapPerCategory != nil {
		weights.CapPerCategory = *overrides.CapPerCategory
	}
	return weights
}

package rules

import "github.com/wpmr/feed-validator/app/feed"

// Compute aggregates issues into a 0..100 quality score. Each issue's
// penalty is its own positive weight when set, else the severity weight;
// per-category penalties are capped so one noisy category cannot zero the
// score on its own. Totals count every issue regardless of capping.
func Compute(issues []Issue, weights Weights) ScoreResult {
	capPerCategory := weights.CapPerCategory

	totals := Totals{}
	penalties := map[string]int{}

	for _, issue := range issues {
		switch issue.Severity {
		case feed.SeverityError:
			totals.Errors++
		case feed.SeverityWarning:
			totals.Warnings++
		default:
			totals.Advice++
		}

		w := issue.Weight
		if w <= 0 {
			w = severityWeight(issue.Severity, weights)
		}
		if w <= 0 {
			continue
		}

		cat := issue.Category
		if cat == "" {
			cat = "general"
		}
		if penalties[cat] < capPerCategory {
			penalties[cat] = min(capPerCategory, penalties[cat]+w)
		}
	}

	totalPenalty := 0
	for _, p := range penalties {
		totalPenalty += p
	}
	score := max(0, 100-totalPenalty)

	return ScoreResult{
		Score:               score,
		Totals:              totals,
		PenaltiesByCategory: penalties,
	}
}

// QualityScores rates every item 0..100 from its own findings: errors
// cost 10 points, warnings 5, advice 2, floored at zero. Keys match the
// item ids used in issues, including the placeholder for missing ids.
// Transport and whole-feed findings carry ids outside the item set and
// do not affect any item's score.
func QualityScores(issues []Issue, items []feed.ProductRecord) map[string]int {
	penalties := make(map[string]int, len(items))
	for idx, it := range items {
		penalties[itemKey(it, idx)] = 0
	}

	for _, issue := range issues {
		if _, ok := penalties[issue.ItemID]; !ok {
			continue
		}
		switch issue.Severity {
		case feed.SeverityError:
			penalties[issue.ItemID] += 10
		case feed.SeverityWarning:
			penalties[issue.ItemID] += 5
		default:
			penalties[issue.ItemID] += 2
		}
	}

	scores := make(map[string]int, len(penalties))
	for id, penalty := range penalties {
		scores[id] = max(0, 100-penalty)
	}
	return scores
}

func severityWeight(severity feed.Severity, weights Weights) int {
	switch severity {
	case feed.SeverityError:
		return weights.Error
	case feed.SeverityWarning:
		return weights.Warning
	case feed.SeverityAdvice:
		return weights.Advice
	}
	return 0
}

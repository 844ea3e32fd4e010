package validator

import (
	"maps"

	"github.com/wpmr/feed-validator/app/feed"
	"github.com/wpmr/feed-validator/app/rules"
)

// Options are the per-request pipeline knobs. All limits are explicit;
// nothing inside the pipeline reads global state.
type Options struct {
	Sample     bool
	SampleSize int
}

// Transport is the fetch metadata recorded alongside a report.
type Transport struct {
	HTTPCode    int    `json:"http_code"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
}

// Report is the outcome of one validation run over raw feed bytes.
type Report struct {
	RuleVersion         string            `json:"rule_version"`
	ItemsScanned        int               `json:"items_scanned"`
	ItemsTotal          int               `json:"items_total"`
	Format              feed.Format       `json:"format"`
	Duplicates          []string          `json:"duplicates"`
	MissingIDCount      int               `json:"missing_id_count"`
	Feed                feed.Meta         `json:"feed"`
	Transport           Transport         `json:"transport"`
	Diagnostics         []feed.Diagnostic `json:"diagnostics"`
	Issues              []rules.Issue     `json:"issues"`
	Score               int               `json:"score"`
	Totals              rules.Totals      `json:"totals"`
	QualityScores       map[string]int    `json:"quality_scores"`
	PenaltiesByCategory map[string]int    `json:"penalties_by_category"`
}

type Summary struct {
	Score  int          `json:"score"`
	Totals rules.Totals `json:"totals"`
}

// PreviewOutcome diffs a hypothetical override set against the baseline.
type PreviewOutcome struct {
	RuleVersion string        `json:"rule_version"`
	Baseline    Summary       `json:"baseline"`
	Preview     Summary       `json:"preview"`
	Delta       Summary       `json:"delta"`
	Issues      []rules.Issue `json:"issues"`
}

// Run executes parse -> evaluate -> score over raw bytes. Transport
// diagnostics from the fetcher are folded into evaluation alongside the
// parser's structural diagnostics; the fetch metadata is carried through
// to the report untouched. Only an unreadable document fails; every
// other defect comes back as data.
func Run(raw []byte, transport Transport, transportDiags []feed.Diagnostic, opts Options, pack *rules.RulePack,
	overrides map[string]rules.Override, weightOverrides rules.WeightOverrides) (*Report, error) {

	parser := feed.NewParser()
	parsed, err := parser.Run(raw, opts.Sample, opts.SampleSize)
	if err != nil {
		return nil, err
	}

	diagnostics := make([]feed.Diagnostic, 0, len(transportDiags)+len(parsed.Diagnostics))
	diagnostics = append(diagnostics, transportDiags...)
	diagnostics = append(diagnostics, parsed.Diagnostics...)

	effective := rules.EffectiveRules(pack, overrides)
	weights := rules.EffectiveWeights(pack, weightOverrides)

	engine := rules.NewEngine()
	issues := engine.Run(parsed.Items, diagnostics, effective)
	scored := rules.Compute(issues, weights)

	return &Report{
		RuleVersion:         pack.ID,
		ItemsScanned:        parsed.ItemsScanned,
		ItemsTotal:          parsed.ItemsTotal,
		Format:              parsed.Format,
		Duplicates:          parsed.Duplicates,
		MissingIDCount:      parsed.MissingIDCount,
		Feed:                parsed.Meta,
		Transport:           transport,
		Diagnostics:         diagnostics,
		Issues:              issues,
		Score:               scored.Score,
		Totals:              scored.Totals,
		QualityScores:       rules.QualityScores(issues, parsed.Items),
		PenaltiesByCategory: scored.PenaltiesByCategory,
	}, nil
}

// Preview evaluates the same parsed input twice: once with the persisted
// overrides and once with the alternate set layered on top, and reports
// the score and totals delta.
func Preview(raw []byte, transportDiags []feed.Diagnostic, opts Options, pack *rules.RulePack,
	baseOverrides, altOverrides map[string]rules.Override, weightOverrides rules.WeightOverrides) (*PreviewOutcome, error) {

	parser := feed.NewParser()
	parsed, err := parser.Run(raw, opts.Sample, opts.SampleSize)
	if err != nil {
		return nil, err
	}

	diagnostics := make([]feed.Diagnostic, 0, len(transportDiags)+len(parsed.Diagnostics))
	diagnostics = append(diagnostics, transportDiags...)
	diagnostics = append(diagnostics, parsed.Diagnostics...)

	weights := rules.EffectiveWeights(pack, weightOverrides)
	engine := rules.NewEngine()

	baseEffective := rules.EffectiveRules(pack, baseOverrides)
	baseIssues := engine.Run(parsed.Items, diagnostics, baseEffective)
	baseScore := rules.Compute(baseIssues, weights)

	merged := maps.Clone(baseOverrides)
	if merged == nil {
		merged = map[string]rules.Override{}
	}
	for code, ov := range altOverrides {
		merged[code] = ov
	}

	prevEffective := rules.EffectiveRules(pack, merged)
	prevIssues := engine.Run(parsed.Items, diagnostics, prevEffective)
	prevScore := rules.Compute(prevIssues, weights)

	return &PreviewOutcome{
		RuleVersion: pack.ID,
		Baseline:    Summary{Score: baseScore.Score, Totals: baseScore.Totals},
		Preview:     Summary{Score: prevScore.Score, Totals: prevScore.Totals},
		Delta: Summary{
			Score: prevScore.Score - baseScore.Score,
			Totals: rules.Totals{
				Errors:   prevScore.Totals.Errors - baseScore.Totals.Errors,
				Warnings: prevScore.Totals.Warnings - baseScore.Totals.Warnings,
				Advice:   prevScore.Totals.Advice - baseScore.Totals.Advice,
			},
		},
		Issues: prevIssues,
	}, nil
}

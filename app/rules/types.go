package rules

import (
	"github.com/wpmr/feed-validator/app/feed"
)

// PackRule is one rule definition as shipped in a rule pack file.
type PackRule struct {
	Code            string        `yaml:"code" json:"code"`
	Category        string        `yaml:"category" json:"category"`
	DefaultSeverity feed.Severity `yaml:"default_severity" json:"default_severity"`
	Message         string        `yaml:"message" json:"message"`
	DocsURL         string        `yaml:"docs_url" json:"docs_url"`
	CanOverride     bool          `yaml:"can_override" json:"can_override"`
}

type Weights struct {
	Error          int `yaml:"error" json:"error"`
	Warning        int `yaml:"warning" json:"warning"`
	Advice         int `yaml:"advice" json:"advice"`
	CapPerCategory int `yaml:"cap_per_category" json:"cap_per_category"`
}

// RulePack is a versioned catalog of rule definitions with scoring weights.
type RulePack struct {
	ID      string     `yaml:"id" json:"id"`
	Weights Weights    `yaml:"weights" json:"weights"`
	Rules   []PackRule `yaml:"rules" json:"rules"`
}

// Override is a persisted user customization of a single rule. Nil fields
// mean "not overridden".
type Override struct {
	Severity       feed.Severity `json:"severity,omitempty"`
	Enabled        *bool         `json:"enabled,omitempty"`
	WeightOverride *int          `json:"weight_override,omitempty"`
}

// IsZero reports whether no override field is set.
func (o Override) IsZero() bool {
	return o.Severity == "" && o.Enabled == nil && o.WeightOverride == nil
}

// WeightOverrides overlays the pack's base weights field by field.
type WeightOverrides struct {
	Error          *int `json:"error,omitempty"`
	Warning        *int `json:"warning,omitempty"`
	Advice         *int `json:"advice,omitempty"`
	CapPerCategory *int `json:"cap_per_category,omitempty"`
}

// Count returns the number of overridden weight fields.
func (w WeightOverrides) Count() int {
	n := 0
	for _, p := range []*int{w.Error, w.Warning, w.Advice, w.CapPerCategory} {
		if p != nil {
			n++
		}
	}
	return n
}

const (
	SourceDefault  = "default"
	SourceOverride = "override"
)

// EffectiveRule is a pack rule after merging user overrides.
type EffectiveRule struct {
	Code            string        `json:"code"`
	Category        string        `json:"category"`
	DefaultSeverity feed.Severity `json:"default_severity"`
	Message         string        `json:"message"`
	DocsURL         string        `json:"docs_url"`
	CanOverride     bool          `json:"can_override"`
	Enabled         bool          `json:"enabled"`
	Severity        feed.Severity `json:"severity"`
	WeightOverride  int           `json:"weight_override,omitempty"`
	Source          string        `json:"source"`
}

// Issue is one reported validation finding. ItemID is empty for
// feed-global and transport findings.
type Issue struct {
	ItemID   string        `json:"item_id"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Category string        `json:"category"`
	Severity feed.Severity `json:"severity"`
	DocsURL  string        `json:"docs_url"`
	Weight   int           `json:"weight,omitempty"`
}

type Totals struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Advice   int `json:"advice"`
}

type ScoreResult struct {
	Score               int            `json:"score"`
	Totals              Totals         `json:"totals"`
	PenaltiesByCategory map[string]int `json:"penalties_by_category"`
}

package rules

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wpmr/feed-validator/app/feed"
)

//go:embed google-v2025-09.yml
var embeddedPacks embed.FS

// DefaultWeights is the hardcoded fallback used when a rule pack is missing
// or unreadable, so a corrupt pack degrades validation instead of blocking it.
func DefaultWeights() Weights {
	return Weights{Error: 7, Warning: 3, Advice: 1, CapPerCategory: 20}
}

func fallbackPack(version string) *RulePack {
	return &RulePack{ID: version, Weights: DefaultWeights(), Rules: []PackRule{}}
}

// PackLoader resolves rule packs from a directory of <version>.yml files,
// falling back to the packs embedded in the binary.
type PackLoader struct {
	rulesDir string
}

func NewPackLoader(rulesDir string) *PackLoader {
	return &PackLoader{rulesDir: rulesDir}
}

// Load never fails: a missing or corrupt pack yields the minimal fallback.
func (l *PackLoader) Load(version string) *RulePack {
	data, err := os.ReadFile(filepath.Join(l.rulesDir, version+".yml"))
	if err != nil {
		data, err = embeddedPacks.ReadFile(version + ".yml")
	}
	if err != nil {
		slog.Warn("Rule pack not found, using fallback", "version", version)
		return fallbackPack(version)
	}

	var pack RulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		slog.Warn("Rule pack unreadable, using fallback", "version", version, "error", err)
		return fallbackPack(version)
	}

	if pack.ID == "" {
		pack.ID = version
	}
	if pack.Weights == (Weights{}) {
		pack.Weights = DefaultWeights()
	}
	sanitizeRules(&pack)

	return &pack
}

// sanitizeRules drops rules without a code and repairs invalid severities,
// keeping the effective-rules table a closed, well-typed set.
func sanitizeRules(pack *RulePack) {
	cleaned := make([]PackRule, 0, len(pack.Rules))
	for _, r := range pack.Rules {
		if r.Code == "" {
			slog.Debug("Skipping pack rule without code", "pack", pack.ID)
			continue
		}
		if r.Category == "" {
			r.Category = "general"
		}
		if !r.DefaultSeverity.Valid() {
			r.DefaultSeverity = feed.SeverityWarning
		}
		cleaned = append(cleaned, r)
	}
	pack.Rules = cleaned
}

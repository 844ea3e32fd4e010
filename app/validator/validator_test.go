package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/wpmr/feed-validator/app/feed"
	"github.com/wpmr/feed-validator/app/rules"
)

var testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
<channel>
<title>Test Shop</title>
<link>https://shop.example</link>
<description>Products</description>
<item>
<g:id>SKU-1</g:id>
<g:title>Premium Organic Cotton T-Shirt, Navy Blue</g:title>
<g:description>` + descriptionText + `</g:description>
<g:link>https://shop.example/p/1</g:link>
<g:image_link>https://shop.example/img/1.jpg</g:image_link>
<g:availability>in_stock</g:availability>
<g:price>19.99 EUR</g:price>
<g:gtin>4006381333931</g:gtin>
<g:brand>ShirtCo</g:brand>
<g:mpn>SC-100</g:mpn>
<g:google_product_category>Apparel</g:google_product_category>
<g:product_type>Shirts</g:product_type>
</item>
<item>
<g:id>SKU-2</g:id>
<g:title>Short</g:title>
</item>
</channel>
</rss>`

var descriptionText = strings.Repeat("A soft and durable organic cotton shirt. ", 5)

func testPack() *rules.RulePack {
	return rules.NewPackLoader("").Load("google-v2025-09")
}

func TestRunEndToEnd(t *testing.T) {
	result, err := Run([]byte(testFeed), Transport{}, nil, Options{Sample: false},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RuleVersion != "google-v2025-09" {
		t.Errorf("RuleVersion = %q", result.RuleVersion)
	}
	if result.ItemsScanned != 2 {
		t.Errorf("ItemsScanned = %d, want 2", result.ItemsScanned)
	}
	if result.Format != feed.FormatRSS {
		t.Errorf("Format = %q", result.Format)
	}
	if result.Feed.Title != "Test Shop" {
		t.Errorf("Feed.Title = %q", result.Feed.Title)
	}

	// SKU-1 is clean, so every issue belongs to SKU-2.
	for _, issue := range result.Issues {
		if issue.ItemID == "SKU-1" {
			t.Errorf("clean item produced issue %s", issue.Code)
		}
	}
	if len(result.Issues) == 0 {
		t.Fatal("defective item should produce issues")
	}
	if result.Score >= 100 {
		t.Errorf("Score = %d, want below 100", result.Score)
	}
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("Score = %d out of range", result.Score)
	}
}

func TestRunCarriesTransportMetadata(t *testing.T) {
	transport := Transport{HTTPCode: 200, ContentType: "application/xml", Bytes: len(testFeed)}

	result, err := Run([]byte(testFeed), transport, nil, Options{Sample: false},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Transport != transport {
		t.Errorf("Transport = %+v, want %+v", result.Transport, transport)
	}
}

func TestRunQualityScores(t *testing.T) {
	result, err := Run([]byte(testFeed), Transport{}, nil, Options{Sample: false},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.QualityScores) != 2 {
		t.Fatalf("QualityScores has %d entries, want 2", len(result.QualityScores))
	}
	if score := result.QualityScores["SKU-1"]; score != 100 {
		t.Errorf("clean item score = %d, want 100", score)
	}
	if score := result.QualityScores["SKU-2"]; score >= 100 {
		t.Errorf("defective item score = %d, want below 100", score)
	}
}

func TestRunTransportDiagnosticsFoldedIn(t *testing.T) {
	diags := []feed.Diagnostic{
		{Severity: feed.SeverityWarning, Code: "bom_detected", Message: "BOM detected."},
	}

	result, err := Run([]byte(testFeed), Transport{}, diags, Options{Sample: false},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	found := false
	for _, issue := range result.Issues {
		if issue.Code == "bom_detected" && issue.ItemID == "" {
			found = true
		}
	}
	if !found {
		t.Error("transport diagnostic should appear as a feed-global issue")
	}
}

func TestRunMalformedDocumentFails(t *testing.T) {
	_, err := Run([]byte("not xml <<<"), Transport{}, nil, Options{}, testPack(), nil, rules.WeightOverrides{})
	if !errors.Is(err, feed.ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestRunOverridesChangeOutcome(t *testing.T) {
	baseline, err := Run([]byte(testFeed), Transport{}, nil, Options{Sample: false},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Disable every rule SKU-2 tripped; the score must recover to 100.
	disabled := false
	overrides := map[string]rules.Override{}
	for _, issue := range baseline.Issues {
		overrides[issue.Code] = rules.Override{Enabled: &disabled}
	}

	result, err := Run([]byte(testFeed), Transport{}, nil, Options{Sample: false},
		testPack(), overrides, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("all tripped rules disabled, still got %d issues", len(result.Issues))
	}
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100", result.Score)
	}
}

func TestRunSampling(t *testing.T) {
	result, err := Run([]byte(testFeed), Transport{}, nil, Options{Sample: true, SampleSize: 1},
		testPack(), nil, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ItemsScanned != 1 {
		t.Errorf("ItemsScanned = %d, want 1", result.ItemsScanned)
	}
	for _, issue := range result.Issues {
		if issue.ItemID == "SKU-2" {
			t.Error("sampled-out item must not appear in issues")
		}
	}
}

func TestPreviewDelta(t *testing.T) {
	disabled := false
	alt := map[string]rules.Override{
		"title_too_short":         {Enabled: &disabled},
		"missing_description":     {Enabled: &disabled},
		"missing_link":            {Enabled: &disabled},
		"missing_image_link":      {Enabled: &disabled},
		"invalid_availability":    {Enabled: &disabled},
		"invalid_price":           {Enabled: &disabled},
		"identifiers_all_missing": {Enabled: &disabled},
		"missing_google_category": {Enabled: &disabled},
		"missing_product_type":    {Enabled: &disabled},
	}

	outcome, err := Preview([]byte(testFeed), nil, Options{Sample: false},
		testPack(), nil, alt, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	if outcome.Preview.Score <= outcome.Baseline.Score {
		t.Errorf("disabling rules should raise the score: baseline %d, preview %d",
			outcome.Baseline.Score, outcome.Preview.Score)
	}
	if outcome.Delta.Score != outcome.Preview.Score-outcome.Baseline.Score {
		t.Errorf("Delta.Score = %d, want preview-baseline", outcome.Delta.Score)
	}
	if outcome.Delta.Totals.Warnings != outcome.Preview.Totals.Warnings-outcome.Baseline.Totals.Warnings {
		t.Error("Delta totals should be preview minus baseline")
	}
}

func TestPreviewAltLayersOverBaseline(t *testing.T) {
	// Baseline disables a rule; the alt set does not mention it, so the
	// preview keeps it disabled.
	disabled := false
	base := map[string]rules.Override{
		"title_too_short": {Enabled: &disabled},
	}
	alt := map[string]rules.Override{
		"missing_description": {Enabled: &disabled},
	}

	outcome, err := Preview([]byte(testFeed), nil, Options{Sample: false},
		testPack(), base, alt, rules.WeightOverrides{})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	for _, issue := range outcome.Issues {
		if issue.Code == "title_too_short" {
			t.Error("baseline override should persist into the preview")
		}
		if issue.Code == "missing_description" {
			t.Error("alt override should apply in the preview")
		}
	}
}

package rules

import (
	"testing"

	"github.com/wpmr/feed-validator/app/feed"
)

func testWeights() Weights {
	return Weights{Error: 7, Warning: 3, Advice: 1, CapPerCategory: 20}
}

func TestComputeNoIssues(t *testing.T) {
	result := Compute(nil, testWeights())
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100", result.Score)
	}
	if result.Totals != (Totals{}) {
		t.Errorf("Totals = %+v, want zero", result.Totals)
	}
}

func TestComputeSeverityWeights(t *testing.T) {
	issues := []Issue{
		{Code: "a", Category: "price", Severity: feed.SeverityError},
		{Code: "b", Category: "text", Severity: feed.SeverityWarning},
		{Code: "c", Category: "category", Severity: feed.SeverityAdvice},
	}

	result := Compute(issues, testWeights())

	if result.Score != 100-7-3-1 {
		t.Errorf("Score = %d, want 89", result.Score)
	}
	if result.Totals.Errors != 1 || result.Totals.Warnings != 1 || result.Totals.Advice != 1 {
		t.Errorf("Totals = %+v", result.Totals)
	}
	if result.PenaltiesByCategory["price"] != 7 {
		t.Errorf("price penalty = %d, want 7", result.PenaltiesByCategory["price"])
	}
}

func TestComputeCategoryCap(t *testing.T) {
	issues := make([]Issue, 10)
	for i := range issues {
		issues[i] = Issue{Code: "x", Category: "price", Severity: feed.SeverityError}
	}

	result := Compute(issues, testWeights())

	if result.PenaltiesByCategory["price"] != 20 {
		t.Errorf("price penalty = %d, want capped at 20", result.PenaltiesByCategory["price"])
	}
	if result.Score != 80 {
		t.Errorf("Score = %d, want 80", result.Score)
	}
	// Totals are never capped.
	if result.Totals.Errors != 10 {
		t.Errorf("Totals.Errors = %d, want 10", result.Totals.Errors)
	}
}

func TestComputeScoreFloor(t *testing.T) {
	var issues []Issue
	for _, cat := range []string{"a", "b", "c", "d", "e", "f"} {
		for i := 0; i < 5; i++ {
			issues = append(issues, Issue{Code: "x", Category: cat, Severity: feed.SeverityError})
		}
	}

	result := Compute(issues, testWeights())
	if result.Score != 0 {
		t.Errorf("Score = %d, want floored at 0", result.Score)
	}
}

func TestComputePerIssueWeight(t *testing.T) {
	issues := []Issue{
		{Code: "a", Category: "text", Severity: feed.SeverityWarning, Weight: 5},
	}

	result := Compute(issues, testWeights())
	if result.Score != 95 {
		t.Errorf("Score = %d, want 95 (issue weight wins over severity weight)", result.Score)
	}
}

func TestComputeZeroWeightCountsTowardTotals(t *testing.T) {
	weights := Weights{Error: 7, Warning: 0, Advice: 1, CapPerCategory: 20}
	issues := []Issue{
		{Code: "a", Category: "text", Severity: feed.SeverityWarning},
	}

	result := Compute(issues, weights)
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100 (zero weight, no penalty)", result.Score)
	}
	if result.Totals.Warnings != 1 {
		t.Error("zero-weight issue still counts toward totals")
	}
}

func TestComputeUnknownSeverityCountsAsAdvice(t *testing.T) {
	issues := []Issue{
		{Code: "a", Category: "text", Severity: "bogus"},
	}

	result := Compute(issues, testWeights())
	if result.Totals.Advice != 1 {
		t.Errorf("unknown severity should fall into advice, got %+v", result.Totals)
	}
}

func TestComputeEmptyCategoryFallsBackToGeneral(t *testing.T) {
	issues := []Issue{
		{Code: "a", Severity: feed.SeverityWarning},
	}

	result := Compute(issues, testWeights())
	if result.PenaltiesByCategory["general"] != 3 {
		t.Errorf("penalties = %+v, want general:3", result.PenaltiesByCategory)
	}
}

func TestQualityScoresPerItem(t *testing.T) {
	items := []feed.ProductRecord{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	issues := []Issue{
		{ItemID: "B", Code: "missing_title", Severity: feed.SeverityError},
		{ItemID: "B", Code: "title_too_short", Severity: feed.SeverityWarning},
		{ItemID: "C", Code: "missing_product_type", Severity: feed.SeverityAdvice},
	}

	scores := QualityScores(issues, items)

	if len(scores) != 3 {
		t.Fatalf("got %d entries, want 3", len(scores))
	}
	if scores["A"] != 100 {
		t.Errorf("A = %d, want 100", scores["A"])
	}
	if scores["B"] != 100-10-5 {
		t.Errorf("B = %d, want 85", scores["B"])
	}
	if scores["C"] != 100-2 {
		t.Errorf("C = %d, want 98", scores["C"])
	}
}

func TestQualityScoresFloorAtZero(t *testing.T) {
	items := []feed.ProductRecord{{ID: "A"}}
	var issues []Issue
	for i := 0; i < 11; i++ {
		issues = append(issues, Issue{ItemID: "A", Severity: feed.SeverityError})
	}

	scores := QualityScores(issues, items)
	if scores["A"] != 0 {
		t.Errorf("A = %d, want 0", scores["A"])
	}
}

func TestQualityScoresMissingIDPlaceholder(t *testing.T) {
	items := []feed.ProductRecord{{ID: ""}}
	issues := []Issue{
		{ItemID: "(missing:#1)", Code: "missing_id", Severity: feed.SeverityError},
	}

	scores := QualityScores(issues, items)
	if scores["(missing:#1)"] != 90 {
		t.Errorf("placeholder = %d, want 90", scores["(missing:#1)"])
	}
}

func TestQualityScoresIgnoreFeedGlobalIssues(t *testing.T) {
	items := []feed.ProductRecord{{ID: "A"}}
	issues := []Issue{
		{ItemID: "", Code: "bom_detected", Severity: feed.SeverityWarning},
		{ItemID: "ghost", Code: "missing_title", Severity: feed.SeverityError},
	}

	scores := QualityScores(issues, items)
	if scores["A"] != 100 {
		t.Errorf("A = %d, want 100", scores["A"])
	}
	if _, ok := scores[""]; ok {
		t.Error("feed-global findings should not key a score entry")
	}
}

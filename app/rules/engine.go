package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wpmr/feed-validator/app/feed"
)

var (
	priceRe       = regexp.MustCompile(`^\s*\d+(?:[.,]\d{2})?\s+[A-Z]{3}\s*$`)
	priceNumberRe = regexp.MustCompile(`(\d+[.,]?\d*)\s+[A-Z]{3}`)
	gtinRe        = regexp.MustCompile(`^\d{8,14}$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	underscoresRe = regexp.MustCompile(`_+`)
)

var availabilitySynonyms = map[string]string{
	"instock":      "in_stock",
	"available":    "in_stock",
	"on_stock":     "in_stock",
	"outofstock":   "out_of_stock",
	"oos":          "out_of_stock",
	"sold_out":     "out_of_stock",
	"soldout":      "out_of_stock",
	"pre_order":    "preorder",
	"back_order":   "backorder",
	"on_backorder": "backorder",
}

var validAvailability = map[string]bool{
	"in_stock":     true,
	"out_of_stock": true,
	"preorder":     true,
	"backorder":    true,
}

var adultTerms = []string{"adult", "xxx", "lingerie", "sex", "porn", "bdsm"}

// Engine evaluates product records and transport diagnostics against an
// effective rules table. It holds no state; construct one per request.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Run produces the ordered issue list: transport diagnostics first, then
// per-item checks in parse order, then the duplicate-id pass. The order is
// deterministic so repeated evaluations of the same input are identical.
// itemKey identifies an item in issues and per-item scores. Items
// without an id get a positional placeholder so their findings stay
// addressable.
func itemKey(it feed.ProductRecord, idx int) string {
	if it.ID == "" {
		return fmt.Sprintf("(missing:#%d)", idx+1)
	}
	return it.ID
}

func (e *Engine) Run(items []feed.ProductRecord, transportDiags []feed.Diagnostic, effective map[string]EffectiveRule) []Issue {
	issues := []Issue{}

	// 1) Transport and structural diagnostics map 1:1 to feed-global issues.
	for _, diag := range transportDiags {
		code := diag.Code
		if code == "" {
			code = "transport"
		}
		rule, hasRule := effective[code]
		if hasRule && !rule.Enabled {
			continue
		}

		issue := Issue{
			ItemID:   "",
			Code:     code,
			Message:  diag.Message,
			Category: "transport",
			Severity: diag.Severity,
		}
		if issue.Severity == "" {
			issue.Severity = feed.SeverityWarning
		}
		if issue.Message == "" {
			issue.Message = code
		}
		if hasRule {
			issue.Severity = rule.Severity
			issue.Category = rule.Category
			issue.DocsURL = rule.DocsURL
			if rule.Message != "" {
				issue.Message = rule.Message
			}
			if rule.WeightOverride > 0 {
				issue.Weight = rule.WeightOverride
			}
		}
		issues = append(issues, issue)
	}

	// 2) Per-item checks.
	for idx, it := range items {
		itemID := itemKey(it, idx)

		// Required attributes
		e.requireField(&issues, effective, itemID, "missing_id", it.ID == "", "required_attributes", "Missing g:id")
		e.requireField(&issues, effective, itemID, "missing_title", isBlank(it.Title), "required_attributes", "Missing g:title")
		e.requireField(&issues, effective, itemID, "missing_description", isBlank(it.Description), "required_attributes", "Missing g:description")
		e.requireField(&issues, effective, itemID, "missing_link", isBlank(it.Link), "required_attributes", "Missing g:link")
		e.requireField(&issues, effective, itemID, "missing_image_link", isBlank(it.ImageLink), "required_attributes", "Missing g:image_link")

		// Availability
		availability := NormalizeAvailability(it.Availability)
		if !validAvailability[availability] {
			e.addIssue(&issues, effective, itemID, "invalid_availability", "required_attributes", "Missing or invalid g:availability", feed.SeverityWarning)
		}

		// Price format
		if it.Price == "" || !LooksLikePrice(it.Price) {
			e.addIssue(&issues, effective, itemID, "invalid_price", "required_attributes", "Missing or invalid g:price", feed.SeverityWarning)
		}

		// Sale price must undercut price
		if it.SalePrice != "" && LooksLikePrice(it.SalePrice) && LooksLikePrice(it.Price) {
			p, pok := PriceToNumber(it.Price)
			sp, spok := PriceToNumber(it.SalePrice)
			if pok && spok && sp.GreaterThanOrEqual(p) {
				e.addIssue(&issues, effective, itemID, "sale_price_gte_price", "price", "g:sale_price must be less than g:price", feed.SeverityWarning)
			}
		}

		// Shipping nodes
		for _, sh := range it.Shipping {
			if sh.Price == "" {
				e.addIssue(&issues, effective, itemID, "shipping_missing_price", "shipping", "Shipping node missing price.", feed.SeverityWarning)
			} else if !LooksLikePrice(sh.Price) {
				e.addIssue(&issues, effective, itemID, "shipping_price_invalid", "shipping", `Shipping price must be like "9.99 USD".`, feed.SeverityWarning)
			}
			if sh.Country == "" && sh.Region != "" {
				e.addIssue(&issues, effective, itemID, "shipping_country_missing", "shipping", "Shipping region provided without country.", feed.SeverityWarning)
			}
		}

		// Tax nodes
		for _, tx := range it.Tax {
			rate := strings.TrimSpace(tx.Rate)
			if rate == "" {
				e.addIssue(&issues, effective, itemID, "tax_missing_rate", "tax", "Tax node missing rate.", feed.SeverityWarning)
			} else {
				num, ok := PercentToNumber(rate)
				if !ok || num < 0 || num > 100 {
					e.addIssue(&issues, effective, itemID, "tax_rate_invalid", "tax", "Tax rate must be 0..100 (percentage).", feed.SeverityWarning)
				}
			}
			if strings.TrimSpace(tx.Country) == "" {
				e.addIssue(&issues, effective, itemID, "tax_country_missing", "tax", "Tax node missing country.", feed.SeverityWarning)
			}
		}

		// URLs
		if it.Link != "" && !isAbsoluteHTTP(it.Link) {
			e.addIssue(&issues, effective, itemID, "link_not_absolute", "urls", "g:link must be absolute http(s)", feed.SeverityWarning)
		}
		if it.ImageLink != "" && !strings.HasPrefix(strings.ToLower(it.ImageLink), "https://") {
			e.addIssue(&issues, effective, itemID, "image_link_not_https", "urls", "g:image_link should be https", feed.SeverityWarning)
		}

		// Text quality
		if len(it.Title) < 30 {
			e.addIssue(&issues, effective, itemID, "title_too_short", "text", "Title too short (< 30 chars). Recommend 30-150 chars for better performance.", feed.SeverityWarning)
		}
		if len(it.Title) > 150 {
			e.addIssue(&issues, effective, itemID, "title_too_long", "text", "Title length > 150 chars", feed.SeverityWarning)
		}
		if it.Description != "" && len(it.Description) < 100 {
			e.addIssue(&issues, effective, itemID, "description_too_short", "text", "Description too short (< 100 chars)", feed.SeverityWarning)
		} else if it.Description != "" && len(it.Description) < 160 {
			e.addIssue(&issues, effective, itemID, "description_suboptimal", "text", "Description could be longer (100-159 chars). Recommend 160-500 chars for better performance.", feed.SeverityAdvice)
		}

		// Identifiers
		gtin := strings.TrimSpace(it.GTIN)
		brand := strings.TrimSpace(it.Brand)
		mpn := strings.TrimSpace(it.MPN)
		identifierExists := strings.ToLower(strings.TrimSpace(it.IdentifierExists))
		declaresNoIdentifiers := identifierExists == "no" || identifierExists == "false"

		if gtin == "" && brand == "" && mpn == "" && !declaresNoIdentifiers {
			e.addIssue(&issues, effective, itemID, "identifiers_all_missing", "identifiers", "Missing all of: g:gtin, g:brand, g:mpn. Set g:identifier_exists=no if product has no identifiers.", feed.SeverityWarning)
		}
		if declaresNoIdentifiers {
			e.addIssue(&issues, effective, itemID, "identifier_exists_no", "identifiers", "Using g:identifier_exists=no. This is legal but not recommended. Only use for custom/handmade products without standard identifiers.", feed.SeverityAdvice)
		}
		if gtin != "" && !gtinRe.MatchString(gtin) {
			e.addIssue(&issues, effective, itemID, "gtin_invalid", "identifiers", "GTIN present but fails length/numeric check.", feed.SeverityWarning)
		}

		// Category and product type
		googleCat := strings.TrimSpace(it.GoogleProductCategory)
		if googleCat == "" {
			e.addIssue(&issues, effective, itemID, "missing_google_category", "category", "Missing g:google_product_category", feed.SeverityWarning)
		}
		productType := strings.TrimSpace(it.ProductType)
		if productType == "" {
			e.addIssue(&issues, effective, itemID, "missing_product_type", "category", "Missing g:product_type", feed.SeverityWarning)
		}

		// Variants: size or color without a group identifier
		hasVariantAttr := strings.TrimSpace(it.Size) != "" || strings.TrimSpace(it.Color) != ""
		if hasVariantAttr && strings.TrimSpace(it.ItemGroupID) == "" {
			e.addIssue(&issues, effective, itemID, "variants_missing_group", "variants", "Variants detected without g:item_group_id", feed.SeverityWarning)
		}

		// Policy heuristic: adult terms without the adult flag. False
		// positives are expected and acceptable.
		adultFlag := strings.ToLower(strings.TrimSpace(it.Adult))
		haystack := strings.ToLower(it.Title + " " + it.Description + " " + productType + " " + googleCat)
		possiblyAdult := false
		for _, term := range adultTerms {
			if strings.Contains(haystack, term) {
				possiblyAdult = true
				break
			}
		}
		if possiblyAdult && adultFlag != "yes" {
			e.addIssue(&issues, effective, itemID, "adult_without_flag", "policy", "Possible adult content without g:adult flag", feed.SeverityWarning)
		}
	}

	// 3) Duplicate ids. The first occurrence is never flagged.
	for _, it := range items {
		if it.IsDuplicateID && it.ID != "" {
			e.addIssue(&issues, effective, it.ID, "duplicate_id", "structure", "Duplicate g:id value.", feed.SeverityWarning)
		}
	}

	return issues
}

// addIssue appends one issue for the given code unless its rule is disabled.
// Rule metadata wins over the fallbacks; a positive weight override is
// carried on the issue for the scorer.
func (e *Engine) addIssue(issues *[]Issue, effective map[string]EffectiveRule, itemID, code, fallbackCategory, fallbackMessage string, fallbackSeverity feed.Severity) {
	rule, hasRule := effective[code]
	if hasRule && !rule.Enabled {
		return
	}

	issue := Issue{
		ItemID:   itemID,
		Code:     code,
		Message:  fallbackMessage,
		Category: fallbackCategory,
		Severity: fallbackSeverity,
	}
	if hasRule {
		issue.Severity = rule.Severity
		issue.Category = rule.Category
		issue.DocsURL = rule.DocsURL
		if rule.Message != "" {
			issue.Message = rule.Message
		}
		if rule.WeightOverride > 0 {
			issue.Weight = rule.WeightOverride
		}
	}
	*issues = append(*issues, issue)
}

func (e *Engine) requireField(issues *[]Issue, effective map[string]EffectiveRule, itemID, code string, condition bool, fallbackCategory, fallbackMessage string) {
	if condition {
		e.addIssue(issues, effective, itemID, code, fallbackCategory, fallbackMessage, feed.SeverityWarning)
	}
}

// NormalizeAvailability lower-cases the raw value, folds hyphen and
// whitespace runs to single underscores, trims edge underscores and maps
// known synonyms to the canonical Merchant values.
func NormalizeAvailability(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "-", "_")
	v = whitespaceRe.ReplaceAllString(v, "_")
	v = underscoresRe.ReplaceAllString(v, "_")
	v = strings.Trim(v, "_")

	if canonical, ok := availabilitySynonyms[v]; ok {
		return canonical
	}
	return v
}

// LooksLikePrice reports whether v matches "<digits>[.,<2 digits>] CUR",
// e.g. "19.99 EUR".
func LooksLikePrice(v string) bool {
	return priceRe.MatchString(v)
}

// PriceToNumber extracts the numeric part of a price string.
func PriceToNumber(v string) (decimal.Decimal, bool) {
	m := priceNumberRe.FindStringSubmatch(v)
	if m == nil {
		return decimal.Decimal{}, false
	}
	num, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return num, true
}

// PercentToNumber parses a percentage, tolerating a trailing "%" and a
// comma decimal separator.
func PercentToNumber(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	v = strings.TrimRight(v, "% \t\n\r")
	v = strings.ReplaceAll(v, ",", ".")
	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}

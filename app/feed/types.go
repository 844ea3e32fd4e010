package feed

import "errors"

// Parse failure taxonomy. Anything softer than these is reported as a
// Diagnostic and the scan continues.
var (
	ErrNoXMLSupport      = errors.New("streaming XML support is not available")
	ErrMalformedDocument = errors.New("XML is not well-formed or could not be read")
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityAdvice  Severity = "advice"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityAdvice:
		return true
	}
	return false
}

// Diagnostic is a structural or transport-level finding produced before
// rule evaluation runs.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
)

type Shipping struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	Service string `json:"service"`
	Price   string `json:"price"`
}

type Tax struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	Rate    string `json:"rate"`
}

// ProductRecord is one parsed feed item. Field values are raw strings as
// they appeared in the feed; normalization and format validation happen in
// the rules engine.
type ProductRecord struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Link                  string     `json:"link"`
	ImageLink             string     `json:"image_link"`
	Availability          string     `json:"availability"`
	Price                 string     `json:"price"`
	SalePrice             string     `json:"sale_price"`
	GTIN                  string     `json:"gtin"`
	Brand                 string     `json:"brand"`
	MPN                   string     `json:"mpn"`
	IdentifierExists      string     `json:"identifier_exists"`
	GoogleProductCategory string     `json:"google_product_category"`
	ProductType           string     `json:"product_type"`
	ItemGroupID           string     `json:"item_group_id"`
	Color                 string     `json:"color"`
	Size                  string     `json:"size"`
	Adult                 string     `json:"adult"`
	Shipping              []Shipping `json:"shipping"`
	Tax                   []Tax      `json:"tax"`

	// Set when this record's id collides with an earlier record in the
	// same document. The first occurrence is never flagged.
	IsDuplicateID bool `json:"is_duplicate_id"`
}

// Meta carries feed-level (channel) metadata for display in reports.
type Meta struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Language    string `json:"language"`
}

// ParseResult is the outcome of a streaming scan over one document.
type ParseResult struct {
	Format         Format
	Items          []ProductRecord
	ItemsScanned   int
	ItemsTotal     int
	MissingIDCount int
	Duplicates     []string
	Diagnostics    []Diagnostic
	Meta           Meta
}

// OK reports whether the scan produced no error-severity diagnostics.
func (r *ParseResult) OK() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return false
		}
	}
	return true
}

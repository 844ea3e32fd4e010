package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const googleNS = "http://base.google.com/ns/1.0"

// itemXML mirrors one RSS <item> / Atom <entry> subtree. Namespaced fields
// are listed before their plain fallbacks so g: elements bind to them first.
type itemXML struct {
	GID           string        `xml:"http://base.google.com/ns/1.0 id"`
	GTitle        string        `xml:"http://base.google.com/ns/1.0 title"`
	GDescription  string        `xml:"http://base.google.com/ns/1.0 description"`
	GLink         string        `xml:"http://base.google.com/ns/1.0 link"`
	ImageLink     string        `xml:"http://base.google.com/ns/1.0 image_link"`
	Availability  string        `xml:"http://base.google.com/ns/1.0 availability"`
	Price         string        `xml:"http://base.google.com/ns/1.0 price"`
	SalePrice     string        `xml:"http://base.google.com/ns/1.0 sale_price"`
	GTIN          string        `xml:"http://base.google.com/ns/1.0 gtin"`
	Brand         string        `xml:"http://base.google.com/ns/1.0 brand"`
	MPN           string        `xml:"http://base.google.com/ns/1.0 mpn"`
	IdentExists   string        `xml:"http://base.google.com/ns/1.0 identifier_exists"`
	GoogleCat     string        `xml:"http://base.google.com/ns/1.0 google_product_category"`
	ProductType   string        `xml:"http://base.google.com/ns/1.0 product_type"`
	ItemGroupID   string        `xml:"http://base.google.com/ns/1.0 item_group_id"`
	Color         string        `xml:"http://base.google.com/ns/1.0 color"`
	Size          string        `xml:"http://base.google.com/ns/1.0 size"`
	Adult         string        `xml:"http://base.google.com/ns/1.0 adult"`
	Shipping      []shippingXML `xml:"http://base.google.com/ns/1.0 shipping"`
	Tax           []taxXML      `xml:"http://base.google.com/ns/1.0 tax"`
	PlainTitle    string        `xml:"title"`
	PlainDesc     string        `xml:"description"`
	PlainLink     string        `xml:"link"`
	PlainImageURL string        `xml:"image_url"`
}

type shippingXML struct {
	Country string `xml:"country"`
	Region  string `xml:"region"`
	Service string `xml:"service"`
	Price   string `xml:"price"`
}

type taxXML struct {
	Country string `xml:"country"`
	Region  string `xml:"region"`
	Rate    string `xml:"rate"`
}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run scans the document as a token stream without building a full tree.
// Items are extracted in document order; when sample is true the scan stops
// after sampleSize items and the remainder of the document is never read.
func (p *Parser) Run(data []byte, sample bool, sampleSize int) (*ParseResult, error) {
	if sampleSize < 1 {
		sampleSize = 1
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	result := &ParseResult{
		Items:       []ProductRecord{},
		Duplicates:  []string{},
		Diagnostics: []Diagnostic{},
	}

	seenIDs := make(map[string]bool)
	inDuplicates := make(map[string]bool)
	foundItemNodes := false

scan:
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !foundItemNodes {
				return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
			}
			// The stream died after items were already extracted; keep the
			// partial result, matching the non-fatal taxonomy.
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		local := start.Name.Local
		if local != "item" && local != "entry" {
			continue
		}

		foundItemNodes = true
		if result.Format == "" {
			if local == "item" {
				result.Format = FormatRSS
			} else {
				result.Format = FormatAtom
			}
		}

		var ix itemXML
		if err := dec.DecodeElement(&ix, &start); err != nil {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Severity: SeverityError,
				Code:     "item_xml_invalid",
				Message:  "Item XML not well-formed.",
			})
			// A decode failure leaves the token stream unusable; the item
			// still counts toward scan progress.
			result.ItemsScanned++
			result.ItemsTotal++
			break scan
		}

		record := p.normalizeItem(&ix)

		if record.ID == "" {
			result.MissingIDCount++
		} else {
			if seenIDs[record.ID] {
				record.IsDuplicateID = true
				if !inDuplicates[record.ID] {
					inDuplicates[record.ID] = true
					result.Duplicates = append(result.Duplicates, record.ID)
				}
			}
			seenIDs[record.ID] = true
		}
		result.Items = append(result.Items, record)

		result.ItemsScanned++
		result.ItemsTotal++
		if sample && result.ItemsScanned >= sampleSize {
			break scan
		}
	}

	if !foundItemNodes {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Code:     "no_items",
			Message:  "Neither RSS <item> nor Atom <entry> elements were found.",
		})
	}

	result.Meta = p.extractMeta(data)

	return result, nil
}

// normalizeItem maps an extracted subtree to a ProductRecord, preferring
// g: namespaced fields and falling back to the plain RSS/Atom elements.
func (p *Parser) normalizeItem(ix *itemXML) ProductRecord {
	record := ProductRecord{
		ID:                    strings.TrimSpace(ix.GID),
		Title:                 coalesce(ix.GTitle, ix.PlainTitle),
		Description:           coalesce(ix.GDescription, ix.PlainDesc),
		Link:                  coalesce(ix.GLink, ix.PlainLink),
		ImageLink:             coalesce(ix.ImageLink, ix.PlainImageURL),
		Availability:          ix.Availability,
		Price:                 ix.Price,
		SalePrice:             ix.SalePrice,
		GTIN:                  ix.GTIN,
		Brand:                 ix.Brand,
		MPN:                   ix.MPN,
		IdentifierExists:      ix.IdentExists,
		GoogleProductCategory: ix.GoogleCat,
		ProductType:           ix.ProductType,
		ItemGroupID:           ix.ItemGroupID,
		Color:                 ix.Color,
		Size:                  ix.Size,
		Adult:                 ix.Adult,
		Shipping:              []Shipping{},
		Tax:                   []Tax{},
	}

	for _, sh := range ix.Shipping {
		record.Shipping = append(record.Shipping, Shipping{
			Country: sh.Country,
			Region:  sh.Region,
			Service: sh.Service,
			Price:   sh.Price,
		})
	}
	for _, tx := range ix.Tax {
		record.Tax = append(record.Tax, Tax{
			Country: tx.Country,
			Region:  tx.Region,
			Rate:    tx.Rate,
		})
	}

	return record
}

// extractMeta pulls channel-level metadata for report display. Failures are
// ignored: metadata is cosmetic and must not affect validation.
func (p *Parser) extractMeta(data []byte) Meta {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil || parsed == nil {
		return Meta{}
	}
	return Meta{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
	}
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

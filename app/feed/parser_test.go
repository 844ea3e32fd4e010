package feed

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
<channel>
<title>Test Shop</title>
<link>https://shop.example</link>
<description>Product feed</description>
`

const feedFooter = `</channel>
</rss>`

func rssFeed(items ...string) []byte {
	return []byte(feedHeader + strings.Join(items, "\n") + feedFooter)
}

func productItem(id string) string {
	return fmt.Sprintf(`<item>
<g:id>%s</g:id>
<g:title>Blue Cotton T-Shirt</g:title>
<g:description>A soft blue cotton t-shirt in all sizes.</g:description>
<g:link>https://shop.example/products/%s</g:link>
<g:image_link>https://shop.example/img/%s.jpg</g:image_link>
<g:availability>in_stock</g:availability>
<g:price>19.99 EUR</g:price>
</item>`, id, id, id)
}

func TestRunExtractsNamespacedFields(t *testing.T) {
	data := rssFeed(`<item>
<title>Plain Title</title>
<g:id> SKU-1 </g:id>
<g:title>Blue Cotton T-Shirt</g:title>
<g:description>A soft shirt.</g:description>
<g:link>https://shop.example/p/1</g:link>
<g:image_link>https://shop.example/img/1.jpg</g:image_link>
<g:availability>in stock</g:availability>
<g:price>19.99 EUR</g:price>
<g:sale_price>14.99 EUR</g:sale_price>
<g:gtin>4006381333931</g:gtin>
<g:brand>ShirtCo</g:brand>
<g:mpn>SC-100</g:mpn>
<g:google_product_category>Apparel &amp; Accessories</g:google_product_category>
<g:item_group_id>SHIRTS</g:item_group_id>
<g:color>blue</g:color>
<g:size>M</g:size>
<g:shipping>
<g:country>DE</g:country>
<g:service>Standard</g:service>
<g:price>4.95 EUR</g:price>
</g:shipping>
<g:tax>
<g:country>US</g:country>
<g:rate>8.25</g:rate>
</g:tax>
</item>`)

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Format != FormatRSS {
		t.Errorf("Format = %q, want rss", result.Format)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}

	item := result.Items[0]
	if item.ID != "SKU-1" {
		t.Errorf("ID = %q, want trimmed SKU-1", item.ID)
	}
	if item.Title != "Blue Cotton T-Shirt" {
		t.Errorf("g:title should win over plain title, got %q", item.Title)
	}
	if item.Price != "19.99 EUR" || item.SalePrice != "14.99 EUR" {
		t.Errorf("unexpected prices: %q / %q", item.Price, item.SalePrice)
	}
	if item.GTIN != "4006381333931" || item.Brand != "ShirtCo" || item.MPN != "SC-100" {
		t.Errorf("identifier fields wrong: %q %q %q", item.GTIN, item.Brand, item.MPN)
	}
	if len(item.Shipping) != 1 || item.Shipping[0].Country != "DE" || item.Shipping[0].Price != "4.95 EUR" {
		t.Errorf("shipping not extracted: %+v", item.Shipping)
	}
	if len(item.Tax) != 1 || item.Tax[0].Rate != "8.25" {
		t.Errorf("tax not extracted: %+v", item.Tax)
	}
}

func TestRunPlainFieldFallbacks(t *testing.T) {
	data := rssFeed(`<item>
<g:id>SKU-2</g:id>
<title>Fallback Title</title>
<description>Fallback description.</description>
<link>https://shop.example/p/2</link>
</item>`)

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := result.Items[0]
	if item.Title != "Fallback Title" {
		t.Errorf("Title = %q, want plain fallback", item.Title)
	}
	if item.Description != "Fallback description." {
		t.Errorf("Description = %q, want plain fallback", item.Description)
	}
	if item.Link != "https://shop.example/p/2" {
		t.Errorf("Link = %q, want plain fallback", item.Link)
	}
}

func TestRunDuplicateIDs(t *testing.T) {
	data := rssFeed(productItem("A"), productItem("A"), productItem("B"))

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 1 || result.Duplicates[0] != "A" {
		t.Errorf("Duplicates = %v, want [A]", result.Duplicates)
	}
	if result.Items[0].IsDuplicateID {
		t.Error("first occurrence must not be flagged")
	}
	if !result.Items[1].IsDuplicateID {
		t.Error("second occurrence must be flagged")
	}
	if result.Items[2].IsDuplicateID {
		t.Error("distinct id must not be flagged")
	}
}

func TestRunMissingIDs(t *testing.T) {
	data := rssFeed(
		`<item><g:title>No id here</g:title></item>`,
		`<item><g:id></g:id><g:title>Empty id</g:title></item>`,
		productItem("C"),
	)

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.MissingIDCount != 2 {
		t.Errorf("MissingIDCount = %d, want 2", result.MissingIDCount)
	}
	if len(result.Items) != 3 {
		t.Errorf("items without ids are still records, got %d", len(result.Items))
	}
}

func TestRunSamplingTruncation(t *testing.T) {
	items := make([]string, 20)
	for i := range items {
		items[i] = productItem(fmt.Sprintf("SKU-%d", i))
	}
	data := rssFeed(items...)

	parser := NewParser()
	result, err := parser.Run(data, true, 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ItemsScanned != 5 {
		t.Errorf("ItemsScanned = %d, want 5", result.ItemsScanned)
	}
	if len(result.Items) != 5 {
		t.Errorf("len(Items) = %d, want 5", len(result.Items))
	}
	if result.Items[4].ID != "SKU-4" {
		t.Errorf("sampling should keep document order, last id = %s", result.Items[4].ID)
	}

	// Unsampled run sees everything.
	result, err = parser.Run(data, false, 5)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ItemsScanned != 20 {
		t.Errorf("unsampled ItemsScanned = %d, want 20", result.ItemsScanned)
	}
}

func TestRunSampleSizeClamp(t *testing.T) {
	data := rssFeed(productItem("A"), productItem("B"))

	parser := NewParser()
	result, err := parser.Run(data, true, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ItemsScanned != 1 {
		t.Errorf("sampleSize 0 should clamp to 1, scanned %d", result.ItemsScanned)
	}
}

func TestRunAtomEntries(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:g="http://base.google.com/ns/1.0">
<title>Atom Shop</title>
<entry>
<g:id>AT-1</g:id>
<g:title>Atom Product</g:title>
<g:price>5.00 USD</g:price>
</entry>
</feed>`)

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Format != FormatAtom {
		t.Errorf("Format = %q, want atom", result.Format)
	}
	if len(result.Items) != 1 || result.Items[0].ID != "AT-1" {
		t.Errorf("atom entry not extracted: %+v", result.Items)
	}
}

func TestRunNoItems(t *testing.T) {
	data := []byte(feedHeader + feedFooter)

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != "no_items" {
		t.Errorf("expected single no_items diagnostic, got %+v", result.Diagnostics)
	}
	if result.OK() {
		t.Error("no_items is error severity, OK() should be false")
	}
}

func TestRunMalformedDocument(t *testing.T) {
	parser := NewParser()

	_, err := parser.Run([]byte(`this is not xml at all <<<`), false, 0)
	if !errors.Is(err, ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestRunTruncatedAfterItemsIsNonFatal(t *testing.T) {
	// Document breaks off mid-stream after one complete item.
	data := []byte(feedHeader + productItem("A") + "\n<item><g:id>B</g:id>")

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("truncation after items must be non-fatal, got %v", err)
	}

	if len(result.Items) < 1 || result.Items[0].ID != "A" {
		t.Errorf("partial records should be kept: %+v", result.Items)
	}
}

func TestRunChannelMetadata(t *testing.T) {
	data := rssFeed(productItem("A"))

	parser := NewParser()
	result, err := parser.Run(data, false, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Meta.Title != "Test Shop" {
		t.Errorf("Meta.Title = %q, want Test Shop", result.Meta.Title)
	}
	if result.Meta.Link != "https://shop.example" {
		t.Errorf("Meta.Link = %q", result.Meta.Link)
	}
}

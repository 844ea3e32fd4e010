package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wpmr/feed-validator/app/feed"
)

var (
	xmlDeclRe  = regexp.MustCompile(`(?i)^<\?xml\s+([^?]*)\?>`)
	versionRe  = regexp.MustCompile(`version\s*=\s*["']([^"']+)["']`)
	encodingRe = regexp.MustCompile(`encoding\s*=\s*["']([^"']+)["']`)
)

var commonEncodings = map[string]bool{
	"UTF-8":      true,
	"UTF-16":     true,
	"ISO-8859-1": true,
	"US-ASCII":   true,
}

// Options carry the transport caps for one fetch. They are always supplied
// by the caller; the fetcher has no defaults of its own.
type Options struct {
	TimeoutSeconds int
	RedirectCap    int
	MaxFileMB      int
	UserAgent      string
}

// Result is the fetched payload plus transport-level diagnostics produced
// before parsing.
type Result struct {
	HTTPCode    int
	ContentType string
	Bytes       int
	Body        []byte
	Diagnostics []feed.Diagnostic
}

// OK reports whether no error-severity transport diagnostics were raised.
func (r *Result) OK() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == feed.SeverityError {
			return false
		}
	}
	return true
}

type Fetcher struct {
	// lookupIP is swappable for tests.
	lookupIP func(host string) ([]net.IP, error)
}

func New() *Fetcher {
	return &Fetcher{lookupIP: net.LookupIP}
}

// ValidateURL enforces the SSRF guard: http(s) scheme, a host, and no
// private, loopback, or otherwise non-public address, whether given as an
// IP literal or resolved from DNS.
func (f *Fetcher) ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("feed URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL must start with http or https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must contain a valid host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isPublicIP(ip) {
			return fmt.Errorf("URL resolves to a non-public IP and is not allowed")
		}
		return nil
	}

	ips, err := f.lookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if !isPublicIP(ip) {
			return fmt.Errorf("URL resolves to a non-public IP and is not allowed")
		}
	}
	return nil
}

// Run performs the guarded GET and produces encoding/declaration
// diagnostics for the body. Non-200 responses and oversized bodies are
// hard errors; everything softer is a Diagnostic.
func (f *Fetcher) Run(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if err := f.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	limitBytes := int64(max(1, opts.MaxFileMB)) * 1024 * 1024

	client := &http.Client{
		Timeout: time.Duration(max(1, opts.TimeoutSeconds)) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > opts.RedirectCap {
				return fmt.Errorf("stopped after %d redirects", opts.RedirectCap)
			}
			// Each hop gets the same SSRF treatment as the original URL.
			return f.ValidateURL(req.URL.String())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot reach the feed file. HTTP status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limitBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limitBytes {
		return nil, fmt.Errorf("feed exceeds the %d MB size limit", opts.MaxFileMB)
	}

	contentType := resp.Header.Get("Content-Type")

	diagnostics := []feed.Diagnostic{}
	if len(body) == 0 {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityError,
			Code:     "empty_body",
			Message:  "Response body is empty.",
		})
	}

	hasDeclaration := false
	diagnostics = append(diagnostics, inspectDeclaration(body, &hasDeclaration)...)

	isXMLContentType := strings.Contains(strings.ToLower(contentType), "xml")
	if !isXMLContentType && !hasDeclaration {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityError,
			Code:     "content_type",
			Message:  "Content-Type not XML and no XML declaration found.",
		})
	} else if !isXMLContentType {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityWarning,
			Code:     "content_type_warning",
			Message:  "Content-Type header does not indicate XML.",
		})
	}

	return &Result{
		HTTPCode:    resp.StatusCode,
		ContentType: contentType,
		Bytes:       len(body),
		Body:        body,
		Diagnostics: diagnostics,
	}, nil
}

// inspectDeclaration checks BOM and the <?xml ...?> declaration attributes.
func inspectDeclaration(body []byte, hasDeclaration *bool) []feed.Diagnostic {
	diagnostics := []feed.Diagnostic{}

	bom := detectBOM(body)
	if bom != "" {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityWarning,
			Code:     "bom_detected",
			Message:  fmt.Sprintf("BOM (Byte Order Mark) detected: %s. This may cause parsing issues.", bom),
		})
		body = stripBOM(body)
	}

	trimmed := bytes.TrimLeft(body, " \t\n\r")
	if !bytes.HasPrefix(trimmed, []byte("<?xml")) {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityWarning,
			Code:     "missing_xml_declaration",
			Message:  `XML declaration (<?xml version="1.0" encoding="UTF-8"?>) is missing.`,
		})
		return diagnostics
	}
	*hasDeclaration = true

	m := xmlDeclRe.FindSubmatch(trimmed)
	if m == nil {
		return diagnostics
	}
	decl := string(m[1])

	if vm := versionRe.FindStringSubmatch(decl); vm != nil {
		if vm[1] != "1.0" && vm[1] != "1.1" {
			diagnostics = append(diagnostics, feed.Diagnostic{
				Severity: feed.SeverityError,
				Code:     "invalid_xml_version",
				Message:  fmt.Sprintf("Invalid XML version %q. Must be \"1.0\" or \"1.1\".", vm[1]),
			})
		}
	} else {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityWarning,
			Code:     "missing_xml_version",
			Message:  "XML declaration missing version attribute.",
		})
	}

	if em := encodingRe.FindStringSubmatch(decl); em != nil {
		encoding := strings.ToUpper(em[1])
		if !commonEncodings[encoding] {
			diagnostics = append(diagnostics, feed.Diagnostic{
				Severity: feed.SeverityWarning,
				Code:     "uncommon_encoding",
				Message:  fmt.Sprintf("Uncommon encoding %q declared. Recommended: UTF-8.", encoding),
			})
		}
		// "UTF-16" in the declaration matches either UTF-16 BOM variant.
		if bom != "" && !strings.HasPrefix(bom, encoding) {
			diagnostics = append(diagnostics, feed.Diagnostic{
				Severity: feed.SeverityError,
				Code:     "encoding_mismatch",
				Message:  fmt.Sprintf("Encoding mismatch: BOM indicates %s but declaration says %s.", bom, encoding),
			})
		}
	} else {
		diagnostics = append(diagnostics, feed.Diagnostic{
			Severity: feed.SeverityWarning,
			Code:     "missing_encoding",
			Message:  "XML declaration missing encoding attribute. UTF-8 assumed.",
		})
	}

	return diagnostics
}

func detectBOM(body []byte) string {
	switch {
	case bytes.HasPrefix(body, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return "UTF-32BE"
	case bytes.HasPrefix(body, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return "UTF-32LE"
	case bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}):
		return "UTF-8"
	case bytes.HasPrefix(body, []byte{0xFE, 0xFF}):
		return "UTF-16BE"
	case bytes.HasPrefix(body, []byte{0xFF, 0xFE}):
		return "UTF-16LE"
	}
	return ""
}

func stripBOM(body []byte) []byte {
	for _, bom := range [][]byte{
		{0x00, 0x00, 0xFE, 0xFF},
		{0xFF, 0xFE, 0x00, 0x00},
		{0xEF, 0xBB, 0xBF},
		{0xFE, 0xFF},
		{0xFF, 0xFE},
	} {
		if bytes.HasPrefix(body, bom) {
			return body[len(bom):]
		}
	}
	return body
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}

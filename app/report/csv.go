package report

import (
	"strings"

	"github.com/wpmr/feed-validator/app/rules"
)

// CSVMaxRows caps exports so a pathological feed cannot produce an
// unbounded attachment.
const CSVMaxRows = 10000

// CSV renders issues as a CSV document. Every field is quoted, matching
// what spreadsheet imports handle most predictably for free-form rule
// messages.
func CSV(issues []rules.Issue, maxRows int) []byte {
	if maxRows <= 0 || maxRows > CSVMaxRows {
		maxRows = CSVMaxRows
	}

	var b strings.Builder
	writeRow(&b, "item_id", "code", "severity", "category", "message")

	for i, issue := range issues {
		if i >= maxRows {
			break
		}
		writeRow(&b, issue.ItemID, issue.Code, string(issue.Severity), issue.Category, issue.Message)
	}

	return []byte(b.String())
}

func writeRow(b *strings.Builder, fields ...string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
}

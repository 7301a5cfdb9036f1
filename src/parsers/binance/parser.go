// Package binance ingests the Binance ledger-export CSV. Parsing is
// deliberately lenient: a bad line is recorded as a skip reason and never
// aborts the import.
package binance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/models"
	"github.com/shopspring/decimal"
)

// timeLayout is the export's naive timestamp: space-separated date and
// time, no timezone. It is treated as UTC.
const timeLayout = "2006-01-02 15:04:05"

type Parser struct {
	fiatBase string
}

func NewParser(fiatBase string) *Parser {
	return &Parser{fiatBase: strings.ToUpper(fiatBase)}
}

// Parse runs the whole pipeline: CSV rows, time-proximity buckets, the
// per-operation mapping table, and the fiat-anchor flags.
func (p *Parser) Parse(file io.Reader) (*models.ImportPreview, error) {
	rows, skipped, err := p.parseRows(file)
	if err != nil {
		return nil, err
	}

	groups := make([]models.ImportGroup, 0)
	for _, bucket := range groupByTime(rows) {
		groups = append(groups, p.mapGroup(bucket))
	}

	return &models.ImportPreview{
		Source:   "binance",
		Groups:   groups,
		Skipped:  skipped,
		RowCount: len(rows),
	}, nil
}

// header columns, matched after normalization so variants like "UTC_Time"
// and "UTC Time" both resolve
var headerNames = map[string]string{
	"userid":    "user_id",
	"utctime":   "utc_time",
	"account":   "account",
	"operation": "operation",
	"coin":      "coin",
	"change":    "change",
	"remark":    "remark",
}

func (p *Parser) parseRows(file io.Reader) ([]models.ImportRow, []models.SkipReason, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	columns := make(map[string]int)
	for i, name := range header {
		if canonical, ok := headerNames[normalizeHeader(name)]; ok {
			columns[canonical] = i
		}
	}
	for _, required := range []string{"utc_time", "operation", "coin", "change"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("CSV header is missing required column %q", required)
		}
	}

	var rows []models.ImportRow
	var skipped []models.SkipReason
	line := 1 // header was line 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			skipped = append(skipped, models.SkipReason{Line: line, Reason: fmt.Sprintf("malformed CSV row: %v", err)})
			continue
		}

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		executedAt, err := time.ParseInLocation(timeLayout, field("utc_time"), time.UTC)
		if err != nil {
			skipped = append(skipped, models.SkipReason{Line: line, Reason: fmt.Sprintf("unparseable timestamp %q", field("utc_time"))})
			continue
		}

		// scientific notation like 6.8E-7 is valid here
		change, err := decimal.NewFromString(field("change"))
		if err != nil {
			skipped = append(skipped, models.SkipReason{Line: line, Reason: fmt.Sprintf("unparseable amount %q", field("change"))})
			continue
		}
		if change.IsZero() {
			skipped = append(skipped, models.SkipReason{Line: line, Reason: "zero amount"})
			continue
		}

		rows = append(rows, models.ImportRow{
			Line:      line,
			UserID:    field("user_id"),
			Time:      executedAt,
			Account:   field("account"),
			Operation: field("operation"),
			Coin:      strings.ToUpper(field("coin")),
			Change:    change,
			Remark:    field("remark"),
		})
	}
	return rows, skipped, nil
}

func normalizeHeader(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, " ", "")
	return name
}

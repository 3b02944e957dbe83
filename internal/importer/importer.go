package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logger"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog CSV files and inserts/updates products by key.
//
// Expected header: key,sku,name,brand,description,category,price,currency,image.
// Column order is free; unknown columns are ignored.
type CSVImporter struct {
	reader      *csv.Reader
	productRepo ProductWriter
	logger      *zap.Logger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, l *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:      csvr,
		productRepo: repo,
		logger:      logger.OrNop(l).Named("importer"),
	}
}

var requiredColumns = []string{"key", "sku", "name", "price", "currency"}

// Run parses CSV rows and upserts one product per row. Blank rows are skipped;
// the first invalid row aborts the import.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return 0, fmt.Errorf("missing required column %q", col)
		}
	}

	imported := 0
	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		p, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", line, err)
		}
		if _, err := i.productRepo.Upsert(ctx, p); err != nil {
			return imported, fmt.Errorf("upsert product %q: %w", p.Key, err)
		}
		i.logger.Debug("imported product", zap.String("key", p.Key), zap.Int("row", line))
		imported++
	}

	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (domain.Product, error) {
	p := domain.Product{
		Key:         pick(record, index, "key"),
		SKU:         pick(record, index, "sku"),
		Name:        pick(record, index, "name"),
		Brand:       pick(record, index, "brand"),
		Description: pick(record, index, "description"),
		Category:    strings.ToLower(pick(record, index, "category")),
		ImageURL:    pick(record, index, "image"),
		Currency:    strings.ToUpper(pick(record, index, "currency")),
	}
	if p.Key == "" || p.SKU == "" || p.Name == "" || p.Currency == "" {
		return p, fmt.Errorf("missing required fields for key %q", p.Key)
	}
	if len(p.Currency) != 3 {
		return p, fmt.Errorf("invalid currency %q for key %q", p.Currency, p.Key)
	}

	cents, err := priceCents(pick(record, index, "price"))
	if err != nil {
		return p, fmt.Errorf("key %q: %w", p.Key, err)
	}
	p.PriceCents = cents
	return p, nil
}

// priceCents converts a decimal price such as "89.99" into integer cents.
func priceCents(raw string) (int64, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", raw)
	}
	if price.IsNegative() {
		return 0, fmt.Errorf("negative price %q", raw)
	}
	cents := price.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("price %q has fractional cents", raw)
	}
	return cents.IntPart(), nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

// Package lookup implements the Instrument Lookup component (spec.md
// C8): read-only queries against the Data Loader (find_by_ric,
// find_by_masterid, filter_by_column_values, get_by_exchange), grounded on
// the teacher's read-handler shape in internal/api/handler.go, with every
// NaN-equivalent value normalized to null in returned records.
package lookup

import (
	"context"
	"fmt"

	"github.com/refdata/validate-service/internal/domain"
)

// Record is a projected instrument row keyed by column name, the shape
// every Lookup query returns.
type Record map[string]any

// Lookup answers read-only instrument queries against a DataLoader.
type Lookup struct {
	loader      domain.DataLoader
	exchangeMap map[string][]string // productType -> []exchangeCode, for CSV "scan all exchanges"
	productType string              // the single product type this Lookup serves (e.g. "stocks")
}

// New returns a Lookup over loader, scanning exchangeMap[productType] when
// a query omits an exchange.
func New(loader domain.DataLoader, exchangeMap map[string][]string, productType string) *Lookup {
	return &Lookup{loader: loader, exchangeMap: exchangeMap, productType: productType}
}

// FindByRIC returns the first row with an exact RIC match. With exchange
// empty it scans every configured exchange for this product type in
// order; callers on a DB backend must supply exchange.
func (l *Lookup) FindByRIC(ctx context.Context, ric, exchange string) (Record, error) {
	return l.findByColumn(ctx, "ric", ric, exchange, true)
}

// FindByMasterID returns the first row with an exact (string-compared)
// MasterId match.
func (l *Lookup) FindByMasterID(ctx context.Context, masterID, exchange string) (Record, error) {
	return l.findByColumn(ctx, "masterid", masterID, exchange, true)
}

func (l *Lookup) findByColumn(ctx context.Context, column, value, exchange string, exact bool) (Record, error) {
	exchanges := l.exchangesToScan(exchange)

	for _, ex := range exchanges {
		ds, err := l.loader.Load(ctx, l.productType, ex)
		if err != nil {
			continue
		}
		idx := ds.ColumnIndex(column)
		if idx < 0 {
			continue
		}
		for i, row := range ds.Rows {
			if idx < len(row) && toComparable(row[idx]) == value {
				return normalize(ds.RowMap(i)), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s=%s", domain.ErrInstrumentNotFound, column, value)
}

// FilterByColumnValues returns every row in exchange whose column matches
// one of values (or every row with a missing value when includeMissing is
// true and values is empty), projected to {MasterId, RIC, Sedol, Exchange,
// <column>}.
func (l *Lookup) FilterByColumnValues(ctx context.Context, exchange, column string, values []string, includeMissing bool) ([]Record, error) {
	if len(values) == 0 && !includeMissing {
		return nil, nil
	}

	ds, err := l.loader.Load(ctx, l.productType, exchange)
	if err != nil {
		return nil, err
	}
	idx := ds.ColumnIndex(column)
	if idx < 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}

	var out []Record
	for i, row := range ds.Rows {
		var cell any
		if idx < len(row) {
			cell = row[idx]
		}
		missing := cell == nil
		match := false
		if missing {
			match = includeMissing
		} else if wanted[toComparable(cell)] {
			match = true
		}
		if !match {
			continue
		}
		full := ds.RowMap(i)
		out = append(out, projectInstrument(full, column))
	}
	return out, nil
}

// GetByExchange lists all rows for exchange, paginated by limit/offset.
func (l *Lookup) GetByExchange(ctx context.Context, exchange string, limit, offset int) ([]Record, error) {
	ds, err := l.loader.Load(ctx, l.productType, exchange)
	if err != nil {
		return nil, err
	}

	start := offset
	if start > ds.RowCount() {
		start = ds.RowCount()
	}
	end := ds.RowCount()
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	out := make([]Record, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, normalize(ds.RowMap(i)))
	}
	return out, nil
}

// exchangesToScan returns [exchange] when given, else every configured
// exchange for this product type (CSV "scan all exchanges" mode).
func (l *Lookup) exchangesToScan(exchange string) []string {
	if exchange != "" {
		return []string{exchange}
	}
	return l.exchangeMap[l.productType]
}

// projectInstrument narrows a full row to the standard instrument
// identity columns plus the filter column, normalizing NaN-equivalents to
// null.
func projectInstrument(full map[string]any, filterColumn string) Record {
	out := Record{
		"MasterId": normalizeValue(full["masterid"]),
		"RIC":      normalizeValue(full["ric"]),
		"Sedol":    normalizeValue(full["sedol"]),
		"Exchange": normalizeValue(full["exchange"]),
	}
	out[filterColumn] = normalizeValue(full[filterColumn])
	return out
}

func normalize(row map[string]any) Record {
	out := make(Record, len(row))
	for k, v := range row {
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue maps NaN-equivalent values (nil, NaN float64) to nil.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	if f, ok := v.(float64); ok && f != f { // f != f iff f is NaN
		return nil
	}
	return v
}

// toComparable renders a cell as the string form lookups compare against.
func toComparable(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Package tableview filters, searches and sorts the flat course table. It is
// a pure view: it never mutates the input rows and derives every result from
// scratch, so callers can hold one immutable dataset and apply any number of
// independent queries to it.
package tableview

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// Column identifiers match the JSON field names of catalog.CourseRow.
const (
	ColAlan      = "alan_adi"
	ColDal       = "dal_adi"
	ColDers      = "ders_adi"
	ColSinif     = "sinif"
	ColDersSaati = "ders_saati"
)

// Columns lists the filterable columns in display order.
var Columns = []string{ColAlan, ColDal, ColDers, ColSinif, ColDersSaati}

// Query describes one view over the table.
type Query struct {
	// Search is a free-text needle matched case-insensitively against area,
	// branch and course names.
	Search string
	// Filters maps a column to its set of allowed stringified values. An
	// absent or empty set means the column is unfiltered.
	Filters map[string][]string
	// SortBy is a column identifier; empty means backend order.
	SortBy string
	Desc   bool
}

// Course names are Turkish; strings.ToLower folds İ→i̇ and I→i incorrectly
// for them, so all matching goes through the Turkish caser.
var lowerTR = cases.Lower(language.Turkish)

func foldTR(s string) string {
	return lowerTR.String(s)
}

// Apply returns the rows passing the query's search and filters, sorted as
// requested. The result is always a fresh slice.
func Apply(rows []catalog.CourseRow, q Query) []catalog.CourseRow {
	out := make([]catalog.CourseRow, 0, len(rows))
	needle := foldTR(strings.TrimSpace(q.Search))
	for _, row := range rows {
		if needle != "" && !matchesSearch(row, needle) {
			continue
		}
		if !passesFilters(row, q.Filters, "") {
			continue
		}
		out = append(out, row)
	}
	sortRows(out, q.SortBy, q.Desc)
	return out
}

func matchesSearch(row catalog.CourseRow, needle string) bool {
	return strings.Contains(foldTR(row.AlanAdi), needle) ||
		strings.Contains(foldTR(row.DalAdi), needle) ||
		strings.Contains(foldTR(row.DersAdi), needle)
}

// passesFilters checks every column filter except skipCol (used when
// building that column's own facet menu).
func passesFilters(row catalog.CourseRow, filters map[string][]string, skipCol string) bool {
	for col, allowed := range filters {
		if col == skipCol || len(allowed) == 0 {
			continue
		}
		value := ColumnValue(row, col)
		found := false
		for _, a := range allowed {
			if a == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ColumnValue returns the stringified cell value used for filtering.
func ColumnValue(row catalog.CourseRow, col string) string {
	switch col {
	case ColAlan:
		return row.AlanAdi
	case ColDal:
		return row.DalAdi
	case ColDers:
		return row.DersAdi
	case ColSinif:
		return strconv.Itoa(row.Sinif)
	case ColDersSaati:
		return strconv.Itoa(row.DersSaati)
	}
	return ""
}

func sortRows(rows []catalog.CourseRow, col string, desc bool) {
	if col == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		less := lessByColumn(rows[i], rows[j], col)
		if desc {
			return lessByColumn(rows[j], rows[i], col)
		}
		return less
	})
}

// lessByColumn compares by the column's native type: numeric columns
// numerically, name columns lexicographically.
func lessByColumn(a, b catalog.CourseRow, col string) bool {
	switch col {
	case ColSinif:
		return a.Sinif < b.Sinif
	case ColDersSaati:
		return a.DersSaati < b.DersSaati
	default:
		return ColumnValue(a, col) < ColumnValue(b, col)
	}
}

// Facet is one distinct value in a column filter menu.
type Facet struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets lists the distinct values of a column with occurrence counts. The
// dataset is the one produced by the query with that column's own filter
// removed, so the menu always shows what selecting each value would yield.
// narrow is the per-menu search string; results are ordered by descending
// count, ties by value.
func Facets(rows []catalog.CourseRow, q Query, col, narrow string) []Facet {
	needle := foldTR(strings.TrimSpace(q.Search))
	narrowNeedle := foldTR(strings.TrimSpace(narrow))

	counts := make(map[string]int)
	for _, row := range rows {
		if needle != "" && !matchesSearch(row, needle) {
			continue
		}
		if !passesFilters(row, q.Filters, col) {
			continue
		}
		value := ColumnValue(row, col)
		if narrowNeedle != "" && !strings.Contains(foldTR(value), narrowNeedle) {
			continue
		}
		counts[value]++
	}

	facets := make([]Facet, 0, len(counts))
	for value, count := range counts {
		facets = append(facets, Facet{Value: value, Count: count})
	}
	sort.Slice(facets, func(i, j int) bool {
		if facets[i].Count != facets[j].Count {
			return facets[i].Count > facets[j].Count
		}
		return facets[i].Value < facets[j].Value
	})
	return facets
}
